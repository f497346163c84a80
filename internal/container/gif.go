package container

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"io"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
)

type gifService struct{}

// GIF returns the animated GIF service. Frames keep their own bounds;
// the offset of each frame on the logical screen is reported per frame.
func GIF() Service { return gifService{} }

func (gifService) Name() string { return "gif" }

func (gifService) Sniff(h []byte) bool {
	return hasPrefix(h, "GIF87a") || hasPrefix(h, "GIF89a")
}

func (gifService) Writable() []pixfmt.Native {
	return []pixfmt.Native{
		pixfmt.NativeIndexed8, pixfmt.NativeIndexed4, pixfmt.NativeIndexed2,
		pixfmt.NativeIndexed1, pixfmt.NativeBlackWhite,
	}
}

func (gifService) MultiFrame() bool { return true }

// Probe decodes every frame because GIF has no frame count in its header.
func (s gifService) Probe(r io.Reader) (Config, error) {
	d, err := s.Open(r)
	if err != nil {
		return Config{}, err
	}
	return d.Config(), nil
}

func (gifService) Open(r io.Reader) (Decoder, error) {
	var g *gif.GIF
	err := guard("gif", func() (err error) {
		g, err = gif.DecodeAll(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("%w: gif: no frames", ErrDecode)
	}
	return &gifDecoder{g: g}, nil
}

func (gifService) NewEncoder(opts EncodeOptions) (Encoder, error) {
	return &gifEncoder{g: &gif.GIF{LoopCount: opts.LoopCount}}, nil
}

type gifDecoder struct {
	g *gif.GIF
}

func (d *gifDecoder) Config() Config {
	w, h := d.g.Config.Width, d.g.Config.Height
	if w <= 0 || h <= 0 {
		b := d.g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	return Config{
		Width:      w,
		Height:     h,
		FrameCount: len(d.g.Image),
		Native:     pixfmt.NativeOf(d.g.Image[0]),
		LoopCount:  d.g.LoopCount,
	}
}

func (d *gifDecoder) Frame(i int) (Frame, error) {
	if i < 0 || i >= len(d.g.Image) {
		return Frame{}, fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(d.g.Image))
	}
	img := d.g.Image[i]
	f := Frame{Image: img, Native: pixfmt.NativeOf(img), Offset: img.Bounds().Min}
	if i < len(d.g.Delay) {
		f.Delay = d.g.Delay[i]
	}
	return f, nil
}

type gifEncoder struct {
	g *gif.GIF
}

func (e *gifEncoder) AddFrame(f Frame) error {
	if err := validateFrame(f, GIF().Writable()); err != nil {
		return err
	}
	p := f.Image.(*image.Paletted)
	if f.Offset != (image.Point{}) || p.Rect.Min != (image.Point{}) {
		moved := *p
		moved.Rect = p.Rect.Sub(p.Rect.Min).Add(f.Offset)
		p = &moved
	}
	e.g.Image = append(e.g.Image, p)
	e.g.Delay = append(e.g.Delay, f.Delay)
	e.g.Disposal = append(e.g.Disposal, gif.DisposalNone)
	return nil
}

func (e *gifEncoder) Flush(w io.Writer) error {
	if len(e.g.Image) == 0 {
		return fmt.Errorf("%w: no frame committed", ErrFrameRejected)
	}
	for _, img := range e.g.Image {
		b := img.Bounds()
		e.g.Config.Width = max(e.g.Config.Width, b.Max.X)
		e.g.Config.Height = max(e.g.Config.Height, b.Max.Y)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, e.g); err != nil {
		return fmt.Errorf("gif encode: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
