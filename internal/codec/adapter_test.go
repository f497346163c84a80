package codec

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"testing"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/texture"
)

// newImage allocates a 2D image whose items are filled with the given
// colors.
func newImage(t *testing.T, w, h int, items ...color.NRGBA) *texture.Image {
	t.Helper()
	img, err := texture.New(texture.Descriptor{
		Dimension: texture.Texture2D, Width: w, Height: h, Depth: 1,
		MipCount: 1, ArrayCount: len(items), Format: pixfmt.R8G8B8A8UNorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range items {
		src := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				src.SetNRGBA(x, y, c)
			}
		}
		if err := img.Buffer(0, i, 0).SetImage(src); err != nil {
			t.Fatal(err)
		}
	}
	return img
}

// pngBytes encodes a w×h gradient with translucent pixels.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 60), B: 7, A: uint8(100 + x*30)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pos(t *testing.T, s io.Seeker) int64 {
	t.Helper()
	p, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPNGRoundtrip(t *testing.T) {
	data := pngBytes(t, 4, 3)
	c := NewPNG()

	img, err := c.LoadFromStream(bytes.NewReader(data), 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer img.Dispose()
	if img.Width != 4 || img.Height != 3 || img.Format != pixfmt.R8G8B8A8UNorm || img.ArrayCount != 1 {
		t.Fatalf("descriptor %+v", img.Descriptor)
	}

	var out bytes.Buffer
	if err := c.SaveToStream(img, &out, Options{}); err != nil {
		t.Fatal(err)
	}
	again, err := c.LoadFromStream(bytes.NewReader(out.Bytes()), 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer again.Dispose()
	if !bytes.Equal(img.Pixels(), again.Pixels()) {
		t.Error("pixels changed across save and load")
	}
}

func TestGetMetaDataKeepsPosition(t *testing.T) {
	data := append([]byte("junk!"), pngBytes(t, 5, 2)...)
	r := bytes.NewReader(data)
	if _, err := r.Seek(5, io.SeekStart); err != nil {
		t.Fatal(err)
	}

	desc, err := NewPNG().GetMetaData(r, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if desc.Width != 5 || desc.Height != 2 || desc.Format != pixfmt.R8G8B8A8UNorm {
		t.Errorf("descriptor %+v", desc)
	}
	if p := pos(t, r); p != 5 {
		t.Errorf("position %d after GetMetaData, want 5", p)
	}

	// A failed probe rewinds too.
	if NewJPEG().IsReadable(r, Options{}) {
		t.Error("JPEG codec accepted a PNG stream")
	}
	if p := pos(t, r); p != 5 {
		t.Errorf("position %d after IsReadable, want 5", p)
	}
}

func TestStreamErrors(t *testing.T) {
	data := pngBytes(t, 2, 2)
	c := NewPNG()

	tests := []struct {
		name string
		r    io.Reader
		want error
	}{
		{"nil", nil, ErrStreamNotReadable},
		{"not seekable", struct{ io.Reader }{bytes.NewReader(data)}, ErrStreamNotSeekable},
		{"empty", bytes.NewReader(nil), ErrEndOfStream},
		{"wrong signature", bytes.NewReader([]byte("GIF89a not really a gif")), ErrSignatureMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.GetMetaData(tt.r, Options{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			var ce *Error
			if !errors.As(err, &ce) {
				t.Fatalf("%T is not *Error", err)
			}
			if c.IsReadable(tt.r, Options{}) {
				t.Error("IsReadable accepted the stream")
			}
		})
	}
}

func TestLoadSizeHint(t *testing.T) {
	first := pngBytes(t, 3, 3)
	second := pngBytes(t, 6, 1)
	r := bytes.NewReader(append(append([]byte{}, first...), second...))
	c := NewPNG()

	img, err := c.LoadFromStream(r, int64(len(first)), Options{})
	if err != nil {
		t.Fatal(err)
	}
	img.Dispose()
	if p := pos(t, r); p != int64(len(first)) {
		t.Fatalf("position %d after first image, want %d", p, len(first))
	}

	img, err = c.LoadFromStream(r, int64(len(second)), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer img.Dispose()
	if img.Width != 6 || img.Height != 1 {
		t.Errorf("second image %dx%d", img.Width, img.Height)
	}
}

func TestLoadFailureRewinds(t *testing.T) {
	data := pngBytes(t, 8, 8)
	// Drop IEND and the tail of IDAT.
	r := bytes.NewReader(data[:len(data)-16])

	img, err := NewPNG().LoadFromStream(r, 0, Options{})
	if err == nil {
		t.Fatal("truncated stream decoded")
	}
	if img != nil {
		t.Error("image returned with error")
	}
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("%T is not *Error", err)
	}
	if p := pos(t, r); p != 0 {
		t.Errorf("position %d after failed load", p)
	}
}

func TestLoadOverrides(t *testing.T) {
	data := pngBytes(t, 4, 3)
	img, err := NewPNG().LoadFromStream(bytes.NewReader(data), 0, Options{
		Format: pixfmt.B8G8R8A8UNorm,
		Width:  8,
		Height: 6,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer img.Dispose()
	if img.Format != pixfmt.B8G8R8A8UNorm || img.Width != 8 || img.Height != 6 {
		t.Fatalf("descriptor %+v", img.Descriptor)
	}

	img2, err := NewPNG().LoadFromStream(bytes.NewReader(data), 0, Options{Format: pixfmt.B8G8R8A8UNorm})
	if err != nil {
		t.Fatal(err)
	}
	defer img2.Dispose()
	px := img2.Buffer(0, 0, 0).Pix
	// pixel (1,0): R=40 G=0 B=7 A=130, stored B,G,R,A.
	if got := px[4:8]; !bytes.Equal(got, []byte{7, 0, 40, 130}) {
		t.Errorf("BGRA pixel %v", got)
	}
}

func gifBytes(t *testing.T, loop int, delays ...int) []byte {
	t.Helper()
	pal := color.Palette{
		color.NRGBA{R: 255, A: 255},
		color.NRGBA{G: 255, A: 255},
		color.NRGBA{B: 255, A: 255},
		color.NRGBA{A: 255},
	}
	g := &gif.GIF{LoopCount: loop}
	for i, d := range delays {
		p := image.NewPaletted(image.Rect(0, 0, 4, 4), pal)
		for j := range p.Pix {
			p.Pix[j] = uint8(i % len(pal))
		}
		g.Image = append(g.Image, p)
		g.Delay = append(g.Delay, d)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestGIFFramesAsArray(t *testing.T) {
	data := gifBytes(t, 2, 5, 6, 7)
	c := NewGIF()

	desc, err := c.GetMetaData(bytes.NewReader(data), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if desc.ArrayCount != 1 {
		t.Errorf("default load has %d items, want 1", desc.ArrayCount)
	}

	img, err := c.LoadFromStream(bytes.NewReader(data), 0, Options{UseAllFrames: true})
	if err != nil {
		t.Fatal(err)
	}
	defer img.Dispose()
	if img.ArrayCount != 3 || img.Format != pixfmt.R8G8B8A8UNorm {
		t.Fatalf("descriptor %+v", img.Descriptor)
	}
	if got := img.Buffer(0, 1, 0).Pix[:4]; !bytes.Equal(got, []byte{0, 255, 0, 255}) {
		t.Errorf("item 1 pixel %v, want green", got)
	}
	if img.Metadata["gif.loop_count"] != "2" || img.Metadata["gif.delay.1"] != "6" {
		t.Errorf("metadata %v", img.Metadata)
	}

	limited, err := c.LoadFromStream(bytes.NewReader(data), 0, Options{UseAllFrames: true, ArrayCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer limited.Dispose()
	if limited.ArrayCount != 2 {
		t.Errorf("ArrayCount override: %d items", limited.ArrayCount)
	}
}

func TestGIFSave(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	blue := color.NRGBA{B: 200, A: 255}
	img := newImage(t, 4, 4, red, blue)
	defer img.Dispose()
	img.Metadata["gif.delay.0"] = "9"

	var buf bytes.Buffer
	if err := NewGIF().SaveToStream(img, &buf, Options{UseAllFrames: true, FrameDelay: 4}); err != nil {
		t.Fatal(err)
	}
	g, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Image) != 2 {
		t.Fatalf("%d frames", len(g.Image))
	}
	if g.Delay[0] != 9 || g.Delay[1] != 4 {
		t.Errorf("delays %v", g.Delay)
	}
	if got := color.NRGBAModel.Convert(g.Image[1].At(2, 2)); got != blue {
		t.Errorf("frame 1 pixel %v", got)
	}

	// Without UseAllFrames only item 0 is written.
	buf.Reset()
	if err := NewGIF().SaveToStream(img, &buf, Options{}); err != nil {
		t.Fatal(err)
	}
	if g, err := gif.DecodeAll(&buf); err != nil || len(g.Image) != 1 {
		t.Errorf("single-frame save: %v", err)
	}
}

func TestJPEGRoundtrip(t *testing.T) {
	img := newImage(t, 16, 8, color.NRGBA{R: 30, G: 120, B: 200, A: 255})
	defer img.Dispose()

	var buf bytes.Buffer
	if err := NewJPEG().SaveToStream(img, &buf, Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}
	back, err := NewJPEG().LoadFromStream(bytes.NewReader(buf.Bytes()), 0, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer back.Dispose()
	if back.Width != 16 || back.Height != 8 {
		t.Errorf("size %dx%d", back.Width, back.Height)
	}
}

func TestSaveErrors(t *testing.T) {
	img := newImage(t, 2, 2, color.NRGBA{A: 255})

	var buf bytes.Buffer
	if err := NewWebP().SaveToStream(img, &buf, Options{}); !errors.Is(err, ErrFormatNotSupported) {
		t.Errorf("webp save: %v", err)
	}
	if err := NewPNG().SaveToStream(img, nil, Options{}); !errors.Is(err, ErrCannotCreate) {
		t.Errorf("nil writer: %v", err)
	}
	img.Dispose()
	if err := NewPNG().SaveToStream(img, &buf, Options{}); !errors.Is(err, ErrCannotCreate) {
		t.Errorf("disposed image: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("%d bytes written by failed saves", buf.Len())
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := NewError("load", ErrDecoderInit, io.ErrUnexpectedEOF)
	if !errors.Is(err, ErrDecoderInit) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("unwrap failed: %v", err)
	}
	if got := classify("load", ErrDecoderInit, io.ErrUnexpectedEOF); !errors.Is(got, ErrEndOfStream) {
		t.Errorf("classify EOF: %v", got)
	}
	if got := classify("load", ErrDecoderInit, texture.ErrNotPowerOfTwo); !errors.Is(got, ErrVolumeNotPowerOfTwo) {
		t.Errorf("classify power of two: %v", got)
	}
	if got := classify("load", ErrCannotCreate, err); got != error(err) {
		t.Errorf("classify rewrapped an *Error: %v", got)
	}
}
