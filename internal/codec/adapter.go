package codec

import (
	"errors"
	"image"
	"io"
	"slices"
	"strconv"

	"github.com/AnyUserName/texpipe/internal/container"
	"github.com/AnyUserName/texpipe/internal/palette"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/placement"
	"github.com/AnyUserName/texpipe/internal/texture"
)

// Config parameterizes an Adapter. The function fields are optional
// per-container customization points.
type Config struct {
	Kind         Kind
	Name         string
	Extensions   []string
	Capabilities Capabilities
	Service      container.Service

	// FrameOffset returns where a frame lands on the target when Clip is
	// requested. Nil places every frame at the origin.
	FrameOffset func(f container.Frame) image.Point

	// Palette returns the palette for an indexed encode of img, or nil
	// to build one from the pixels. The adapter releases the result once
	// the frame is committed.
	Palette func(img image.Image, target pixfmt.Native, opts Options) *palette.Info

	// AddCustomMetaData records container values in meta after the
	// first frames frames of d were decoded.
	AddCustomMetaData func(meta map[string]string, d container.Decoder, frames int)

	// SetFrameOptions adjusts a frame of array item item before commit.
	SetFrameOptions func(f *container.Frame, img *texture.Image, item int, opts Options)
}

// Adapter is the codec for every frame-based container. It holds only
// its Config, so one instance may serve concurrent calls on independent
// streams.
type Adapter struct {
	cfg Config
}

// New returns an adapter for cfg.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Kind() Kind                 { return a.cfg.Kind }
func (a *Adapter) Name() string               { return a.cfg.Name }
func (a *Adapter) Extensions() []string       { return slices.Clone(a.cfg.Extensions) }
func (a *Adapter) Capabilities() Capabilities { return a.cfg.Capabilities }

// CanSave reports whether the container has an encoder.
func (a *Adapter) CanSave() bool { return len(a.cfg.Service.Writable()) > 0 }

// decodeContext is the per-call decode state.
type decodeContext struct {
	start      int64
	frameCount int
	desc       texture.Descriptor
	opts       Options
}

// GetMetaData implements Codec.
func (a *Adapter) GetMetaData(r io.Reader, opts Options) (desc texture.Descriptor, err error) {
	const op = "get metadata"
	rs, start, err := openStream(op, r)
	if err != nil {
		return desc, err
	}
	defer func() {
		if _, serr := rs.Seek(start, io.SeekStart); serr != nil && err == nil {
			err = NewError(op, ErrStreamNotSeekable, serr)
		}
	}()

	if err := checkSignature(op, rs, start, a.cfg.Service.Sniff); err != nil {
		return desc, err
	}
	cfg, err := a.cfg.Service.Probe(rs)
	if err != nil {
		return desc, classify(op, ErrDecoderInit, err)
	}
	dc, err := a.newContext(op, start, cfg, opts)
	if err != nil {
		return desc, err
	}
	return dc.desc, nil
}

// IsReadable implements Codec.
func (a *Adapter) IsReadable(r io.Reader, opts Options) bool {
	return readable(a.cfg.Name, a.GetMetaData, r, opts)
}

func readable(name string, probe func(io.Reader, Options) (texture.Descriptor, error), r io.Reader, opts Options) bool {
	_, err := probe(r, opts)
	if err == nil {
		return true
	}
	var ce *Error
	if errors.As(err, &ce) {
		Logger().Debug("probe rejected", "codec", name, "reason", ce.Kind)
	}
	return false
}

// newContext resolves the target descriptor for a probed container.
func (a *Adapter) newContext(op string, start int64, cfg container.Config, opts Options) (*decodeContext, error) {
	if cfg.FrameCount < 1 {
		return nil, NewError(op, ErrDecoderInit, errors.New("container has no frames"))
	}
	format := opts.Format
	if format == pixfmt.FormatUnknown {
		f, ok := pixfmt.ToInternal(cfg.Native, opts.Flags)
		if !ok {
			return nil, NewError(op, ErrFormatNotSupported, errors.New("no internal format for "+cfg.Native.String()))
		}
		format = f
	}
	if !a.cfg.Capabilities.Supports(format) {
		return nil, NewError(op, ErrFormatNotSupported, errors.New(format.String()))
	}

	items := 1
	if opts.UseAllFrames && a.cfg.Service.MultiFrame() && a.cfg.Capabilities.SupportsArray {
		items = cfg.FrameCount
		if opts.ArrayCount > 0 {
			items = min(opts.ArrayCount, cfg.FrameCount)
		}
	}
	w, h := cfg.Width, cfg.Height
	if opts.Width > 0 {
		w = opts.Width
	}
	if opts.Height > 0 {
		h = opts.Height
	}
	return &decodeContext{
		start:      start,
		frameCount: cfg.FrameCount,
		opts:       opts,
		desc: texture.Descriptor{
			Dimension:  texture.Texture2D,
			Width:      w,
			Height:     h,
			Depth:      1,
			MipCount:   1,
			ArrayCount: items,
			Format:     format,
		},
	}, nil
}

// LoadFromStream implements Codec. Every requested frame must decode;
// on failure the stream is rewound and nothing is returned.
func (a *Adapter) LoadFromStream(r io.Reader, sizeHint int64, opts Options) (img *texture.Image, err error) {
	const op = "load"
	rs, start, err := openStream(op, r)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			img.Dispose()
			img = nil
			_, _ = rs.Seek(start, io.SeekStart)
		}
	}()

	if err := checkSignature(op, rs, start, a.cfg.Service.Sniff); err != nil {
		return nil, err
	}
	var src io.Reader = rs
	if sizeHint > 0 {
		src = io.LimitReader(rs, sizeHint)
	}
	dec, err := a.cfg.Service.Open(src)
	if err != nil {
		return nil, classify(op, ErrDecoderInit, err)
	}
	dc, err := a.newContext(op, start, dec.Config(), opts)
	if err != nil {
		return nil, err
	}
	img, err = texture.New(dc.desc)
	if err != nil {
		return nil, classify(op, ErrCannotCreate, err)
	}

	for item := 0; item < dc.desc.ArrayCount; item++ {
		if err := a.readFrame(dc, dec, img, item); err != nil {
			return img, classify(op, ErrDecoderInit, err)
		}
	}
	if skipped := dc.frameCount - dc.desc.ArrayCount; skipped > 0 && opts.UseAllFrames {
		Logger().Warn("frames not loaded", "codec", a.cfg.Name, "frames", dc.frameCount, "loaded", dc.desc.ArrayCount)
	}
	if a.cfg.AddCustomMetaData != nil {
		a.cfg.AddCustomMetaData(img.Metadata, dec, dc.desc.ArrayCount)
	}

	if sizeHint > 0 {
		if err := skipTo(rs, start+sizeHint); err != nil {
			return img, NewError(op, ErrStreamNotSeekable, err)
		}
	}
	return img, nil
}

// skipTo moves the stream forward to pos when it stopped short of it.
func skipTo(rs io.Seeker, pos int64) error {
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if cur < pos {
		_, err = rs.Seek(pos, io.SeekStart)
	}
	return err
}

func (a *Adapter) readFrame(dc *decodeContext, dec container.Decoder, img *texture.Image, item int) error {
	f, err := dec.Frame(item)
	if err != nil {
		return err
	}
	buf := img.Buffer(0, item, 0)
	target, ok := pixfmt.ToNative(buf.Format)
	if !ok {
		return NewError("load", ErrFormatNotSupported, errors.New(buf.Format.String()))
	}
	plan := placement.Place(f.Image.Bounds(), f.Native, target, buf.Width, buf.Height, dc.opts.Clip)
	Logger().Debug("decode frame",
		"codec", a.cfg.Name, "frame", item, "native", f.Native, "target", target, "plan", plan)

	out, err := placement.Apply(f.Image, plan, placement.Request{
		Width:  buf.Width,
		Height: buf.Height,
		Offset: a.frameOffset(f),
		Target: target,
		Filter: dc.opts.Filter,
		Dither: dc.opts.Dither,
	})
	if err != nil {
		return err
	}
	return buf.SetImage(out)
}

func (a *Adapter) frameOffset(f container.Frame) image.Point {
	if a.cfg.FrameOffset == nil {
		return image.Point{}
	}
	return a.cfg.FrameOffset(f)
}

// SaveToStream implements Codec. Only array item 0 at mip 0 is written
// unless UseAllFrames is set and the container holds multiple frames.
func (a *Adapter) SaveToStream(img *texture.Image, w io.Writer, opts Options) error {
	const op = "save"
	if img == nil || img.Disposed() {
		return NewError(op, ErrCannotCreate, texture.ErrDisposed)
	}
	if w == nil {
		return NewError(op, ErrCannotCreate, errors.New("nil writer"))
	}
	writable := a.cfg.Service.Writable()
	if len(writable) == 0 {
		return NewError(op, ErrFormatNotSupported, container.ErrNoEncoder)
	}
	target, ok := targetNative(img.Format, writable)
	if !ok {
		return NewError(op, ErrFormatNotSupported, errors.New(img.Format.String()))
	}

	enc, err := a.cfg.Service.NewEncoder(container.EncodeOptions{
		Quality:   opts.Quality,
		LoopCount: a.loopCount(img, opts),
	})
	if err != nil {
		return classify(op, ErrCannotCreate, err)
	}
	frames := 1
	if opts.UseAllFrames && a.cfg.Service.MultiFrame() {
		frames = img.ArrayCount
	}
	for item := 0; item < frames; item++ {
		if err := a.writeFrame(enc, img, item, target, opts); err != nil {
			return classify(op, ErrCannotCreate, err)
		}
	}
	if err := enc.Flush(w); err != nil {
		return classify(op, ErrCannotCreate, err)
	}
	return nil
}

func (a *Adapter) writeFrame(enc container.Encoder, img *texture.Image, item int, target pixfmt.Native, opts Options) error {
	buf := img.Buffer(0, item, 0)
	src, err := buf.Image()
	if err != nil {
		return err
	}
	srcNative, _ := pixfmt.ToNative(buf.Format)
	plan := placement.Place(src.Bounds(), srcNative, target, buf.Width, buf.Height, false)
	Logger().Debug("encode frame",
		"codec", a.cfg.Name, "frame", item, "format", buf.Format, "target", target, "plan", plan)

	req := placement.Request{
		Width:  buf.Width,
		Height: buf.Height,
		Target: target,
		Filter: opts.Filter,
		Dither: opts.Dither,
	}
	if target.IsIndexed() {
		if pal := a.palette(src, target, opts); pal != nil {
			defer pal.Release()
			req.Palette = pal
		}
	}
	out, err := placement.Apply(src, plan, req)
	if err != nil {
		return err
	}

	frame := container.Frame{Image: out, Native: target}
	if a.cfg.SetFrameOptions != nil {
		a.cfg.SetFrameOptions(&frame, img, item, opts)
	}
	return enc.AddFrame(frame)
}

func (a *Adapter) palette(img image.Image, target pixfmt.Native, opts Options) *palette.Info {
	if a.cfg.Palette != nil {
		return a.cfg.Palette(img, target, opts)
	}
	if opts.Palette != nil {
		return palette.Fixed(opts.Palette.Entries)
	}
	return nil
}

func (a *Adapter) loopCount(img *texture.Image, opts Options) int {
	if opts.LoopCount != 0 {
		return opts.LoopCount
	}
	if v, ok := img.Metadata[a.cfg.Kind.String()+".loop_count"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// targetNative picks the encoding frames of format f are written as:
// the exact mapping when the container accepts it, otherwise the closest
// writable encoding, reached through conversion.
func targetNative(f pixfmt.Format, writable []pixfmt.Native) (pixfmt.Native, bool) {
	if !f.Valid() || f.IsCompressed() {
		return pixfmt.NativeUnknown, false
	}
	if n, ok := pixfmt.ToNative(f, writable...); ok {
		return n, true
	}
	for _, n := range fallbacks(f) {
		if slices.Contains(writable, n) {
			return n, true
		}
	}
	return writable[0], true
}

func fallbacks(f pixfmt.Format) []pixfmt.Native {
	switch f {
	case pixfmt.R8UNorm:
		return []pixfmt.Native{pixfmt.NativeGray8, pixfmt.NativeGray16, pixfmt.NativeRGB24, pixfmt.NativeRGBA32}
	case pixfmt.R16UNorm:
		return []pixfmt.Native{pixfmt.NativeGray16, pixfmt.NativeGray8, pixfmt.NativeRGBA64, pixfmt.NativeRGB24}
	case pixfmt.R16G16B16A16UNorm, pixfmt.R10G10B10A2UNorm, pixfmt.R10G10B10XRBiasA2UNorm, pixfmt.R32G32B32A32Float:
		return []pixfmt.Native{pixfmt.NativeRGBA64, pixfmt.NativeRGBA32, pixfmt.NativeBGRA32, pixfmt.NativeRGB24}
	case pixfmt.B8G8R8X8UNorm, pixfmt.B5G6R5UNorm:
		return []pixfmt.Native{pixfmt.NativeRGB24, pixfmt.NativeBGR24, pixfmt.NativeRGBA32, pixfmt.NativeBGRA32}
	}
	return []pixfmt.Native{pixfmt.NativeRGBA32, pixfmt.NativeBGRA32, pixfmt.NativeRGBA64, pixfmt.NativeRGB24}
}

// openStream checks the stream capabilities needed for probing and
// returns the start position.
func openStream(op string, r io.Reader) (io.ReadSeeker, int64, error) {
	if r == nil {
		return nil, 0, NewError(op, ErrStreamNotReadable, nil)
	}
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		return nil, 0, NewError(op, ErrStreamNotSeekable, nil)
	}
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, NewError(op, ErrStreamNotSeekable, err)
	}
	return rs, start, nil
}

// checkSignature reads the container header at start, matches it with
// sniff and rewinds to start.
func checkSignature(op string, rs io.ReadSeeker, start int64, sniff func([]byte) bool) error {
	hdr := make([]byte, container.SniffLen)
	n, err := io.ReadFull(rs, hdr)
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return NewError(op, ErrEndOfStream, err)
	case err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF):
		return NewError(op, ErrStreamNotReadable, err)
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return NewError(op, ErrStreamNotSeekable, err)
	}
	if !sniff(hdr[:n]) {
		return NewError(op, ErrSignatureMismatch, nil)
	}
	return nil
}
