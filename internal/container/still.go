package container

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/gen2brain/jpegn"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// still is a single-frame container backed by decode/encode functions.
type still struct {
	name         string
	sniff        func([]byte) bool
	decode       func(io.Reader) (image.Image, error)
	decodeConfig func(io.Reader) (image.Config, error)
	encode       func(io.Writer, image.Image, EncodeOptions) error
	writable     []pixfmt.Native
}

func (s *still) Name() string              { return s.name }
func (s *still) Sniff(h []byte) bool       { return s.sniff(h) }
func (s *still) Writable() []pixfmt.Native { return s.writable }
func (s *still) MultiFrame() bool          { return false }

func (s *still) Probe(r io.Reader) (Config, error) {
	var cfg image.Config
	err := guard(s.name, func() (err error) {
		cfg, err = s.decodeConfig(r)
		return err
	})
	if err != nil {
		return Config{}, err
	}
	return Config{
		Width:      cfg.Width,
		Height:     cfg.Height,
		FrameCount: 1,
		Native:     pixfmt.NativeOfModel(cfg.ColorModel),
	}, nil
}

func (s *still) Open(r io.Reader) (Decoder, error) {
	var img image.Image
	err := guard(s.name, func() (err error) {
		img, err = s.decode(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stillDecoder{img: img}, nil
}

func (s *still) NewEncoder(opts EncodeOptions) (Encoder, error) {
	if s.encode == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoEncoder, s.name)
	}
	return &stillEncoder{svc: s, opts: opts}, nil
}

type stillDecoder struct {
	img image.Image
}

func (d stillDecoder) Config() Config {
	b := d.img.Bounds()
	return Config{Width: b.Dx(), Height: b.Dy(), FrameCount: 1, Native: pixfmt.NativeOf(d.img)}
}

func (d stillDecoder) Frame(i int) (Frame, error) {
	if i != 0 {
		return Frame{}, fmt.Errorf("%w: %d of 1", ErrFrameIndex, i)
	}
	return Frame{Image: d.img, Native: pixfmt.NativeOf(d.img)}, nil
}

type stillEncoder struct {
	svc   *still
	opts  EncodeOptions
	frame *Frame
}

func (e *stillEncoder) AddFrame(f Frame) error {
	if e.frame != nil {
		return fmt.Errorf("%w: %s holds a single frame", ErrFrameRejected, e.svc.name)
	}
	if err := validateFrame(f, e.svc.writable); err != nil {
		return err
	}
	e.frame = &f
	return nil
}

func (e *stillEncoder) Flush(w io.Writer) error {
	if e.frame == nil {
		return fmt.Errorf("%w: no frame committed", ErrFrameRejected)
	}
	var buf bytes.Buffer
	if err := e.svc.encode(&buf, e.frame.Image, e.opts); err != nil {
		return fmt.Errorf("%s encode: %w", e.svc.name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func hasPrefix(h []byte, sig string) bool {
	return len(h) >= len(sig) && string(h[:len(sig)]) == sig
}

// PNG returns the PNG service.
func PNG() Service {
	enc := &png.Encoder{CompressionLevel: png.BestCompression}
	return &still{
		name:         "png",
		sniff:        func(h []byte) bool { return hasPrefix(h, "\x89PNG\r\n\x1a\n") },
		decode:       png.Decode,
		decodeConfig: png.DecodeConfig,
		encode: func(w io.Writer, img image.Image, _ EncodeOptions) error {
			return enc.Encode(w, img)
		},
		writable: []pixfmt.Native{
			pixfmt.NativeRGBA32, pixfmt.NativeRGBA64, pixfmt.NativeGray8, pixfmt.NativeGray16,
			pixfmt.NativeIndexed8, pixfmt.NativeIndexed4, pixfmt.NativeIndexed2,
			pixfmt.NativeIndexed1, pixfmt.NativeBlackWhite,
		},
	}
}

// JPEG returns the JPEG service. Decoding goes through jpegn, which falls
// back to the standard decoder for progressive and CMYK streams.
func JPEG() Service {
	return &still{
		name:  "jpeg",
		sniff: func(h []byte) bool { return hasPrefix(h, "\xff\xd8") },
		decode: func(r io.Reader) (image.Image, error) {
			return jpegn.Decode(r)
		},
		decodeConfig: jpegn.DecodeConfig,
		encode: func(w io.Writer, img image.Image, o EncodeOptions) error {
			q := o.Quality
			if q <= 0 || q > 100 {
				q = 90
			}
			return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
		},
		writable: []pixfmt.Native{pixfmt.NativeRGB24, pixfmt.NativeGray8},
	}
}

// BMP returns the BMP service.
func BMP() Service {
	return &still{
		name:         "bmp",
		sniff:        func(h []byte) bool { return hasPrefix(h, "BM") },
		decode:       bmp.Decode,
		decodeConfig: bmp.DecodeConfig,
		encode: func(w io.Writer, img image.Image, _ EncodeOptions) error {
			return bmp.Encode(w, img)
		},
		writable: []pixfmt.Native{
			pixfmt.NativeBGR24, pixfmt.NativeBGRA32, pixfmt.NativeGray8, pixfmt.NativeIndexed8,
		},
	}
}

// TIFF returns the TIFF service. Only the first image directory is read.
func TIFF() Service {
	return &still{
		name: "tiff",
		sniff: func(h []byte) bool {
			return hasPrefix(h, "II*\x00") || hasPrefix(h, "MM\x00*")
		},
		decode:       tiff.Decode,
		decodeConfig: tiff.DecodeConfig,
		encode: func(w io.Writer, img image.Image, _ EncodeOptions) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		},
		writable: []pixfmt.Native{
			pixfmt.NativeRGBA32, pixfmt.NativeRGBA64, pixfmt.NativeGray8, pixfmt.NativeGray16,
			pixfmt.NativeIndexed8,
		},
	}
}

// WebP returns the decode-only WebP service.
func WebP() Service {
	return &still{
		name: "webp",
		sniff: func(h []byte) bool {
			return len(h) >= 12 && string(h[:4]) == "RIFF" && string(h[8:12]) == "WEBP"
		},
		decode:       webp.Decode,
		decodeConfig: webp.DecodeConfig,
	}
}
