package container

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: uint8(y * 16), B: 50, A: 255})
		}
	}
	return img
}

func paletted(w, h int, idx uint8) *image.Paletted {
	pal := color.Palette{color.Black, color.White, color.NRGBA{R: 255, A: 255}, color.NRGBA{B: 255, A: 255}}
	img := image.NewPaletted(image.Rect(0, 0, w, h), pal)
	for i := range img.Pix {
		img.Pix[i] = idx
	}
	return img
}

func encode(t *testing.T, s Service, frames ...Frame) []byte {
	t.Helper()
	enc, err := s.NewEncoder(EncodeOptions{Quality: 80, LoopCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range frames {
		if err := enc.AddFrame(f); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := enc.Flush(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestStillRoundtrip(t *testing.T) {
	src := gradient(5, 3)
	tests := []struct {
		svc    Service
		native pixfmt.Native
	}{
		{PNG(), pixfmt.NativeRGBA32},
		{TIFF(), pixfmt.NativeRGBA32},
		{BMP(), pixfmt.NativeBGRA32},
		{JPEG(), pixfmt.NativeRGB24},
	}
	for _, tt := range tests {
		t.Run(tt.svc.Name(), func(t *testing.T) {
			data := encode(t, tt.svc, Frame{Image: src, Native: tt.native})
			if !tt.svc.Sniff(data[:SniffLen]) {
				t.Fatal("own output not sniffed")
			}

			cfg, err := tt.svc.Probe(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Width != 5 || cfg.Height != 3 || cfg.FrameCount != 1 {
				t.Errorf("probe %+v", cfg)
			}

			d, err := tt.svc.Open(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			f, err := d.Frame(0)
			if err != nil {
				t.Fatal(err)
			}
			if f.Image.Bounds().Size() != (image.Point{5, 3}) {
				t.Errorf("decoded bounds %v", f.Image.Bounds())
			}
			if _, err := d.Frame(1); !errors.Is(err, ErrFrameIndex) {
				t.Errorf("frame 1: %v", err)
			}
		})
	}
}

func TestSniff(t *testing.T) {
	riff := []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
	for _, s := range All() {
		got := s.Sniff(riff)
		if got != (s.Name() == "webp") {
			t.Errorf("%s sniffed webp header: %v", s.Name(), got)
		}
		if s.Sniff(nil) {
			t.Errorf("%s sniffed an empty header", s.Name())
		}
	}
	if !TIFF().Sniff([]byte("MM\x00*")) || !GIF().Sniff([]byte("GIF87a")) {
		t.Error("alternate signatures rejected")
	}
}

func TestEncoderRejects(t *testing.T) {
	if _, err := WebP().NewEncoder(EncodeOptions{}); !errors.Is(err, ErrNoEncoder) {
		t.Errorf("webp encoder: %v", err)
	}

	enc, err := PNG().NewEncoder(EncodeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.Flush(io.Discard); !errors.Is(err, ErrFrameRejected) {
		t.Errorf("empty flush: %v", err)
	}

	big := make(color.Palette, 20)
	for i := range big {
		big[i] = color.Gray{Y: uint8(i)}
	}
	rejected := []Frame{
		{},
		{Image: image.NewNRGBA(image.Rect(0, 0, 0, 4)), Native: pixfmt.NativeRGBA32},
		{Image: gradient(2, 2), Native: pixfmt.NativeCMYK32},
		{Image: gradient(2, 2), Native: pixfmt.NativeIndexed8},
		{Image: image.NewPaletted(image.Rect(0, 0, 2, 2), big), Native: pixfmt.NativeIndexed4},
	}
	for i, f := range rejected {
		if err := enc.AddFrame(f); !errors.Is(err, ErrFrameRejected) {
			t.Errorf("frame %d: %v", i, err)
		}
	}

	// A still container holds exactly one frame.
	if err := enc.AddFrame(Frame{Image: gradient(2, 2), Native: pixfmt.NativeRGBA32}); err != nil {
		t.Fatal(err)
	}
	if err := enc.AddFrame(Frame{Image: gradient(2, 2), Native: pixfmt.NativeRGBA32}); !errors.Is(err, ErrFrameRejected) {
		t.Errorf("second frame: %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	data := encode(t, PNG(), Frame{Image: gradient(8, 8), Native: pixfmt.NativeRGBA32})

	// Cut inside the IHDR chunk.
	if _, err := PNG().Open(bytes.NewReader(data[:20])); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated: %v", err)
	}
	if _, err := BMP().Open(bytes.NewReader([]byte("BMgarbage"))); err == nil {
		t.Error("garbage decoded")
	}
	if _, err := GIF().Probe(bytes.NewReader([]byte("GIF89a"))); err == nil {
		t.Error("header-only gif probed")
	}
}

func TestGIFFrames(t *testing.T) {
	first := paletted(6, 4, 2)
	second := paletted(2, 2, 3)
	data := encode(t, GIF(),
		Frame{Image: first, Native: pixfmt.NativeIndexed2, Delay: 5},
		Frame{Image: second, Native: pixfmt.NativeIndexed2, Offset: image.Pt(3, 1), Delay: 7},
	)

	cfg, err := GIF().Probe(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 6 || cfg.Height != 4 || cfg.FrameCount != 2 || cfg.LoopCount != 2 {
		t.Errorf("config %+v", cfg)
	}

	d, err := GIF().Open(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	f, err := d.Frame(1)
	if err != nil {
		t.Fatal(err)
	}
	if f.Offset != image.Pt(3, 1) || f.Delay != 7 || f.Image.Bounds().Size() != (image.Point{2, 2}) {
		t.Errorf("frame 1: offset %v delay %d bounds %v", f.Offset, f.Delay, f.Image.Bounds())
	}
	if f.Native != pixfmt.NativeIndexed2 {
		t.Errorf("native %s", f.Native)
	}
	if _, err := d.Frame(2); !errors.Is(err, ErrFrameIndex) {
		t.Errorf("frame 2: %v", err)
	}
}
