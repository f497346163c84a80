package palette

import (
	"image"
	"image/color"
	"testing"
)

func TestBuildKeepsFewColorsExactly(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	want := []color.NRGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 128},
	}
	for i := 0; i < 16; i++ {
		img.SetNRGBA(i%4, i/4, want[i%3])
	}

	info := Build(img, 256)
	defer info.Release()
	if len(info.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(info.Entries), len(want))
	}
	for _, w := range want {
		found := false
		for _, c := range info.Entries {
			if c == w {
				found = true
			}
		}
		if !found {
			t.Errorf("color %v missing from palette", w)
		}
	}
	if info.Kind != KindCustom {
		t.Errorf("kind %s", info.Kind)
	}
}

func TestBuildMedianCut(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 16), B: 64, A: 255})
		}
	}
	info := Build(img, 16)
	defer info.Release()
	if len(info.Entries) != 16 {
		t.Fatalf("got %d entries, want 16", len(info.Entries))
	}
	if info.AlphaPercentage != 0 {
		t.Errorf("opaque image gave alpha percentage %v", info.AlphaPercentage)
	}

	// Deterministic across runs.
	again := Build(img, 16)
	defer again.Release()
	for i := range info.Entries {
		if info.Entries[i] != again.Entries[i] {
			t.Fatalf("entry %d differs: %v vs %v", i, info.Entries[i], again.Entries[i])
		}
	}
}

func TestExtract(t *testing.T) {
	pal := color.Palette{
		color.NRGBA{R: 1, A: 255},
		color.NRGBA{G: 2, A: 255},
		color.NRGBA{B: 3, A: 0},
		color.NRGBA{R: 4, G: 4, A: 255},
	}
	p := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	info, ok := Extract(p)
	if !ok {
		t.Fatal("indexed frame not extracted")
	}
	defer info.Release()
	if info.Kind != KindExtracted || len(info.Entries) != 4 {
		t.Fatalf("kind %s, %d entries", info.Kind, len(info.Entries))
	}
	if info.AlphaPercentage != 25 {
		t.Errorf("alpha percentage %v, want 25", info.AlphaPercentage)
	}

	if _, ok := Extract(image.NewNRGBA(image.Rect(0, 0, 2, 2))); ok {
		t.Error("direct-color frame extracted")
	}
}

func TestExpand(t *testing.T) {
	pal := color.Palette{color.NRGBA{R: 10, A: 255}, color.NRGBA{G: 20, A: 100}}
	p := image.NewPaletted(image.Rect(3, 3, 6, 4), pal)
	p.SetColorIndex(3, 3, 0)
	p.SetColorIndex(4, 3, 1)
	p.Pix[p.PixOffset(5, 3)] = 7

	info := Fixed(pal)
	defer info.Release()
	out := info.Expand(p)
	if out.Bounds() != image.Rect(0, 0, 3, 1) {
		t.Fatalf("bounds %v", out.Bounds())
	}
	tests := []color.NRGBA{
		{R: 10, A: 255},
		{G: 20, A: 100},
		{},
	}
	for x, want := range tests {
		if got := out.NRGBAAt(x, 0); got != want {
			t.Errorf("x=%d: %v, want %v", x, got, want)
		}
	}
}

func TestQuantizeExactColors(t *testing.T) {
	pal := color.Palette{color.NRGBA{A: 255}, color.NRGBA{R: 255, G: 255, B: 255, A: 255}}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{A: 255})

	info := Fixed(pal)
	out := info.Quantize(img, DitherNone)
	info.Release()
	if out.ColorIndexAt(0, 0) != 1 || out.ColorIndexAt(1, 0) != 0 {
		t.Errorf("indices %d %d", out.ColorIndexAt(0, 0), out.ColorIndexAt(1, 0))
	}
	if len(out.Palette) != 2 {
		t.Errorf("quantized palette has %d entries after release", len(out.Palette))
	}
}

func TestGrayscale(t *testing.T) {
	info := Grayscale(4)
	defer info.Release()
	want := []uint8{0, 85, 170, 255}
	if len(info.Entries) != len(want) {
		t.Fatalf("got %d entries", len(info.Entries))
	}
	for i, w := range want {
		if got := info.Entries[i].(color.Gray).Y; got != w {
			t.Errorf("entry %d: %d, want %d", i, got, w)
		}
	}
}

func TestReleaseKeepsCopies(t *testing.T) {
	info := Fixed(color.Palette{color.Black, color.White})
	cp := info.Palette()
	info.Release()
	if info.Entries != nil {
		t.Error("entries survive release")
	}
	if len(cp) != 2 {
		t.Errorf("copy has %d entries", len(cp))
	}
	info.Release()
}
