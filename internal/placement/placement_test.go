package placement

import (
	"image"
	"image/color"
	"testing"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
)

func TestPlace(t *testing.T) {
	r := image.Rect(0, 0, 8, 4)
	tests := []struct {
		name     string
		src, dst pixfmt.Native
		w, h     int
		clip     bool
		want     Plan
	}{
		{"same", pixfmt.NativeRGBA32, pixfmt.NativeRGBA32, 8, 4, false, Plan{Mode: DirectCopy}},
		{"same with clip", pixfmt.NativeRGBA32, pixfmt.NativeRGBA32, 8, 4, true, Plan{Mode: DirectCopy}},
		{"resize", pixfmt.NativeRGBA32, pixfmt.NativeRGBA32, 4, 2, false, Plan{Mode: Scale}},
		{"clip", pixfmt.NativeRGBA32, pixfmt.NativeRGBA32, 4, 2, true, Plan{Mode: Clip}},
		{"convert", pixfmt.NativeBGR24, pixfmt.NativeRGBA32, 8, 4, false, Plan{Mode: Scale, NeedsConversion: true}},
		{"convert clip", pixfmt.NativeGray8, pixfmt.NativeRGBA32, 8, 4, true, Plan{Mode: Clip, NeedsConversion: true}},
		{"indexed", pixfmt.NativeIndexed8, pixfmt.NativeRGBA32, 8, 4, false, Plan{Mode: Scale, NeedsConversion: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Place(r, tt.src, tt.dst, tt.w, tt.h, tt.clip); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPlaceTotal(t *testing.T) {
	r := image.Rect(0, 0, 2, 2)
	for src := pixfmt.NativeUnknown; src <= pixfmt.NativeCMYK32; src++ {
		for dst := pixfmt.NativeUnknown; dst <= pixfmt.NativeCMYK32; dst++ {
			for _, clip := range []bool{false, true} {
				p := Place(r, src, dst, 3, 2, clip)
				if p.Mode == DirectCopy {
					t.Fatalf("%s->%s: direct copy with different size", src, dst)
				}
				if p.NeedsConversion != (src != dst) {
					t.Fatalf("%s->%s: conversion %v", src, dst, p.NeedsConversion)
				}
			}
		}
	}
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestApplyIndexedToRGBA(t *testing.T) {
	pal := color.Palette{color.NRGBA{R: 255, A: 255}, color.NRGBA{B: 255, A: 255}}
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	src.SetColorIndex(1, 1, 1)

	plan := Place(src.Bounds(), pixfmt.NativeOf(src), pixfmt.NativeRGBA32, 2, 2, false)
	out, err := Apply(src, plan, Request{Width: 2, Height: 2, Target: pixfmt.NativeRGBA32})
	if err != nil {
		t.Fatal(err)
	}
	nrgba, ok := out.(*image.NRGBA)
	if !ok {
		t.Fatalf("got %T", out)
	}
	if got := nrgba.NRGBAAt(0, 0); got != (color.NRGBA{R: 255, A: 255}) {
		t.Errorf("(0,0) = %v", got)
	}
	if got := nrgba.NRGBAAt(1, 1); got != (color.NRGBA{B: 255, A: 255}) {
		t.Errorf("(1,1) = %v", got)
	}
}

func TestApplyScale(t *testing.T) {
	src := solid(8, 8, color.NRGBA{G: 200, A: 255})
	out, err := Apply(src, Plan{Mode: Scale}, Request{Width: 3, Height: 5, Target: pixfmt.NativeRGBA32, Filter: FilterLanczos})
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds() != image.Rect(0, 0, 3, 5) {
		t.Fatalf("bounds %v", out.Bounds())
	}
	if r, g, b, a := out.At(1, 2).RGBA(); r != 0 || g>>8 != 200 || b != 0 || a != 0xffff {
		t.Errorf("center %d %d %d %d", r, g, b, a)
	}
}

func TestApplyClip(t *testing.T) {
	red := color.NRGBA{R: 255, A: 255}
	src := solid(4, 4, red)

	out, err := Apply(src, Plan{Mode: Clip}, Request{Width: 2, Height: 2, Target: pixfmt.NativeRGBA32})
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Size() != image.Pt(2, 2) {
		t.Fatalf("size %v", out.Bounds().Size())
	}
	if got := color.NRGBAModel.Convert(out.At(1, 1)); got != red {
		t.Errorf("clipped pixel %v", got)
	}

	out, err = Apply(src, Plan{Mode: Clip}, Request{Width: 6, Height: 6, Offset: image.Pt(1, 1), Target: pixfmt.NativeRGBA32})
	if err != nil {
		t.Fatal(err)
	}
	if got := color.NRGBAModel.Convert(out.At(0, 0)); got != (color.NRGBA{}) {
		t.Errorf("uncovered pixel %v", got)
	}
	if got := color.NRGBAModel.Convert(out.At(4, 4)); got != red {
		t.Errorf("covered pixel %v", got)
	}
}

func TestApplyDeepClip(t *testing.T) {
	src := image.NewNRGBA64(image.Rect(0, 0, 2, 2))
	src.SetNRGBA64(0, 0, color.NRGBA64{R: 0x1234, A: 0xffff})
	out, err := Apply(src, Plan{Mode: Clip}, Request{Width: 3, Height: 3, Target: pixfmt.NativeRGBA64})
	if err != nil {
		t.Fatal(err)
	}
	d, ok := out.(*image.NRGBA64)
	if !ok {
		t.Fatalf("got %T", out)
	}
	if got := d.NRGBA64At(0, 0); got.R != 0x1234 {
		t.Errorf("16-bit value lost: %v", got)
	}
}

func TestApplyQuantizes(t *testing.T) {
	src := solid(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, A: 255})
	plan := Place(src.Bounds(), pixfmt.NativeRGBA32, pixfmt.NativeIndexed8, 4, 4, false)
	out, err := Apply(src, plan, Request{Width: 4, Height: 4, Target: pixfmt.NativeIndexed8})
	if err != nil {
		t.Fatal(err)
	}
	p, ok := out.(*image.Paletted)
	if !ok {
		t.Fatalf("got %T", out)
	}
	if len(p.Palette) != 2 {
		t.Errorf("palette has %d entries, want 2", len(p.Palette))
	}
	if p.ColorIndexAt(0, 0) == p.ColorIndexAt(1, 1) {
		t.Error("distinct colors share an index")
	}
}

func TestApplyRejectsEmptyTarget(t *testing.T) {
	if _, err := Apply(solid(1, 1, color.NRGBA{}), Plan{Mode: Scale}, Request{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseFilter(t *testing.T) {
	for _, name := range []string{"point", "linear", "cubic", "box", "lanczos"} {
		f, ok := ParseFilter(name)
		if !ok || f.String() != name {
			t.Errorf("%s: %v %v", name, f, ok)
		}
	}
	if _, ok := ParseFilter("gaussian"); ok {
		t.Error("unknown filter accepted")
	}
}

func BenchmarkScale(b *testing.B) {
	src := image.NewNRGBA(image.Rect(0, 0, 512, 512))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 3)
	}
	plan := Place(src.Bounds(), pixfmt.NativeRGBA32, pixfmt.NativeRGBA32, 128, 128, false)
	for _, f := range []Filter{FilterLinear, FilterLanczos} {
		b.Run(f.String(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Apply(src, plan, Request{Width: 128, Height: 128, Target: pixfmt.NativeRGBA32, Filter: f}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
