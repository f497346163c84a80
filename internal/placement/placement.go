// Package placement decides how a decoded frame lands in a destination
// surface (copy, scale or clip) and performs the resulting operation,
// including any pixel-format conversion.
package placement

import (
	"fmt"
	"image"
	"image/color"

	"github.com/AnyUserName/texpipe/internal/palette"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Mode is the size operation of a plan.
type Mode int

const (
	DirectCopy Mode = iota
	Scale
	Clip
)

func (m Mode) String() string {
	switch m {
	case DirectCopy:
		return "copy"
	case Scale:
		return "scale"
	case Clip:
		return "clip"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Plan is the outcome of Place.
type Plan struct {
	Mode            Mode
	NeedsConversion bool
}

func (p Plan) String() string {
	if p.NeedsConversion {
		return p.Mode.String() + "+convert"
	}
	return p.Mode.String()
}

// Place picks the operation that moves a frame of native encoding src
// into a w×h surface of native encoding dst. A direct copy happens only
// when both encoding and size match; otherwise an explicit clip request
// wins over scaling, even though it may drop edge pixels.
func Place(frame image.Rectangle, src, dst pixfmt.Native, w, h int, clip bool) Plan {
	sameSize := frame.Dx() == w && frame.Dy() == h
	switch {
	case src == dst && sameSize:
		return Plan{Mode: DirectCopy}
	case clip:
		return Plan{Mode: Clip, NeedsConversion: src != dst}
	default:
		return Plan{Mode: Scale, NeedsConversion: src != dst}
	}
}

// Filter selects the resampling kernel used by Scale.
type Filter int

const (
	FilterLinear Filter = iota
	FilterPoint
	FilterCubic
	FilterBox
	FilterLanczos
)

var filterNames = map[string]Filter{
	"linear":  FilterLinear,
	"point":   FilterPoint,
	"cubic":   FilterCubic,
	"box":     FilterBox,
	"lanczos": FilterLanczos,
}

// ParseFilter resolves a filter name such as "lanczos".
func ParseFilter(name string) (Filter, bool) {
	f, ok := filterNames[name]
	return f, ok
}

func (f Filter) String() string {
	for name, v := range filterNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("Filter(%d)", int(f))
}

func (f Filter) resample() imaging.ResampleFilter {
	switch f {
	case FilterPoint:
		return imaging.NearestNeighbor
	case FilterCubic:
		return imaging.CatmullRom
	case FilterBox:
		return imaging.Box
	case FilterLanczos:
		return imaging.Lanczos
	}
	return imaging.Linear
}

func (f Filter) interpolator() draw.Interpolator {
	switch f {
	case FilterPoint:
		return draw.NearestNeighbor
	case FilterBox:
		return draw.ApproxBiLinear
	case FilterCubic, FilterLanczos:
		return draw.CatmullRom
	}
	return draw.BiLinear
}

// Request carries the destination parameters of Apply.
type Request struct {
	Width, Height int
	// Offset is where the frame's top-left corner lands on a clip.
	Offset image.Point
	Target pixfmt.Native
	Filter Filter
	Dither palette.Dither
	// Palette, when set, is used for indexed targets instead of one built
	// from the pixels. Apply does not release it.
	Palette *palette.Info
}

// Apply executes plan on src and returns an origin-based image in the
// target encoding (or src itself for a plain copy).
func Apply(src image.Image, plan Plan, req Request) (image.Image, error) {
	if req.Width < 1 || req.Height < 1 {
		return nil, fmt.Errorf("placement: invalid target size %dx%d", req.Width, req.Height)
	}
	if plan.NeedsConversion {
		if info, ok := palette.Extract(src); ok {
			src = info.Expand(src.(*image.Paletted))
			info.Release()
		}
	}

	deep := pixfmt.NativeOf(src).Deep() || req.Target.Deep()
	var out image.Image
	switch plan.Mode {
	case DirectCopy:
		out = src
	case Scale:
		out = scale(src, req.Width, req.Height, req.Filter, deep)
	case Clip:
		out = clip(src, req.Width, req.Height, req.Offset, deep)
	default:
		return nil, fmt.Errorf("placement: unknown mode %v", plan.Mode)
	}

	if !plan.NeedsConversion {
		return out, nil
	}
	return convert(out, req)
}

func scale(src image.Image, w, h int, f Filter, deep bool) image.Image {
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return src
	}
	if !deep {
		return imaging.Resize(src, w, h, f.resample())
	}
	dst := image.NewNRGBA64(image.Rect(0, 0, w, h))
	f.interpolator().Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// clip places src at off on a transparent w×h canvas; anything outside
// the canvas is dropped.
func clip(src image.Image, w, h int, off image.Point, deep bool) image.Image {
	if !deep {
		return imaging.Paste(imaging.New(w, h, color.NRGBA{}), src, off)
	}
	dst := image.NewNRGBA64(image.Rect(0, 0, w, h))
	r := image.Rectangle{Min: off, Max: off.Add(src.Bounds().Size())}
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Src)
	return dst
}

func convert(img image.Image, req Request) (image.Image, error) {
	if !req.Target.IsIndexed() {
		return pixfmt.Convert(img, req.Target)
	}
	info := req.Palette
	if info == nil {
		if req.Target == pixfmt.NativeBlackWhite {
			info = palette.Grayscale(2)
		} else {
			info = palette.Build(img, req.Target.PaletteSize())
		}
		defer info.Release()
	}
	return info.Quantize(img, req.Dither), nil
}
