package pixfmt

import (
	"image"
	"image/color"
)

// Native identifies a pixel encoding as exposed by a container codec or
// by a simple bitmap. There are far more native encodings than internal
// formats; many are equivalent up to a lossless promotion.
type Native int

const (
	NativeUnknown Native = iota
	NativeBlackWhite
	NativeIndexed1
	NativeIndexed2
	NativeIndexed4
	NativeIndexed8
	NativeGray2
	NativeGray4
	NativeGray8
	NativeGray16
	NativeGray32Float
	NativeAlpha8
	NativeBGR555
	NativeBGR565
	NativeBGRA5551
	NativeBGR24
	NativeRGB24
	NativeBGR32
	NativeBGRA32
	NativePBGRA32
	NativeRGBA32
	NativePRGBA32
	NativeRGB48
	NativeRGBA64
	NativePRGBA64
	NativeRGBA1010102
	NativeRGBA1010102XR
	NativeRGBA128Float
	NativeYCbCr
	NativeYCbCrA
	NativeCMYK32
)

var nativeNames = [...]string{
	"unknown", "bw", "indexed1", "indexed2", "indexed4", "indexed8",
	"gray2", "gray4", "gray8", "gray16", "gray32f", "alpha8",
	"bgr555", "bgr565", "bgra5551", "bgr24", "rgb24", "bgr32", "bgra32",
	"pbgra32", "rgba32", "prgba32", "rgb48", "rgba64", "prgba64",
	"rgba1010102", "rgba1010102xr", "rgba128f", "ycbcr", "ycbcra", "cmyk32",
}

func (n Native) String() string {
	if n >= 0 && int(n) < len(nativeNames) {
		return nativeNames[n]
	}
	return "invalid"
}

// IsIndexed reports whether pixels of n are palette indices.
func (n Native) IsIndexed() bool {
	switch n {
	case NativeBlackWhite, NativeIndexed1, NativeIndexed2, NativeIndexed4, NativeIndexed8:
		return true
	}
	return false
}

// PaletteSize is the maximum palette length for an indexed encoding.
func (n Native) PaletteSize() int {
	switch n {
	case NativeBlackWhite, NativeIndexed1:
		return 2
	case NativeIndexed2:
		return 4
	case NativeIndexed4:
		return 16
	case NativeIndexed8:
		return 256
	}
	return 0
}

// Opaque reports whether n has no alpha channel.
func (n Native) Opaque() bool {
	switch n {
	case NativeBGR555, NativeBGR565, NativeBGR24, NativeRGB24, NativeBGR32,
		NativeRGB48, NativeYCbCr, NativeCMYK32:
		return true
	}
	return false
}

// DecodeFlags adjust the best-fit mapping on the decode path.
type DecodeFlags uint32

const (
	// ForceRGB promotes grayscale and BGR encodings to RGBA.
	ForceRGB DecodeFlags = 1 << iota
	// NoX2Bias maps extended-range 10-bit data to plain R10G10B10A2.
	NoX2Bias
	// No16BPP promotes 565/5551 encodings to 32-bit RGBA.
	No16BPP
	// Allow1Bit maps black/white to 8-bit grayscale instead of RGBA.
	Allow1Bit
)

// promotions maps a native encoding to the canonical native encoding
// it is losslessly promoted to before the internal lookup.
var promotions = map[Native]Native{
	NativeBlackWhite:  NativeRGBA32,
	NativeIndexed1:    NativeRGBA32,
	NativeIndexed2:    NativeRGBA32,
	NativeIndexed4:    NativeRGBA32,
	NativeIndexed8:    NativeRGBA32,
	NativeGray2:       NativeGray8,
	NativeGray4:       NativeGray8,
	NativeGray32Float: NativeRGBA128Float,
	NativeBGR555:      NativeBGRA5551,
	NativeBGR24:       NativeRGBA32,
	NativeRGB24:       NativeRGBA32,
	NativePBGRA32:     NativeBGRA32,
	NativePRGBA32:     NativeRGBA32,
	NativeRGB48:       NativeRGBA64,
	NativePRGBA64:     NativeRGBA64,
	NativeYCbCr:       NativeRGBA32,
	NativeYCbCrA:      NativeRGBA32,
	NativeCMYK32:      NativeRGBA32,
}

// canonical maps canonical native encodings to internal formats.
var canonical = []struct {
	native Native
	format Format
}{
	{NativeRGBA32, R8G8B8A8UNorm},
	{NativeBGRA32, B8G8R8A8UNorm},
	{NativeBGR32, B8G8R8X8UNorm},
	{NativeRGBA64, R16G16B16A16UNorm},
	{NativeGray8, R8UNorm},
	{NativeGray16, R16UNorm},
	{NativeAlpha8, A8UNorm},
	{NativeBGR565, B5G6R5UNorm},
	{NativeBGRA5551, B5G5R5A1UNorm},
	{NativeRGBA1010102, R10G10B10A2UNorm},
	{NativeRGBA1010102XR, R10G10B10XRBiasA2UNorm},
	{NativeRGBA128Float, R32G32B32A32Float},
}

// Promote returns the canonical encoding of n under flags.
func Promote(n Native, flags DecodeFlags) Native {
	if n == NativeBlackWhite && flags&Allow1Bit != 0 {
		return NativeGray8
	}
	if p, ok := promotions[n]; ok {
		n = p
	}
	switch {
	case n == NativeRGBA1010102XR && flags&NoX2Bias != 0:
		n = NativeRGBA1010102
	case (n == NativeBGR565 || n == NativeBGRA5551) && flags&No16BPP != 0:
		n = NativeRGBA32
	}
	if flags&ForceRGB != 0 {
		switch n {
		case NativeGray8, NativeAlpha8, NativeBGRA32, NativeBGR32:
			n = NativeRGBA32
		case NativeGray16:
			n = NativeRGBA64
		}
	}
	return n
}

// ToInternal finds the best-fit internal format for a native encoding.
func ToInternal(n Native, flags DecodeFlags) (Format, bool) {
	c := Promote(n, flags)
	for _, e := range canonical {
		if e.native == c {
			return e.format, true
		}
	}
	return FormatUnknown, false
}

// ToNative returns the native encoding an internal format is stored as.
// When writable is non-empty the result must be one of its members.
func ToNative(f Format, writable ...Native) (Native, bool) {
	for _, e := range canonical {
		if e.format != f {
			continue
		}
		if len(writable) == 0 {
			return e.native, true
		}
		for _, w := range writable {
			if w == e.native {
				return e.native, true
			}
		}
		return NativeUnknown, false
	}
	return NativeUnknown, false
}

// NativeOfModel classifies a color model reported by a decoder's
// DecodeConfig.
func NativeOfModel(m color.Model) Native {
	if p, ok := m.(color.Palette); ok {
		if isBlackWhite(p) {
			return NativeBlackWhite
		}
		return indexedFor(len(p))
	}
	switch m {
	case color.GrayModel:
		return NativeGray8
	case color.Gray16Model:
		return NativeGray16
	case color.AlphaModel:
		return NativeAlpha8
	case color.RGBAModel:
		return NativePRGBA32
	case color.NRGBAModel:
		return NativeRGBA32
	case color.RGBA64Model:
		return NativePRGBA64
	case color.NRGBA64Model:
		return NativeRGBA64
	case color.YCbCrModel:
		return NativeYCbCr
	case color.NYCbCrAModel:
		return NativeYCbCrA
	case color.CMYKModel:
		return NativeCMYK32
	}
	return NativeUnknown
}

// NativeOf classifies a decoded image.
func NativeOf(img image.Image) Native {
	switch im := img.(type) {
	case *image.Paletted:
		if isBlackWhite(im.Palette) {
			return NativeBlackWhite
		}
		return indexedFor(len(im.Palette))
	case *image.NYCbCrA:
		return NativeYCbCrA
	case *image.YCbCr:
		return NativeYCbCr
	case nil:
		return NativeUnknown
	}
	return NativeOfModel(img.ColorModel())
}

func indexedFor(n int) Native {
	switch {
	case n <= 2:
		return NativeIndexed1
	case n <= 4:
		return NativeIndexed2
	case n <= 16:
		return NativeIndexed4
	default:
		return NativeIndexed8
	}
}

func isBlackWhite(p color.Palette) bool {
	if len(p) != 2 {
		return false
	}
	var seen [2]bool
	for _, c := range p {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		switch {
		case n.A != 0xff || n.R != n.G || n.G != n.B:
			return false
		case n.R == 0:
			seen[0] = true
		case n.R == 0xff:
			seen[1] = true
		default:
			return false
		}
	}
	return seen[0] && seen[1]
}
