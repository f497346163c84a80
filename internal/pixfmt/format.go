// Package pixfmt maps between the internal pixel formats of the uniform
// image representation and the native encodings produced or accepted by
// container decoders and encoders.
package pixfmt

import "fmt"

// Format is an internal pixel format. Buffers store pixels little-endian,
// tightly packed per row.
type Format int

const (
	FormatUnknown Format = iota
	R8G8B8A8UNorm
	B8G8R8A8UNorm
	B8G8R8X8UNorm
	R16G16B16A16UNorm
	R8UNorm
	R16UNorm
	A8UNorm
	B5G6R5UNorm
	B5G5R5A1UNorm
	R10G10B10A2UNorm
	R10G10B10XRBiasA2UNorm
	R32G32B32A32Float
	BC1UNorm
	BC2UNorm
	BC3UNorm
)

type formatInfo struct {
	name       string
	ident      string
	bpp        int // bits per pixel, 0 for block formats
	blockBytes int // bytes per 4x4 block, 0 for linear formats
	alpha      bool
}

var formats = map[Format]formatInfo{
	R8G8B8A8UNorm:          {"R8G8B8A8_UNORM", "R8G8B8A8UNorm", 32, 0, true},
	B8G8R8A8UNorm:          {"B8G8R8A8_UNORM", "B8G8R8A8UNorm", 32, 0, true},
	B8G8R8X8UNorm:          {"B8G8R8X8_UNORM", "B8G8R8X8UNorm", 32, 0, false},
	R16G16B16A16UNorm:      {"R16G16B16A16_UNORM", "R16G16B16A16UNorm", 64, 0, true},
	R8UNorm:                {"R8_UNORM", "R8UNorm", 8, 0, false},
	R16UNorm:               {"R16_UNORM", "R16UNorm", 16, 0, false},
	A8UNorm:                {"A8_UNORM", "A8UNorm", 8, 0, true},
	B5G6R5UNorm:            {"B5G6R5_UNORM", "B5G6R5UNorm", 16, 0, false},
	B5G5R5A1UNorm:          {"B5G5R5A1_UNORM", "B5G5R5A1UNorm", 16, 0, true},
	R10G10B10A2UNorm:       {"R10G10B10A2_UNORM", "R10G10B10A2UNorm", 32, 0, true},
	R10G10B10XRBiasA2UNorm: {"R10G10B10_XR_BIAS_A2_UNORM", "R10G10B10XRBiasA2UNorm", 32, 0, true},
	R32G32B32A32Float:      {"R32G32B32A32_FLOAT", "R32G32B32A32Float", 128, 0, true},
	BC1UNorm:               {"BC1_UNORM", "BC1UNorm", 0, 8, true},
	BC2UNorm:               {"BC2_UNORM", "BC2UNorm", 0, 16, true},
	BC3UNorm:               {"BC3_UNORM", "BC3UNorm", 0, 16, true},
}

func (f Format) String() string {
	if fi, ok := formats[f]; ok {
		return fi.name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	_, ok := formats[f]
	return ok
}

// BitsPerPixel returns 0 for block-compressed and unknown formats.
func (f Format) BitsPerPixel() int { return formats[f].bpp }

// IsCompressed reports whether f is stored in 4x4 blocks.
func (f Format) IsCompressed() bool { return formats[f].blockBytes > 0 }

// HasAlpha reports whether f carries an alpha channel.
func (f Format) HasAlpha() bool { return formats[f].alpha }

// Pitch returns the row pitch and slice pitch in bytes of a w×h surface.
func (f Format) Pitch(w, h int) (rowPitch, slicePitch int) {
	fi := formats[f]
	if fi.blockBytes > 0 {
		bw := max(1, (w+3)/4)
		bh := max(1, (h+3)/4)
		rowPitch = bw * fi.blockBytes
		return rowPitch, rowPitch * bh
	}
	rowPitch = (w*fi.bpp + 7) / 8
	return rowPitch, rowPitch * h
}

// ParseFormat resolves a format by its String name, case-sensitively,
// also accepting the Go identifier spelling (e.g. "R8G8B8A8UNorm").
func ParseFormat(name string) (Format, bool) {
	for f, fi := range formats {
		if fi.name == name || fi.ident == name {
			return f, true
		}
	}
	return FormatUnknown, false
}
