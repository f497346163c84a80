package pixfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// ErrNoImage is returned for formats without a Go image representation
// (block-compressed data).
var ErrNoImage = errors.New("pixfmt: format has no image representation")

// ToImage wraps the raw w×h surface pix of format f in a Go image.
// The pixels are copied; the result does not alias pix.
func ToImage(pix []byte, f Format, w, h, rowPitch int) (image.Image, error) {
	if f.IsCompressed() || !f.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrNoImage, f)
	}
	if need := rowPitch*(h-1) + (w*f.BitsPerPixel()+7)/8; h > 0 && len(pix) < need {
		return nil, fmt.Errorf("pixfmt: buffer too small for %dx%d %s: %d < %d", w, h, f, len(pix), need)
	}
	r := image.Rect(0, 0, w, h)

	switch f {
	case R8G8B8A8UNorm:
		img := image.NewNRGBA(r)
		for y := 0; y < h; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+w*4], pix[y*rowPitch:])
		}
		return img, nil

	case B8G8R8A8UNorm, B8G8R8X8UNorm:
		img := image.NewNRGBA(r)
		for y := 0; y < h; y++ {
			src := pix[y*rowPitch:]
			dst := img.Pix[y*img.Stride:]
			for x := 0; x < w; x++ {
				s, d := src[x*4:x*4+4], dst[x*4:x*4+4]
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
				if f == B8G8R8X8UNorm {
					d[3] = 0xff
				}
			}
		}
		return img, nil

	case R16G16B16A16UNorm:
		img := image.NewNRGBA64(r)
		for y := 0; y < h; y++ {
			src := pix[y*rowPitch:]
			dst := img.Pix[y*img.Stride:]
			for i := 0; i < w*4; i++ {
				binary.BigEndian.PutUint16(dst[i*2:], binary.LittleEndian.Uint16(src[i*2:]))
			}
		}
		return img, nil

	case R8UNorm:
		img := image.NewGray(r)
		for y := 0; y < h; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+w], pix[y*rowPitch:])
		}
		return img, nil

	case A8UNorm:
		img := image.NewAlpha(r)
		for y := 0; y < h; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+w], pix[y*rowPitch:])
		}
		return img, nil

	case R16UNorm:
		img := image.NewGray16(r)
		for y := 0; y < h; y++ {
			src := pix[y*rowPitch:]
			dst := img.Pix[y*img.Stride:]
			for x := 0; x < w; x++ {
				binary.BigEndian.PutUint16(dst[x*2:], binary.LittleEndian.Uint16(src[x*2:]))
			}
		}
		return img, nil

	case B5G6R5UNorm, B5G5R5A1UNorm:
		img := image.NewNRGBA(r)
		for y := 0; y < h; y++ {
			src := pix[y*rowPitch:]
			for x := 0; x < w; x++ {
				img.SetNRGBA(x, y, unpack16(binary.LittleEndian.Uint16(src[x*2:]), f))
			}
		}
		return img, nil

	case R10G10B10A2UNorm, R10G10B10XRBiasA2UNorm, R32G32B32A32Float:
		img := image.NewNRGBA64(r)
		for y := 0; y < h; y++ {
			src := pix[y*rowPitch:]
			for x := 0; x < w; x++ {
				var c color.NRGBA64
				if f == R32G32B32A32Float {
					c = unpackFloat(src[x*16:])
				} else {
					c = unpack1010102(binary.LittleEndian.Uint32(src[x*4:]), f == R10G10B10XRBiasA2UNorm)
				}
				img.SetNRGBA64(x, y, c)
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoImage, f)
}

// FromImage stores the top-left w×h pixels of img into pix as format f.
func FromImage(pix []byte, f Format, w, h, rowPitch int, img image.Image) error {
	if f.IsCompressed() || !f.Valid() {
		return fmt.Errorf("%w: %s", ErrNoImage, f)
	}
	if need := rowPitch*(h-1) + (w*f.BitsPerPixel()+7)/8; h > 0 && len(pix) < need {
		return fmt.Errorf("pixfmt: buffer too small for %dx%d %s: %d < %d", w, h, f, len(pix), need)
	}
	b := img.Bounds()
	if b.Dx() < w || b.Dy() < h {
		return fmt.Errorf("pixfmt: image %dx%d smaller than surface %dx%d", b.Dx(), b.Dy(), w, h)
	}

	// Fast paths for the layouts decoders hand out most often.
	switch src := img.(type) {
	case *image.NRGBA:
		if f == R8G8B8A8UNorm {
			for y := 0; y < h; y++ {
				i := src.PixOffset(b.Min.X, b.Min.Y+y)
				copy(pix[y*rowPitch:y*rowPitch+w*4], src.Pix[i:i+w*4])
			}
			return nil
		}
	case *image.Gray:
		if f == R8UNorm {
			for y := 0; y < h; y++ {
				i := src.PixOffset(b.Min.X, b.Min.Y+y)
				copy(pix[y*rowPitch:y*rowPitch+w], src.Pix[i:i+w])
			}
			return nil
		}
	}

	for y := 0; y < h; y++ {
		row := pix[y*rowPitch:]
		for x := 0; x < w; x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch f {
			case R8UNorm:
				row[x] = color.GrayModel.Convert(c).(color.Gray).Y
			case R16UNorm:
				binary.LittleEndian.PutUint16(row[x*2:], color.Gray16Model.Convert(c).(color.Gray16).Y)
			case A8UNorm:
				row[x] = color.AlphaModel.Convert(c).(color.Alpha).A
			default:
				storePixel(row, x, f, toNRGBA64(c))
			}
		}
	}
	return nil
}

func storePixel(row []byte, x int, f Format, c color.NRGBA64) {
	switch f {
	case R8G8B8A8UNorm:
		d := row[x*4 : x*4+4]
		d[0], d[1], d[2], d[3] = uint8(c.R>>8), uint8(c.G>>8), uint8(c.B>>8), uint8(c.A>>8)
	case B8G8R8A8UNorm:
		d := row[x*4 : x*4+4]
		d[0], d[1], d[2], d[3] = uint8(c.B>>8), uint8(c.G>>8), uint8(c.R>>8), uint8(c.A>>8)
	case B8G8R8X8UNorm:
		d := row[x*4 : x*4+4]
		d[0], d[1], d[2], d[3] = uint8(c.B>>8), uint8(c.G>>8), uint8(c.R>>8), 0xff
	case R16G16B16A16UNorm:
		d := row[x*8:]
		binary.LittleEndian.PutUint16(d[0:], c.R)
		binary.LittleEndian.PutUint16(d[2:], c.G)
		binary.LittleEndian.PutUint16(d[4:], c.B)
		binary.LittleEndian.PutUint16(d[6:], c.A)
	case B5G6R5UNorm, B5G5R5A1UNorm:
		binary.LittleEndian.PutUint16(row[x*2:], pack16(c, f))
	case R10G10B10A2UNorm, R10G10B10XRBiasA2UNorm:
		binary.LittleEndian.PutUint32(row[x*4:], pack1010102(c, f == R10G10B10XRBiasA2UNorm))
	case R32G32B32A32Float:
		d := row[x*16:]
		binary.LittleEndian.PutUint32(d[0:], math.Float32bits(float32(c.R)/0xffff))
		binary.LittleEndian.PutUint32(d[4:], math.Float32bits(float32(c.G)/0xffff))
		binary.LittleEndian.PutUint32(d[8:], math.Float32bits(float32(c.B)/0xffff))
		binary.LittleEndian.PutUint32(d[12:], math.Float32bits(float32(c.A)/0xffff))
	}
}

func expand5(v uint16) uint8 { return uint8(v<<3 | v>>2) }
func expand6(v uint16) uint8 { return uint8(v<<2 | v>>4) }

func unpack16(v uint16, f Format) color.NRGBA {
	if f == B5G6R5UNorm {
		return color.NRGBA{R: expand5(v >> 11), G: expand6((v >> 5) & 0x3f), B: expand5(v & 0x1f), A: 0xff}
	}
	a := uint8(0)
	if v&0x8000 != 0 {
		a = 0xff
	}
	return color.NRGBA{R: expand5((v >> 10) & 0x1f), G: expand5((v >> 5) & 0x1f), B: expand5(v & 0x1f), A: a}
}

func pack16(c color.NRGBA64, f Format) uint16 {
	r, g, b := c.R>>11, c.G>>10, c.B>>11
	if f == B5G6R5UNorm {
		return r<<11 | g<<5 | b
	}
	v := r<<10 | (c.G>>11)<<5 | b
	if c.A >= 0x8000 {
		v |= 0x8000
	}
	return v
}

// XR bias: stored = value*510 + 384, value in [0,1] for the unorm range.
const (
	xrScale = 510
	xrBias  = 384
)

func unpack1010102(v uint32, xr bool) color.NRGBA64 {
	ch := func(s uint) uint16 {
		x := uint16((v >> s) & 0x3ff)
		if !xr {
			return x<<6 | x>>4
		}
		f := (float64(x) - xrBias) / xrScale
		return unit16(f)
	}
	return color.NRGBA64{R: ch(0), G: ch(10), B: ch(20), A: uint16(v>>30) * 0x5555}
}

func pack1010102(c color.NRGBA64, xr bool) uint32 {
	ch := func(x uint16) uint32 {
		if !xr {
			return uint32(x >> 6)
		}
		return uint32(math.Round(float64(x)/0xffff*xrScale + xrBias))
	}
	return ch(c.R) | ch(c.G)<<10 | ch(c.B)<<20 | uint32(c.A>>14)<<30
}

func unpackFloat(b []byte) color.NRGBA64 {
	ch := func(i int) uint16 {
		return unit16(float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))))
	}
	return color.NRGBA64{R: ch(0), G: ch(1), B: ch(2), A: ch(3)}
}

func unit16(f float64) uint16 {
	switch {
	case f <= 0 || math.IsNaN(f):
		return 0
	case f >= 1:
		return 0xffff
	}
	return uint16(math.Round(f * 0xffff))
}

// NewImage allocates a drawable image able to hold pixels of native
// encoding n without loss. Indexed encodings need a palette and return
// nil.
func NewImage(n Native, r image.Rectangle) draw.Image {
	switch n {
	case NativeBlackWhite, NativeIndexed1, NativeIndexed2, NativeIndexed4, NativeIndexed8:
		return nil
	case NativeGray2, NativeGray4, NativeGray8:
		return image.NewGray(r)
	case NativeGray16:
		return image.NewGray16(r)
	case NativeAlpha8:
		return image.NewAlpha(r)
	case NativeRGB48, NativeRGBA64, NativePRGBA64, NativeRGBA1010102,
		NativeRGBA1010102XR, NativeRGBA128Float, NativeGray32Float:
		return image.NewNRGBA64(r)
	}
	return image.NewNRGBA(r)
}

// Deep reports whether n carries more than 8 bits per channel.
func (n Native) Deep() bool {
	switch n {
	case NativeGray16, NativeGray32Float, NativeRGB48, NativeRGBA64, NativePRGBA64,
		NativeRGBA1010102, NativeRGBA1010102XR, NativeRGBA128Float:
		return true
	}
	return false
}

// toNRGBA64 converts c without the premultiplied round trip the color
// models take, so translucent 8-bit values survive exactly.
func toNRGBA64(c color.Color) color.NRGBA64 {
	switch v := c.(type) {
	case color.NRGBA64:
		return v
	case color.NRGBA:
		return color.NRGBA64{R: uint16(v.R) * 0x101, G: uint16(v.G) * 0x101, B: uint16(v.B) * 0x101, A: uint16(v.A) * 0x101}
	case color.Gray:
		y := uint16(v.Y) * 0x101
		return color.NRGBA64{R: y, G: y, B: y, A: 0xffff}
	case color.Gray16:
		return color.NRGBA64{R: v.Y, G: v.Y, B: v.Y, A: 0xffff}
	}
	return color.NRGBA64Model.Convert(c).(color.NRGBA64)
}

// Convert copies img into a new origin-based image holding native
// encoding n. Indexed encodings are not handled here; they need a
// palette. Opaque encodings drop alpha.
func Convert(img image.Image, n Native) (image.Image, error) {
	b := img.Bounds()
	r := image.Rect(0, 0, b.Dx(), b.Dy())
	dst := NewImage(n, r)
	if dst == nil {
		return nil, fmt.Errorf("pixfmt: cannot convert to indexed encoding %s without a palette", n)
	}
	opaque := n.Opaque()
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			c := img.At(b.Min.X+x, b.Min.Y+y)
			switch d := dst.(type) {
			case *image.NRGBA:
				v := toNRGBA64(c)
				if opaque {
					v.A = 0xffff
				}
				d.SetNRGBA(x, y, color.NRGBA{R: uint8(v.R >> 8), G: uint8(v.G >> 8), B: uint8(v.B >> 8), A: uint8(v.A >> 8)})
			case *image.NRGBA64:
				v := toNRGBA64(c)
				if opaque {
					v.A = 0xffff
				}
				d.SetNRGBA64(x, y, v)
			default:
				dst.Set(x, y, c)
			}
		}
	}
	return dst, nil
}
