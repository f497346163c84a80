// Package texture holds the uniform image representation: a descriptor
// plus one pixel buffer per (mip level, array item, depth slice) cell.
package texture

import (
	"errors"
	"fmt"
	"image"
	"math"
	"math/bits"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
)

// Dimension is the dimensionality of an image.
type Dimension int

const (
	Texture2D Dimension = iota
	Texture1D
	Texture3D
)

func (d Dimension) String() string {
	switch d {
	case Texture1D:
		return "1d"
	case Texture2D:
		return "2d"
	case Texture3D:
		return "3d"
	}
	return fmt.Sprintf("Dimension(%d)", int(d))
}

var (
	// ErrInvalidDescriptor is returned by Validate.
	ErrInvalidDescriptor = errors.New("texture: invalid descriptor")

	// ErrNotPowerOfTwo is returned when a volume has more than one mip
	// level but a non power-of-two size.
	ErrNotPowerOfTwo = errors.New("texture: mip-mapped volume must have power-of-two dimensions")

	// ErrDisposed is returned when accessing a disposed image.
	ErrDisposed = errors.New("texture: image disposed")
)

// Descriptor describes the shape of an image.
type Descriptor struct {
	Dimension  Dimension
	Width      int
	Height     int
	Depth      int
	MipCount   int
	ArrayCount int
	Format     pixfmt.Format
}

// Validate checks the descriptor invariants.
func (d Descriptor) Validate() error {
	switch {
	case d.Width < 1 || d.Height < 1 || d.Depth < 1:
		return fmt.Errorf("%w: size %dx%dx%d", ErrInvalidDescriptor, d.Width, d.Height, d.Depth)
	case d.MipCount < 1:
		return fmt.Errorf("%w: mip count %d", ErrInvalidDescriptor, d.MipCount)
	case d.ArrayCount < 1:
		return fmt.Errorf("%w: array count %d", ErrInvalidDescriptor, d.ArrayCount)
	case !d.Format.Valid():
		return fmt.Errorf("%w: format %s", ErrInvalidDescriptor, d.Format)
	case d.Dimension == Texture1D && d.Height != 1:
		return fmt.Errorf("%w: 1d image with height %d", ErrInvalidDescriptor, d.Height)
	case d.Dimension != Texture3D && d.Depth != 1:
		return fmt.Errorf("%w: depth %d on %s image", ErrInvalidDescriptor, d.Depth, d.Dimension)
	case d.Dimension == Texture3D && d.ArrayCount != 1:
		return fmt.Errorf("%w: volume arrays are not supported", ErrInvalidDescriptor)
	}
	volume := d.Dimension == Texture3D
	if volume && d.MipCount > 1 && !(IsPow2(d.Width) && IsPow2(d.Height) && IsPow2(d.Depth)) {
		return ErrNotPowerOfTwo
	}
	if m := MaxMipCount(d.Width, d.Height, d.Depth, volume); d.MipCount > m {
		return fmt.Errorf("%w: mip count %d exceeds %d", ErrInvalidDescriptor, d.MipCount, m)
	}
	if _, ok := d.ByteSize(); !ok {
		return fmt.Errorf("%w: %dx%dx%d %s overflows", ErrInvalidDescriptor, d.Width, d.Height, d.Depth, d.Format)
	}
	return nil
}

// ByteSize returns the size of the backing store for d. ok is false when
// it does not fit in an int.
func (d Descriptor) ByteSize() (size int, ok bool) {
	var total uint64
	for mip := 0; mip < d.MipCount; mip++ {
		w, h := MipSize(d.Width, mip), MipSize(d.Height, mip)
		row, _ := d.Format.Pitch(w, 1)
		rows := h
		if d.Format.IsCompressed() {
			rows = max(1, (h+3)/4)
		}
		n, ok := mulUint(uint64(row), uint64(rows), uint64(MipSize(d.Depth, mip)), uint64(d.ArrayCount))
		if !ok {
			return 0, false
		}
		var carry uint64
		total, carry = bits.Add64(total, n, 0)
		if carry != 0 || total > math.MaxInt {
			return 0, false
		}
	}
	return int(total), true
}

func mulUint(factors ...uint64) (uint64, bool) {
	p := uint64(1)
	for _, f := range factors {
		hi, lo := bits.Mul64(p, f)
		if hi != 0 {
			return 0, false
		}
		p = lo
	}
	return p, true
}

// IsPow2 reports whether v is a positive power of two.
func IsPow2(v int) bool { return v > 0 && v&(v-1) == 0 }

// MipSize returns the extent of a dimension at mip level n.
func MipSize(base, n int) int { return max(1, base>>n) }

// MaxMipCount is the length of a full mip chain for the given size.
// Volumes with non power-of-two sizes cannot be mip-mapped.
func MaxMipCount(w, h, d int, volume bool) int {
	if volume && !(IsPow2(w) && IsPow2(h) && IsPow2(d)) {
		return 1
	}
	m := max(w, h)
	if volume {
		m = max(m, d)
	}
	if m < 1 {
		return 1
	}
	return bits.Len(uint(m))
}

// Buffer is the pixel storage of one cell.
type Buffer struct {
	Width      int
	Height     int
	RowPitch   int
	SlicePitch int
	Format     pixfmt.Format
	Pix        []byte
}

// Image converts the buffer to a Go image.
func (b *Buffer) Image() (image.Image, error) {
	return pixfmt.ToImage(b.Pix, b.Format, b.Width, b.Height, b.RowPitch)
}

// SetImage overwrites the buffer with the top-left pixels of img.
func (b *Buffer) SetImage(img image.Image) error {
	return pixfmt.FromImage(b.Pix, b.Format, b.Width, b.Height, b.RowPitch, img)
}

// Image is a descriptor and the buffers it owns.
type Image struct {
	Descriptor

	// Metadata carries container-specific values such as animation
	// timing. Keys are namespaced by container ("gif.loop_count").
	Metadata map[string]string

	buffers []*Buffer
	pix     []byte
}

// New validates desc and allocates zeroed buffers for every cell.
func New(desc Descriptor) (*Image, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	img := &Image{Descriptor: desc, Metadata: map[string]string{}}

	total, _ := desc.ByteSize()
	img.pix = make([]byte, total)

	off := 0
	for item := 0; item < desc.ArrayCount; item++ {
		for mip := 0; mip < desc.MipCount; mip++ {
			w, h := MipSize(desc.Width, mip), MipSize(desc.Height, mip)
			row, slice := desc.Format.Pitch(w, h)
			for s := 0; s < img.slices(mip); s++ {
				img.buffers = append(img.buffers, &Buffer{
					Width:      w,
					Height:     h,
					RowPitch:   row,
					SlicePitch: slice,
					Format:     desc.Format,
					Pix:        img.pix[off : off+slice : off+slice],
				})
				off += slice
			}
		}
	}
	return img, nil
}

func (img *Image) slices(mip int) int {
	if img.Dimension != Texture3D {
		return 1
	}
	return MipSize(img.Depth, mip)
}

// DepthAt returns the number of depth slices at a mip level.
func (img *Image) DepthAt(mip int) int { return img.slices(mip) }

// Buffer returns the cell at (mip, item, slice), or nil when out of range
// or disposed.
func (img *Image) Buffer(mip, item, slice int) *Buffer {
	if img.buffers == nil || mip < 0 || mip >= img.MipCount || item < 0 || item >= img.ArrayCount {
		return nil
	}
	if slice < 0 || slice >= img.slices(mip) {
		return nil
	}
	i := 0
	for m := 0; m < img.MipCount; m++ {
		i += img.slices(m)
	}
	i *= item
	for m := 0; m < mip; m++ {
		i += img.slices(m)
	}
	return img.buffers[i+slice]
}

// Buffers returns every cell in storage order: items, then mips, then
// depth slices.
func (img *Image) Buffers() []*Buffer { return img.buffers }

// Pixels returns the contiguous backing store of all buffers.
func (img *Image) Pixels() []byte { return img.pix }

// Dispose releases the buffers. Buffers obtained earlier must not be used
// afterwards.
func (img *Image) Dispose() {
	if img == nil {
		return
	}
	img.buffers = nil
	img.pix = nil
}

// Disposed reports whether Dispose was called.
func (img *Image) Disposed() bool { return img.buffers == nil }
