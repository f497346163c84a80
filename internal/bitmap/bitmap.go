// Package bitmap builds uniform images from ordered lists of plain
// bitmaps and splits them back.
//
// Array images take their bitmaps item-major: bitmap item*MipCount+mip
// fills (mip, item). Volumes consume the list level by level, DepthAt(mip)
// slices per level.
package bitmap

import (
	"errors"
	"fmt"
	"image"

	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/palette"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/placement"
	"github.com/AnyUserName/texpipe/internal/texture"
)

// Options control a build. Zero values are derived from the bitmaps,
// except MipCount: unset means the full chain for the target size, and
// the list must then hold every level.
type Options struct {
	Width, Height int
	// Depth is the base depth of a volume. When unset and MipCount is at
	// most 1, every bitmap becomes one slice.
	Depth      int
	MipCount   int
	ArrayCount int
	Format     pixfmt.Format
	Filter     placement.Filter
	Dither     palette.Dither
	Clip       bool
	Flags      pixfmt.DecodeFlags
}

// Build1D builds a 1D image; every bitmap row beyond the first is
// dropped or scaled away according to Clip.
func Build1D(bitmaps []image.Image, opts Options) (*texture.Image, error) {
	opts.Height = 1
	return buildArray(texture.Texture1D, bitmaps, opts)
}

// Build2D builds a 2D image or 2D array.
func Build2D(bitmaps []image.Image, opts Options) (*texture.Image, error) {
	return buildArray(texture.Texture2D, bitmaps, opts)
}

// resolve derives the internal format and the base size, and checks that
// every bitmap uses the same native encoding.
func resolve(op string, bitmaps []image.Image, opts *Options) error {
	var first image.Image
	native := pixfmt.NativeUnknown
	for _, b := range bitmaps {
		if b == nil {
			continue
		}
		n := pixfmt.NativeOf(b)
		if first == nil {
			first, native = b, n
			continue
		}
		if n != native {
			return codec.NewError(op, codec.ErrMustBeSameFormat, fmt.Errorf("%s and %s", native, n))
		}
	}
	if first == nil {
		return codec.NewError(op, codec.ErrCannotCreate, errors.New("no bitmaps"))
	}
	if opts.Format == pixfmt.FormatUnknown {
		f, ok := pixfmt.ToInternal(native, opts.Flags)
		if !ok {
			return codec.NewError(op, codec.ErrFormatNotSupported, errors.New(native.String()))
		}
		opts.Format = f
	}
	if _, ok := pixfmt.ToNative(opts.Format); !ok {
		return codec.NewError(op, codec.ErrFormatNotSupported, errors.New(opts.Format.String()))
	}
	size := first.Bounds().Size()
	if opts.Width <= 0 {
		opts.Width = size.X
	}
	if opts.Height <= 0 {
		opts.Height = size.Y
	}
	return nil
}

func buildArray(dim texture.Dimension, bitmaps []image.Image, opts Options) (*texture.Image, error) {
	const op = "build"
	if err := resolve(op, bitmaps, &opts); err != nil {
		return nil, err
	}

	maxMips := texture.MaxMipCount(opts.Width, opts.Height, 1, false)
	mips := maxMips
	if opts.MipCount > 0 {
		mips = min(opts.MipCount, maxMips)
	}

	items := opts.ArrayCount
	if items <= 0 {
		items = max(1, len(bitmaps)/mips)
	}
	if items*mips > len(bitmaps) {
		return nil, codec.NewError(op, codec.ErrMipCountArrayCountTooLarge,
			fmt.Errorf("%d items × %d mips from %d bitmaps", items, mips, len(bitmaps)))
	}

	img, err := texture.New(texture.Descriptor{
		Dimension:  dim,
		Width:      opts.Width,
		Height:     opts.Height,
		Depth:      1,
		MipCount:   mips,
		ArrayCount: items,
		Format:     opts.Format,
	})
	if err != nil {
		return nil, codec.NewError(op, codec.ErrCannotCreate, err)
	}
	for item := 0; item < items; item++ {
		for mip := 0; mip < mips; mip++ {
			if err := place(img.Buffer(mip, item, 0), bitmaps[item*mips+mip], opts); err != nil {
				img.Dispose()
				return nil, err
			}
		}
	}
	return img, nil
}

// Build3D builds a volume image.
func Build3D(bitmaps []image.Image, opts Options) (*texture.Image, error) {
	const op = "build volume"
	if err := resolve(op, bitmaps, &opts); err != nil {
		return nil, err
	}
	if opts.Depth <= 0 {
		opts.Depth = 1
		if len(bitmaps) > 1 && opts.MipCount <= 1 {
			// A plain stack of slices, single level.
			opts.Depth = len(bitmaps)
			opts.MipCount = 1
		}
	}
	w, h, d := opts.Width, opts.Height, opts.Depth
	if opts.MipCount > 1 && !(texture.IsPow2(w) && texture.IsPow2(h) && texture.IsPow2(d)) {
		return nil, codec.NewError(op, codec.ErrVolumeNotPowerOfTwo, fmt.Errorf("%dx%dx%d", w, h, d))
	}

	maxMips := texture.MaxMipCount(w, h, d, true)
	mips := maxMips
	if opts.MipCount > 0 {
		mips = min(opts.MipCount, maxMips)
	}
	if need := depthSum(d, mips); need > len(bitmaps) {
		return nil, codec.NewError(op, codec.ErrVolumeMipCountDepthTooLarge,
			fmt.Errorf("%d mips of depth %d need %d bitmaps, have %d", mips, d, need, len(bitmaps)))
	}

	img, err := texture.New(texture.Descriptor{
		Dimension:  texture.Texture3D,
		Width:      w,
		Height:     h,
		Depth:      d,
		MipCount:   mips,
		ArrayCount: 1,
		Format:     opts.Format,
	})
	if err != nil {
		return nil, codec.NewError(op, codec.ErrCannotCreate, err)
	}
	next := 0
	for mip := 0; mip < mips; mip++ {
		for s := 0; s < img.DepthAt(mip); s++ {
			if err := place(img.Buffer(mip, 0, s), bitmaps[next], opts); err != nil {
				img.Dispose()
				return nil, err
			}
			next++
		}
	}
	return img, nil
}

// depthSum is the number of slices in the first mips levels of a volume
// with base depth d.
func depthSum(d, mips int) int {
	n := 0
	for m := 0; m < mips; m++ {
		n += texture.MipSize(d, m)
	}
	return n
}

// place writes b into buf, scaling or clipping it when sizes differ. Nil
// bitmaps leave the buffer zeroed.
func place(buf *texture.Buffer, b image.Image, opts Options) error {
	const op = "build"
	if b == nil {
		return nil
	}
	target, ok := pixfmt.ToNative(buf.Format)
	if !ok {
		return codec.NewError(op, codec.ErrFormatNotSupported, errors.New(buf.Format.String()))
	}
	plan := placement.Place(b.Bounds(), pixfmt.NativeOf(b), target, buf.Width, buf.Height, opts.Clip)
	out, err := placement.Apply(b, plan, placement.Request{
		Width:  buf.Width,
		Height: buf.Height,
		Target: target,
		Filter: opts.Filter,
		Dither: opts.Dither,
	})
	if err != nil {
		return codec.NewError(op, codec.ErrCannotCreate, err)
	}
	if err := buf.SetImage(out); err != nil {
		return codec.NewError(op, codec.ErrCannotCreate, err)
	}
	return nil
}

// ToBitmaps returns one bitmap per cell, in the order the builders
// consume them.
func ToBitmaps(img *texture.Image) ([]image.Image, error) {
	const op = "export"
	if img == nil || img.Disposed() {
		return nil, codec.NewError(op, codec.ErrCannotCreate, texture.ErrDisposed)
	}
	if _, ok := pixfmt.ToNative(img.Format); !ok {
		return nil, codec.NewError(op, codec.ErrFormatNotSupported, errors.New(img.Format.String()))
	}
	out := make([]image.Image, 0, len(img.Buffers()))
	for item := 0; item < img.ArrayCount; item++ {
		for mip := 0; mip < img.MipCount; mip++ {
			for s := 0; s < img.DepthAt(mip); s++ {
				b, err := img.Buffer(mip, item, s).Image()
				if err != nil {
					return nil, codec.NewError(op, codec.ErrFormatNotSupported, err)
				}
				out = append(out, b)
			}
		}
	}
	return out, nil
}
