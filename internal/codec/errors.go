package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/AnyUserName/texpipe/internal/container"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/texture"
)

var (
	// ErrFormatNotSupported is returned when no pixel-format mapping exists.
	ErrFormatNotSupported = errors.New("pixel format not supported")

	// ErrCannotCreate is returned when an image cannot be built or written.
	ErrCannotCreate = errors.New("cannot create image")

	// ErrMustBeSameFormat is returned when source bitmaps differ in format.
	ErrMustBeSameFormat = errors.New("bitmaps must share one pixel format")

	// ErrMipCountArrayCountTooLarge is returned when fewer bitmaps than
	// array count times mip count were supplied.
	ErrMipCountArrayCountTooLarge = errors.New("mip count times array count exceeds bitmap count")

	// ErrVolumeMipCountDepthTooLarge is returned when the bitmaps run out
	// before every volume mip level is filled.
	ErrVolumeMipCountDepthTooLarge = errors.New("volume mip count and depth exceed bitmap count")

	// ErrVolumeNotPowerOfTwo is returned for mip-mapped volumes with a
	// non power-of-two size.
	ErrVolumeNotPowerOfTwo = errors.New("mip-mapped volume must have power-of-two dimensions")

	// ErrStreamNotReadable is returned for streams that cannot be read.
	ErrStreamNotReadable = errors.New("stream not readable")

	// ErrStreamNotSeekable is returned for streams that cannot seek.
	ErrStreamNotSeekable = errors.New("stream not seekable")

	// ErrEndOfStream is returned when a stream ends prematurely.
	ErrEndOfStream = errors.New("unexpected end of stream")

	// ErrSignatureMismatch is returned when a stream does not start with
	// the codec's container signature.
	ErrSignatureMismatch = errors.New("container signature mismatch")

	// ErrDecoderInit is returned when the container decoder fails.
	ErrDecoderInit = errors.New("container decoder failed")

	// ErrCodecNotFound is returned by the registry.
	ErrCodecNotFound = errors.New("codec not found")
)

// Error is the failure type of every codec operation. Kind is one of the
// sentinel errors above; Err is the underlying cause, if any.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds an *Error.
func NewError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// classify repackages err into an *Error, mapping collaborator failures
// onto codec kinds. fallback is used when nothing more specific applies.
func classify(op string, fallback, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	kind := fallback
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		kind = ErrEndOfStream
	case errors.Is(err, pixfmt.ErrNoImage), errors.Is(err, container.ErrNoEncoder):
		kind = ErrFormatNotSupported
	case errors.Is(err, texture.ErrNotPowerOfTwo):
		kind = ErrVolumeNotPowerOfTwo
	case errors.Is(err, texture.ErrInvalidDescriptor), errors.Is(err, container.ErrFrameRejected):
		kind = ErrCannotCreate
	case errors.Is(err, container.ErrDecode), errors.Is(err, container.ErrFrameIndex):
		kind = ErrDecoderInit
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
