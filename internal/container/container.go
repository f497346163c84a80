// Package container adapts Go's image decoders and encoders into frame
// oriented services: signature sniffing, per-frame decode with native
// pixel encodings, and atomic multi-frame encode.
package container

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
)

var (
	// ErrNoEncoder is returned by services that can only decode.
	ErrNoEncoder = errors.New("container: encoding not supported")

	// ErrFrameIndex is returned for a frame index out of range.
	ErrFrameIndex = errors.New("container: frame index out of range")

	// ErrFrameRejected is returned when a frame fails commit validation.
	ErrFrameRejected = errors.New("container: frame rejected")

	// ErrDecode wraps failures of the underlying decoder.
	ErrDecode = errors.New("container: decode failed")
)

// SniffLen is the number of leading bytes Sniff implementations inspect.
const SniffLen = 16

// Config is what a probe learns without keeping decoded pixels.
type Config struct {
	Width, Height int // logical canvas
	FrameCount    int
	Native        pixfmt.Native // encoding of frame 0
	LoopCount     int           // animated containers only
}

// Frame is one decoded or to-be-encoded image of a container.
type Frame struct {
	Image  image.Image
	Native pixfmt.Native
	// Offset is the frame's top-left corner on the logical canvas.
	Offset image.Point
	// Delay is the display time in 1/100 s for animated containers.
	Delay int
}

// Decoder yields the frames of one opened container.
type Decoder interface {
	Config() Config
	Frame(i int) (Frame, error)
}

// EncodeOptions are container-wide encoder settings.
type EncodeOptions struct {
	Quality   int // 1-100 for lossy encoders, 0 = default
	LoopCount int
}

// Encoder collects frames and writes the container in one step. A
// container is only written by Flush, after every frame committed.
type Encoder interface {
	AddFrame(f Frame) error
	Flush(w io.Writer) error
}

// Service is the imaging capability for one container kind.
type Service interface {
	Name() string
	Sniff(header []byte) bool
	Probe(r io.Reader) (Config, error)
	Open(r io.Reader) (Decoder, error)
	// Writable lists encodings the encoder accepts, preferred first. It is
	// empty for decode-only services.
	Writable() []pixfmt.Native
	MultiFrame() bool
	NewEncoder(opts EncodeOptions) (Encoder, error)
}

// guard converts a decoder panic into an error.
func guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrDecode, name, r)
		}
	}()
	if err := fn(); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w", name, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("%w: %s: %w", ErrDecode, name, err)
	}
	return nil
}

// validateFrame runs the commit checks shared by all encoders: a
// non-empty size, an accepted encoding, and a palette that fits indexed
// encodings.
func validateFrame(f Frame, writable []pixfmt.Native) error {
	if f.Image == nil {
		return fmt.Errorf("%w: no pixels", ErrFrameRejected)
	}
	b := f.Image.Bounds()
	if b.Empty() {
		return fmt.Errorf("%w: empty bounds %v", ErrFrameRejected, b)
	}
	ok := false
	for _, n := range writable {
		if n == f.Native {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: encoding %s not writable", ErrFrameRejected, f.Native)
	}
	if f.Native.IsIndexed() {
		p, isPal := f.Image.(*image.Paletted)
		if !isPal || len(p.Palette) == 0 {
			return fmt.Errorf("%w: %s frame without palette", ErrFrameRejected, f.Native)
		}
		if len(p.Palette) > f.Native.PaletteSize() {
			return fmt.Errorf("%w: palette of %d entries exceeds %s", ErrFrameRejected, len(p.Palette), f.Native)
		}
	}
	return nil
}

// All returns one instance of every built-in service.
func All() []Service {
	return []Service{PNG(), JPEG(), BMP(), GIF(), TIFF(), WebP()}
}
