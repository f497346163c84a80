// Package codec converts between container streams and the uniform image
// representation. A single generic Adapter, parameterized by a Config,
// serves every frame-based container; the native layered container has
// its own implementation of the same Codec interface.
package codec

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/AnyUserName/texpipe/internal/palette"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/placement"
	"github.com/AnyUserName/texpipe/internal/texture"
)

// Kind identifies a container kind.
type Kind int

const (
	KindPNG Kind = iota + 1
	KindJPEG
	KindBMP
	KindGIF
	KindTIFF
	KindWebP
	KindNative
)

var kindNames = map[Kind]string{
	KindPNG:    "png",
	KindJPEG:   "jpeg",
	KindBMP:    "bmp",
	KindGIF:    "gif",
	KindTIFF:   "tiff",
	KindWebP:   "webp",
	KindNative: "texz",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind resolves a kind name; "jpg" and "tif" are accepted.
func ParseKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimPrefix(name, "."))
	switch name {
	case "jpg":
		name = "jpeg"
	case "tif":
		name = "tiff"
	}
	for k, s := range kindNames {
		if s == name {
			return k, true
		}
	}
	return 0, false
}

// Capabilities are fixed per codec instance.
type Capabilities struct {
	SupportsArray            bool
	SupportsMipMaps          bool
	SupportsDepth            bool
	SupportsBlockCompression bool
	SupportedFormats         []pixfmt.Format
}

// Supports reports whether f is in the supported set.
func (c Capabilities) Supports(f pixfmt.Format) bool {
	return slices.Contains(c.SupportedFormats, f)
}

// Options are the per-call conversion options. The zero value decodes the
// first frame at its own size and best-fit format.
type Options struct {
	Filter placement.Filter
	Dither palette.Dither
	// Clip places frames at their offset instead of scaling them when
	// their size differs from the target.
	Clip  bool
	Flags pixfmt.DecodeFlags
	// ArrayCount limits the frames read as array items; 0 reads all.
	ArrayCount int
	// UseAllFrames treats multi-frame containers as arrays, on load and
	// on save.
	UseAllFrames bool

	// Format and Width/Height override the decoded target. Unset values
	// default to the best-fit format and the container's canvas size.
	Format        pixfmt.Format
	Width, Height int

	// Palette replaces the per-frame quantized palette of indexed
	// encodes. The caller keeps ownership.
	Palette *palette.Info
	Quality int
	// FrameDelay is used for animated encodes of frames without a delay
	// in the image metadata, in 1/100 s.
	FrameDelay int
	LoopCount  int
}

// Codec is implemented by every container codec.
type Codec interface {
	Kind() Kind
	Name() string
	Extensions() []string
	Capabilities() Capabilities

	// GetMetaData describes the image in r without consuming it: the
	// stream position is restored on every path.
	GetMetaData(r io.Reader, opts Options) (texture.Descriptor, error)
	// IsReadable probes like GetMetaData and reports failure as false.
	IsReadable(r io.Reader, opts Options) bool
	// LoadFromStream decodes r. When sizeHint is positive the codec
	// reads at most sizeHint bytes and leaves the stream positioned at
	// least sizeHint bytes past where it started.
	LoadFromStream(r io.Reader, sizeHint int64, opts Options) (*texture.Image, error)
	// SaveToStream encodes img to w. Nothing is written unless every
	// frame committed.
	SaveToStream(img *texture.Image, w io.Writer, opts Options) error
}

// uncompressed is every format with a pixel representation.
var uncompressed = []pixfmt.Format{
	pixfmt.R8G8B8A8UNorm,
	pixfmt.B8G8R8A8UNorm,
	pixfmt.B8G8R8X8UNorm,
	pixfmt.R16G16B16A16UNorm,
	pixfmt.R8UNorm,
	pixfmt.R16UNorm,
	pixfmt.A8UNorm,
	pixfmt.B5G6R5UNorm,
	pixfmt.B5G5R5A1UNorm,
	pixfmt.R10G10B10A2UNorm,
	pixfmt.R10G10B10XRBiasA2UNorm,
	pixfmt.R32G32B32A32Float,
}
