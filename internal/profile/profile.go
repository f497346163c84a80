package profile

import (
	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/palette"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/placement"
)

// Profile defines conversion parameters for a batch run.
type Profile struct {
	Name    string
	Widths  []int        // target widths; sources are never upscaled
	Kinds   []codec.Kind // output containers in priority order
	Quality int          // lossy encoding quality 1-100
	Filter  placement.Filter
	Dither  palette.Dither
	Clip    bool
	Flags   pixfmt.DecodeFlags
	// AllFrames loads and writes every frame of multi-frame containers.
	AllFrames bool
	// MipMaps adds a full mip chain to outputs that can store one.
	MipMaps bool
}

// Built-in profiles.
var profiles = map[string]Profile{
	"web": {
		Name:    "web",
		Widths:  []int{320, 640, 1280},
		Kinds:   []codec.Kind{codec.KindPNG, codec.KindJPEG},
		Quality: 85,
		Filter:  placement.FilterLanczos,
	},
	"archive": {
		Name:      "archive",
		Kinds:     []codec.Kind{codec.KindNative},
		Filter:    placement.FilterLanczos,
		AllFrames: true,
	},
	"texture": {
		Name:      "texture",
		Kinds:     []codec.Kind{codec.KindNative},
		Filter:    placement.FilterCubic,
		Flags:     pixfmt.ForceRGB,
		AllFrames: true,
		MipMaps:   true,
	},
	"sprite": {
		Name:      "sprite",
		Widths:    []int{64, 128, 256},
		Kinds:     []codec.Kind{codec.KindGIF, codec.KindPNG},
		Filter:    placement.FilterPoint,
		Dither:    palette.DitherErrorDiffusion,
		AllFrames: true,
	},
}

// Names returns the built-in profile names.
func Names() []string {
	return []string{"web", "archive", "texture", "sprite"}
}

// Get returns a profile by name. Falls back to web if unknown.
func Get(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	p := profiles["web"]
	p.Name = name // preserve requested name
	return p
}

// Options returns the codec options a profile implies.
func (p Profile) Options() codec.Options {
	return codec.Options{
		Filter:       p.Filter,
		Dither:       p.Dither,
		Clip:         p.Clip,
		Flags:        p.Flags,
		UseAllFrames: p.AllFrames,
		Quality:      p.Quality,
	}
}

// EffectiveWidths returns the output widths for a source of the given
// width, smallest first.
func (p Profile) EffectiveWidths(originalWidth int) []int {
	seen := map[int]bool{}
	var result []int

	for _, w := range p.Widths {
		if w > originalWidth || seen[w] {
			continue // don't upscale
		}
		seen[w] = true
		result = append(result, w)
	}

	// Keep the original size when no target applies (no widths
	// configured, or a source smaller than the smallest target).
	if len(result) == 0 && originalWidth > 0 {
		result = append(result, originalWidth)
	}

	return result
}
