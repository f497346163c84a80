package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/palette"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/placement"
	"github.com/AnyUserName/texpipe/internal/texture"
	"github.com/spf13/cobra"
)

// convFlags are the conversion options shared by single-image commands.
type convFlags struct {
	format     string
	width      int
	height     int
	filter     string
	dither     bool
	clip       bool
	allFrames  bool
	arrayCount int
	quality    int
	frameDelay int
	loopCount  int
	forceRGB   bool
	noX2Bias   bool
	no16BPP    bool
	allow1Bit  bool
}

func (f *convFlags) register(c *cobra.Command) {
	fs := c.Flags()
	fs.StringVar(&f.format, "format", "", "target pixel format, e.g. R8G8B8A8_UNORM (default best fit)")
	fs.IntVar(&f.width, "width", 0, "target width (0 = source)")
	fs.IntVar(&f.height, "height", 0, "target height (0 = source)")
	fs.StringVar(&f.filter, "filter", "linear", "resampling filter (point, linear, cubic, box, lanczos)")
	fs.BoolVar(&f.dither, "dither", false, "error-diffusion dithering for indexed output")
	fs.BoolVar(&f.clip, "clip", false, "clip frames to the target instead of scaling")
	fs.BoolVar(&f.allFrames, "all-frames", false, "treat multi-frame containers as arrays")
	fs.IntVar(&f.arrayCount, "array-count", 0, "limit loaded frames (0 = all)")
	fs.IntVarP(&f.quality, "quality", "q", 0, "lossy quality 1-100 (0 = encoder default)")
	fs.IntVar(&f.frameDelay, "frame-delay", 0, "animation frame delay in 1/100 s")
	fs.IntVar(&f.loopCount, "loop-count", 0, "animation loop count")
	fs.BoolVar(&f.forceRGB, "force-rgb", false, "decode grayscale and BGR data as RGBA")
	fs.BoolVar(&f.noX2Bias, "no-xr-bias", false, "decode extended-range data as plain 10-bit")
	fs.BoolVar(&f.no16BPP, "no-16bpp", false, "decode 16-bit packed data as 32-bit RGBA")
	fs.BoolVar(&f.allow1Bit, "allow-1bit", false, "decode black/white data as grayscale")
}

func (f *convFlags) options() (codec.Options, error) {
	opts := codec.Options{
		Width:        f.width,
		Height:       f.height,
		Clip:         f.clip,
		UseAllFrames: f.allFrames,
		ArrayCount:   f.arrayCount,
		Quality:      f.quality,
		FrameDelay:   f.frameDelay,
		LoopCount:    f.loopCount,
	}
	if f.format != "" {
		pf, ok := pixfmt.ParseFormat(f.format)
		if !ok {
			return opts, fmt.Errorf("unknown pixel format %q", f.format)
		}
		opts.Format = pf
	}
	filter, ok := placement.ParseFilter(f.filter)
	if !ok {
		return opts, fmt.Errorf("unknown filter %q", f.filter)
	}
	opts.Filter = filter
	if f.dither {
		opts.Dither = palette.DitherErrorDiffusion
	}
	for set, flag := range map[*bool]pixfmt.DecodeFlags{
		&f.forceRGB:  pixfmt.ForceRGB,
		&f.noX2Bias:  pixfmt.NoX2Bias,
		&f.no16BPP:   pixfmt.No16BPP,
		&f.allow1Bit: pixfmt.Allow1Bit,
	} {
		if *set {
			opts.Flags |= flag
		}
	}
	return opts, nil
}

// loadFile decodes path with the codec its extension names, falling back
// to signature sniffing.
func loadFile(path string, opts codec.Options) (*texture.Image, codec.Codec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reg := codec.Default()
	c, err := reg.ForPath(path)
	if err != nil || !c.IsReadable(f, opts) {
		if c, err = reg.Sniff(f, opts); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	logVerbose("decoding %s as %s", path, c.Kind())

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	img, err := c.LoadFromStream(f, size, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, c, nil
}

// saveFile encodes img into path with the codec its extension names.
// The file is only created once encoding succeeded.
func saveFile(path string, img *texture.Image, opts codec.Options) (codec.Codec, error) {
	c, err := codec.Default().ForPath(path)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".texpipe-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	if err := c.SaveToStream(img, tmp, opts); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return c, os.Rename(tmp.Name(), path)
}

func describe(d texture.Descriptor) string {
	return fmt.Sprintf("%s %dx%dx%d mips=%d items=%d %s",
		d.Dimension, d.Width, d.Height, d.Depth, d.MipCount, d.ArrayCount, d.Format)
}
