package cmd

import (
	"fmt"
	"image"

	"github.com/AnyUserName/texpipe/internal/bitmap"
	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/texture"
	"github.com/spf13/cobra"
)

var (
	assembleFlags     convFlags
	assembleDimension string
	assembleMips      int
	assembleDepth     int
)

// placeholder stands for a missing bitmap in the assemble list.
const placeholder = "none"

var assembleCmd = &cobra.Command{
	Use:   "assemble <output> <bitmap|none>...",
	Short: "Build a 1D, 2D array or volume image from bitmaps",
	Long: `Array images take bitmaps item-major: item*mips+mip. Volumes take
them level by level, halving the depth at each mip. "none" leaves a cell
zeroed.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAssemble,
}

func init() {
	assembleFlags.register(assembleCmd)
	assembleCmd.Flags().StringVar(&assembleDimension, "dimension", "2d", "image dimension (1d, 2d, 3d)")
	assembleCmd.Flags().IntVar(&assembleMips, "mips", 1, "mip levels (0 = full chain for the size)")
	assembleCmd.Flags().IntVar(&assembleDepth, "depth", 0, "volume base depth (0 = bitmap count)")
	rootCmd.AddCommand(assembleCmd)
}

func runAssemble(_ *cobra.Command, args []string) error {
	opts, err := assembleFlags.options()
	if err != nil {
		return err
	}
	out, inputs := args[0], args[1:]

	bitmaps := make([]image.Image, len(inputs))
	for i, path := range inputs {
		if path == placeholder {
			continue
		}
		b, err := readBitmap(path, opts)
		if err != nil {
			return err
		}
		bitmaps[i] = b
	}

	bopts := bitmap.Options{
		Width:      opts.Width,
		Height:     opts.Height,
		Depth:      assembleDepth,
		MipCount:   assembleMips,
		ArrayCount: opts.ArrayCount,
		Format:     opts.Format,
		Filter:     opts.Filter,
		Dither:     opts.Dither,
		Clip:       opts.Clip,
		Flags:      opts.Flags,
	}
	var img *texture.Image
	switch assembleDimension {
	case "1d":
		img, err = bitmap.Build1D(bitmaps, bopts)
	case "2d":
		img, err = bitmap.Build2D(bitmaps, bopts)
	case "3d":
		img, err = bitmap.Build3D(bitmaps, bopts)
	default:
		return fmt.Errorf("unknown dimension %q", assembleDimension)
	}
	if err != nil {
		return err
	}
	defer img.Dispose()
	logVerbose("assembled %s from %d bitmaps", describe(img.Descriptor), len(inputs))

	// Containers without arrays keep item 0; mips and slices need .texz.
	if _, err := saveFile(out, img, codec.Options{UseAllFrames: true, Quality: opts.Quality}); err != nil {
		return err
	}
	fmt.Printf("  %s: %s\n", out, describe(img.Descriptor))
	return nil
}

// readBitmap decodes the first frame of path at its own size and format.
func readBitmap(path string, opts codec.Options) (image.Image, error) {
	img, _, err := loadFile(path, codec.Options{Flags: opts.Flags})
	if err != nil {
		return nil, err
	}
	defer img.Dispose()
	return img.Buffer(0, 0, 0).Image()
}
