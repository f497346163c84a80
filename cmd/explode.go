package cmd

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/AnyUserName/texpipe/internal/bitmap"
	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/spf13/cobra"
)

var (
	explodeFlags convFlags
	explodeKind  string
)

var explodeCmd = &cobra.Command{
	Use:   "explode <input> <out_dir>",
	Short: "Write every cell of an image as its own bitmap file",
	Long: `Files are named <name>.<item>.<mip>.<slice>.<ext>, in the order
assemble consumes them.`,
	Args: cobra.ExactArgs(2),
	RunE: runExplode,
}

func init() {
	explodeFlags.register(explodeCmd)
	explodeCmd.Flags().StringVar(&explodeKind, "kind", "png", "container for the written bitmaps")
	rootCmd.AddCommand(explodeCmd)
}

func runExplode(_ *cobra.Command, args []string) error {
	opts, err := explodeFlags.options()
	if err != nil {
		return err
	}
	kind, ok := codec.ParseKind(explodeKind)
	if !ok {
		return fmt.Errorf("unknown kind %q", explodeKind)
	}
	out, err := codec.Default().Get(kind)
	if err != nil {
		return err
	}

	img, _, err := loadFile(args[0], opts)
	if err != nil {
		return err
	}
	defer img.Dispose()

	bitmaps, err := bitmap.ToBitmaps(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(args[1], 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	next := 0
	for item := 0; item < img.ArrayCount; item++ {
		for mip := 0; mip < img.MipCount; mip++ {
			for s := 0; s < img.DepthAt(mip); s++ {
				path := filepath.Join(args[1],
					fmt.Sprintf("%s.%d.%d.%d%s", name, item, mip, s, out.Extensions()[0]))
				if err := writeBitmap(path, bitmaps[next], opts); err != nil {
					return err
				}
				logVerbose("wrote %s", path)
				next++
			}
		}
	}
	fmt.Printf("  %s: %d bitmaps -> %s\n", args[0], len(bitmaps), args[1])
	return nil
}

func writeBitmap(path string, b image.Image, opts codec.Options) error {
	cell, err := bitmap.Build2D([]image.Image{b}, bitmap.Options{MipCount: 1})
	if err != nil {
		return err
	}
	defer cell.Dispose()
	_, err = saveFile(path, cell, opts)
	return err
}
