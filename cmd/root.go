package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "texpipe",
	Short: "Image codec and format-conversion pipeline",
	Long: `texpipe decodes container images (PNG, JPEG, BMP, GIF, TIFF, WebP)
into a uniform image representation with explicit pixel formats, array
items, mip levels and depth slices, and encodes them back out.

The native .texz container stores every cell losslessly, including
block-compressed formats.`,
	Version: version,
	PersistentPreRun: func(*cobra.Command, []string) {
		if verbose {
			codec.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"texpipe %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// logVerbose prints a message only when --verbose is set.
func logVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[texpipe] "+format+"\n", args...)
	}
}
