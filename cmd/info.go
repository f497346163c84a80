package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/spf13/cobra"
)

var (
	infoFlags  convFlags
	infoCodecs bool
)

var infoCmd = &cobra.Command{
	Use:   "info [file...]",
	Short: "Describe images without decoding their pixels",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !infoCodecs {
			return fmt.Errorf("requires at least one file, or --codecs")
		}
		return nil
	},
	RunE: runInfo,
}

func init() {
	infoFlags.register(infoCmd)
	infoCmd.Flags().BoolVar(&infoCodecs, "codecs", false, "list registered codecs")
	rootCmd.AddCommand(infoCmd)
}

func runInfo(_ *cobra.Command, args []string) error {
	opts, err := infoFlags.options()
	if err != nil {
		return err
	}
	reg := codec.Default()
	if infoCodecs {
		printCodecs(reg)
	}

	var failed int
	for _, path := range args {
		if err := printInfo(reg, path, opts); err != nil {
			fmt.Printf("  x %s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be described", failed, len(args))
	}
	return nil
}

func printInfo(reg *codec.Registry, path string, opts codec.Options) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c, err := reg.Sniff(f, opts)
	if err != nil {
		return err
	}
	desc, err := c.GetMetaData(f, opts)
	if err != nil {
		return err
	}
	fmt.Printf("  %s\n", path)
	fmt.Printf("    container:    %s\n", c.Name())
	fmt.Printf("    dimension:    %s\n", desc.Dimension)
	fmt.Printf("    size:         %dx%dx%d\n", desc.Width, desc.Height, desc.Depth)
	fmt.Printf("    mip levels:   %d\n", desc.MipCount)
	fmt.Printf("    array items:  %d\n", desc.ArrayCount)
	fmt.Printf("    pixel format: %s (%d bpp)\n", desc.Format, desc.Format.BitsPerPixel())
	return nil
}

func printCodecs(reg *codec.Registry) {
	fmt.Println()
	for _, c := range reg.List() {
		caps := c.Capabilities()
		var feats []string
		if caps.SupportsArray {
			feats = append(feats, "array")
		}
		if caps.SupportsMipMaps {
			feats = append(feats, "mips")
		}
		if caps.SupportsDepth {
			feats = append(feats, "depth")
		}
		if caps.SupportsBlockCompression {
			feats = append(feats, "block")
		}
		exts := c.Extensions()
		sort.Strings(exts)
		fmt.Printf("  %-5s %-24s %-22s %d formats\n",
			c.Kind(), strings.Join(exts, " "), strings.Join(feats, ","), len(caps.SupportedFormats))
	}
	fmt.Printf("\n  %s\n\n", reg)
}
