package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AnyUserName/texpipe/internal/manifest"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_manifest>",
	Short: "Display statistics for a built asset directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, args []string) error {
	path, err := manifestPath(args[0])
	if err != nil {
		return err
	}
	m, err := manifest.ReadJSON(path)
	if err != nil {
		return err
	}
	printStats(m)
	return nil
}

// manifestPath accepts either an output directory or the manifest itself.
func manifestPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, manifest.FileName)
	}
	return path, nil
}

type countSize struct {
	count int
	bytes int64
}

func printStats(m *manifest.Manifest) {
	fmt.Println()
	fmt.Printf("  Manifest version: %d\n", m.Version)
	fmt.Printf("  Generated:        %s\n", m.GeneratedAt)
	fmt.Printf("  Profile:          %s\n", m.Profile)
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:          %d\n", m.BuildInfo.Workers)
		if len(m.BuildInfo.Codecs) > 0 {
			fmt.Printf("  Codecs:           %s\n", strings.Join(m.BuildInfo.Codecs, ", "))
		}
	}
	fmt.Println()

	s := m.Stats
	fmt.Printf("  Total assets:     %d\n", s.TotalAssets)
	fmt.Printf("  Total variants:   %d\n", s.TotalVariants)
	fmt.Printf("  Input size:       %s\n", formatBytes(s.TotalInputBytes))
	fmt.Printf("  Output size:      %s\n", formatBytes(s.TotalOutputBytes))
	if s.TotalInputBytes > 0 {
		ratio := float64(s.TotalOutputBytes) / float64(s.TotalInputBytes) * 100
		fmt.Printf("  Compression:      %.1f%% of original\n", ratio)
	}
	if s.SkippedRegress > 0 {
		fmt.Printf("  Skipped:          %d variants\n", s.SkippedRegress)
	}
	fmt.Println()

	containers := map[string]countSize{}
	pixels := map[string]countSize{}
	widths := map[int]int{}
	var animated int
	for _, a := range m.Assets {
		if a.Original.Frames > 1 {
			animated++
		}
		for _, v := range a.Variants {
			c := containers[v.Format]
			c.count++
			c.bytes += v.Size
			containers[v.Format] = c

			p := pixels[v.PixelFormat]
			p.count++
			p.bytes += v.Size
			pixels[v.PixelFormat] = p

			widths[v.Width]++
		}
	}

	fmt.Println("  Container breakdown:")
	printBreakdown(containers)
	fmt.Println()
	fmt.Println("  Pixel format breakdown:")
	printBreakdown(pixels)
	fmt.Println()

	var ws []int
	for w := range widths {
		ws = append(ws, w)
	}
	sort.Ints(ws)
	fmt.Println("  Width breakdown:")
	for _, w := range ws {
		fmt.Printf("    %5dpx  %4d variants\n", w, widths[w])
	}
	fmt.Println()
	fmt.Printf("  Multi-frame sources: %d / %d assets\n", animated, len(m.Assets))

	var warnings []string
	for key, a := range m.Assets {
		if len(a.Variants) == 0 {
			warnings = append(warnings, fmt.Sprintf("asset %q has no variants", key))
		}
		if a.SourceHash == "" {
			warnings = append(warnings, fmt.Sprintf("asset %q missing source hash", key))
		}
	}
	sort.Strings(warnings)
	if len(warnings) > 0 {
		fmt.Println()
		fmt.Printf("  Warnings (%d):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("    ⚠ %s\n", w)
		}
	}
	fmt.Println()
}

func printBreakdown(set map[string]countSize) {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("    %-22s %4d files  %s\n", k, set[k].count, formatBytes(set[k].bytes))
	}
}
