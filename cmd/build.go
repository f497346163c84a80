package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/manifest"
	"github.com/AnyUserName/texpipe/internal/pipeline"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/placement"
	"github.com/AnyUserName/texpipe/internal/profile"
	"github.com/spf13/cobra"
)

var (
	buildOutDir    string
	buildProfile   string
	buildWorkers   int
	buildWidths    []int
	buildKinds     []string
	buildQuality   int
	buildFilter    string
	buildMipMaps   bool
	buildAllFrames bool
	buildForceRGB  bool
	buildNoRegress bool
)

var buildCmd = &cobra.Command{
	Use:   "build <input_dir>",
	Short: "Convert a directory of images and write a manifest",
	Long: `Scans the input directory for every extension a codec claims,
loads each image into the uniform representation, and writes resized
variants in the profile's output containers plus a manifest file.

Output filenames are content-addressed: <key>.<w>.<h>.<hash>.ext`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	fs := buildCmd.Flags()
	fs.StringVarP(&buildOutDir, "out", "o", "./texpipe_out", "output directory")
	fs.StringVarP(&buildProfile, "profile", "p", "web",
		"conversion profile ("+strings.Join(profile.Names(), ", ")+")")
	fs.IntVarP(&buildWorkers, "workers", "w", 0, "parallel workers (0 = NumCPU)")
	fs.IntSliceVar(&buildWidths, "widths", nil, "custom widths (overrides profile)")
	fs.StringSliceVar(&buildKinds, "kinds", nil, "output containers (overrides profile)")
	fs.IntVarP(&buildQuality, "quality", "q", 0, "quality 1-100 (0 = profile default)")
	fs.StringVar(&buildFilter, "filter", "", "resampling filter (overrides profile)")
	fs.BoolVar(&buildMipMaps, "mips", false, "add full mip chains where the container stores them")
	fs.BoolVar(&buildAllFrames, "all-frames", false, "keep every frame of multi-frame sources")
	fs.BoolVar(&buildForceRGB, "force-rgb", false, "decode grayscale and BGR sources as RGBA")
	fs.BoolVar(&buildNoRegress, "no-regress-size", false, "skip variants larger than original file")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	start := time.Now()

	absInput, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve input path: %w", err)
	}
	absOutput, err := filepath.Abs(buildOutDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	prof := profile.Get(buildProfile)
	if err := applyBuildOverrides(&prof); err != nil {
		return err
	}

	logVerbose("input:   %s", absInput)
	logVerbose("output:  %s", absOutput)
	logVerbose("profile: %s (widths=%v, kinds=%v, filter=%s, mips=%v, frames=%v)",
		prof.Name, prof.Widths, prof.Kinds, prof.Filter, prof.MipMaps, prof.AllFrames)

	if err := os.MkdirAll(absOutput, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	m, err := pipeline.New(pipeline.Config{
		InputDir:      absInput,
		OutputDir:     absOutput,
		Profile:       prof,
		Workers:       buildWorkers,
		NoRegressSize: buildNoRegress,
	}).Run()
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	manifestPath := filepath.Join(absOutput, manifest.FileName)
	if err := manifest.WriteJSON(m, manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	printBuildReport(m, time.Since(start))
	return nil
}

// applyBuildOverrides folds the command-line flags into prof. Flags left
// at their zero value keep the profile's setting.
func applyBuildOverrides(prof *profile.Profile) error {
	if buildWidths != nil {
		prof.Widths = buildWidths
	}
	if buildKinds != nil {
		prof.Kinds = nil
		for _, name := range buildKinds {
			k, ok := codec.ParseKind(name)
			if !ok {
				return fmt.Errorf("unknown output kind %q", name)
			}
			prof.Kinds = append(prof.Kinds, k)
		}
	}
	if buildQuality > 0 {
		prof.Quality = buildQuality
	}
	if buildFilter != "" {
		f, ok := placement.ParseFilter(buildFilter)
		if !ok {
			return fmt.Errorf("unknown filter %q", buildFilter)
		}
		prof.Filter = f
	}
	prof.MipMaps = prof.MipMaps || buildMipMaps
	prof.AllFrames = prof.AllFrames || buildAllFrames
	if buildForceRGB {
		prof.Flags |= pixfmt.ForceRGB
	}
	return nil
}

func printBuildReport(m *manifest.Manifest, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("  texpipe build complete")
	fmt.Println()

	stats := m.Stats
	ratio := float64(0)
	if stats.TotalInputBytes > 0 {
		ratio = float64(stats.TotalOutputBytes) / float64(stats.TotalInputBytes) * 100
	}

	fmt.Printf("  Assets:      %d\n", stats.TotalAssets)
	fmt.Printf("  Variants:    %d\n", stats.TotalVariants)
	fmt.Printf("  Input size:  %s\n", formatBytes(stats.TotalInputBytes))
	fmt.Printf("  Output size: %s\n", formatBytes(stats.TotalOutputBytes))
	fmt.Printf("  Ratio:       %.1f%% of original\n", ratio)
	if stats.SkippedRegress > 0 {
		fmt.Printf("  Skipped:     %d variants (larger than original)\n", stats.SkippedRegress)
	}
	fmt.Printf("  Time:        %s\n", elapsed.Round(time.Millisecond))
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:     %d\n", m.BuildInfo.Workers)
	}
	fmt.Println()

	containers := map[string]countSize{}
	var arrays, chains int
	for _, a := range m.Assets {
		for _, v := range a.Variants {
			c := containers[v.Format]
			c.count++
			c.bytes += v.Size
			containers[v.Format] = c
			if v.Frames > 1 {
				arrays++
			}
			if v.MipCount > 1 {
				chains++
			}
		}
	}
	if len(containers) > 0 {
		fmt.Println("  Containers:")
		printBreakdown(containers)
		fmt.Println()
	}
	if arrays > 0 || chains > 0 {
		fmt.Printf("  Layered:     %d with frames, %d with mip chains\n", arrays, chains)
		fmt.Println()
	}

	data, _ := json.Marshal(m)
	fmt.Printf("  Manifest:    %s (%s)\n", manifest.FileName, formatBytes(int64(len(data))))
	fmt.Println()
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
