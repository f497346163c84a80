package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/hasher"
	"github.com/AnyUserName/texpipe/internal/manifest"
	"github.com/spf13/cobra"
)

var validateProbe bool

var validateCmd = &cobra.Command{
	Use:   "validate <out_dir_or_manifest>",
	Short: "Validate a texpipe manifest and check referenced files",
	Long: `Checks manifest consistency and that every variant exists on disk
with the recorded size and content hash.
With --probe each variant is also read back through its codec and its
dimensions compared against the manifest.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateProbe, "probe", true, "read back variant headers through their codecs")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	path, err := manifestPath(args[0])
	if err != nil {
		return err
	}
	m, err := manifest.ReadJSON(path)
	if err != nil {
		return err
	}

	var reg *codec.Registry
	if validateProbe {
		reg = codec.Default()
	}
	errors := validateManifest(m, filepath.Dir(path), reg)

	if len(errors) == 0 {
		fmt.Println("  ✓ Manifest is valid")
		fmt.Printf("  ✓ %d assets, %d variants, all files present\n", m.Stats.TotalAssets, m.Stats.TotalVariants)
		return nil
	}

	fmt.Printf("  ✗ Manifest has %d error(s):\n", len(errors))
	for _, e := range errors {
		fmt.Printf("    • %s\n", e)
	}
	return fmt.Errorf("validation failed with %d errors", len(errors))
}

// validateManifest returns one message per problem. A nil registry skips
// reading the variants back.
func validateManifest(m *manifest.Manifest, baseDir string, reg *codec.Registry) []string {
	var errs []string

	if m.Version != manifest.SupportedManifestVersion {
		errs = append(errs, fmt.Sprintf("unsupported manifest version: %d", m.Version))
	}

	for key, asset := range m.Assets {
		if asset.Original.Width <= 0 || asset.Original.Height <= 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid original dimensions %dx%d",
				key, asset.Original.Width, asset.Original.Height))
		}
		if asset.SourceHash == "" {
			errs = append(errs, fmt.Sprintf("asset %q: missing source hash", key))
		}
		if asset.AspectRatio <= 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid aspect ratio %.4f", key, asset.AspectRatio))
		}
		if len(asset.Variants) == 0 {
			errs = append(errs, fmt.Sprintf("asset %q: no variants", key))
		}

		seenPaths := map[string]bool{}
		for i, v := range asset.Variants {
			if v.Format == "" {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: empty format", key, i))
			}
			if v.Width <= 0 || v.Height <= 0 {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: invalid dimensions %dx%d",
					key, i, v.Width, v.Height))
			}
			if v.Hash == "" {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: missing hash", key, i))
			}
			if v.Path == "" {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: missing path", key, i))
				continue
			}

			if seenPaths[v.Path] {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: duplicate path %q", key, i, v.Path))
			}
			seenPaths[v.Path] = true

			fullPath := filepath.Join(baseDir, v.Path)
			info, err := os.Stat(fullPath)
			if err != nil {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: file not found: %s", key, i, v.Path))
				continue
			}
			if v.Size > 0 && info.Size() != v.Size {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: size mismatch: manifest=%d, disk=%d",
					key, i, v.Size, info.Size()))
			}
			if v.Hash != "" {
				if sum, err := hasher.FileHash(fullPath, len(v.Hash)); err != nil || sum != v.Hash {
					errs = append(errs, fmt.Sprintf("asset %q variant[%d]: content hash mismatch: %s", key, i, v.Path))
				}
			}
			if reg != nil {
				if msg := probeVariant(reg, fullPath, v); msg != "" {
					errs = append(errs, fmt.Sprintf("asset %q variant[%d]: %s", key, i, msg))
				}
			}
		}
	}

	assetCount := len(m.Assets)
	variantCount := 0
	for _, a := range m.Assets {
		variantCount += len(a.Variants)
	}
	if m.Stats.TotalAssets != assetCount {
		errs = append(errs, fmt.Sprintf("stats.total_assets mismatch: %d != %d", m.Stats.TotalAssets, assetCount))
	}
	if m.Stats.TotalVariants != variantCount {
		errs = append(errs, fmt.Sprintf("stats.total_variants mismatch: %d != %d", m.Stats.TotalVariants, variantCount))
	}

	return errs
}

// probeVariant reads the header of a written variant and compares it with
// the manifest entry. It returns "" when they agree.
func probeVariant(reg *codec.Registry, path string, v manifest.Variant) string {
	c, err := reg.ForPath(path)
	if err != nil {
		return err.Error()
	}
	f, err := os.Open(path)
	if err != nil {
		return err.Error()
	}
	defer f.Close()

	var opts codec.Options
	if !c.IsReadable(f, opts) {
		return fmt.Sprintf("not readable as %s", c.Kind())
	}
	desc, err := c.GetMetaData(f, opts)
	if err != nil {
		return err.Error()
	}
	if desc.Width != v.Width || desc.Height != v.Height {
		return fmt.Sprintf("dimensions on disk %dx%d, manifest %dx%d", desc.Width, desc.Height, v.Width, v.Height)
	}
	return ""
}
