package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"

	"github.com/AnyUserName/texpipe/internal/bitmap"
	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/hasher"
	"github.com/AnyUserName/texpipe/internal/manifest"
	"github.com/AnyUserName/texpipe/internal/profile"
	"github.com/AnyUserName/texpipe/internal/texture"
)

// processResult holds the result of converting a single source image.
type processResult struct {
	key            string
	asset          manifest.Asset
	err            error
	skippedRegress int // variants skipped because larger than original
}

// processImage handles a single source: load, rescale, encode per kind.
func processImage(src Source, cfg Config, log *slog.Logger) processResult {
	result := processResult{key: src.Key}

	f, err := os.Open(src.AbsPath)
	if err != nil {
		result.err = fmt.Errorf("open %s: %w", src.RelPath, err)
		return result
	}
	defer f.Close()

	sourceHash, err := hasher.ContentHashReader(f, 16)
	if err != nil {
		result.err = fmt.Errorf("hash %s: %w", src.RelPath, err)
		return result
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		result.err = fmt.Errorf("rewind %s: %w", src.RelPath, err)
		return result
	}

	opts := cfg.Profile.Options()
	c, err := cfg.Registry.Get(src.Kind)
	if err != nil || !c.IsReadable(f, opts) {
		// The extension lied; let the signatures decide.
		c, err = cfg.Registry.Sniff(f, opts)
		if err != nil {
			result.err = fmt.Errorf("detect %s: %w", src.RelPath, err)
			return result
		}
		log.Warn("extension mismatch", "key", src.Key, "ext", src.Kind, "detected", c.Kind())
	}

	img, err := c.LoadFromStream(f, src.Size, opts)
	if err != nil {
		result.err = fmt.Errorf("load %s: %w", src.RelPath, err)
		return result
	}
	defer img.Dispose()

	// Volumes and block-compressed images have no per-cell bitmap form;
	// they are only re-encoded as-is into containers that can hold them.
	passthrough := img.Dimension == texture.Texture3D || img.Format.IsCompressed()

	hasAlpha := img.Format.HasAlpha()
	var avg *[3]uint8
	if !passthrough {
		first, err := img.Buffer(0, 0, 0).Image()
		if err != nil {
			result.err = fmt.Errorf("read %s: %w", src.RelPath, err)
			return result
		}
		hasAlpha = !opaque(first)
		a := averageColor(first)
		avg = &a
	}

	result.asset = manifest.Asset{
		Original: manifest.OriginalInfo{
			Width:       img.Width,
			Height:      img.Height,
			Format:      c.Kind().String(),
			PixelFormat: img.Format.String(),
			Frames:      img.ArrayCount,
			Size:        src.Size,
			HasAlpha:    hasAlpha,
		},
		SourceHash:  sourceHash,
		AspectRatio: float64(img.Width) / float64(img.Height),
		AvgColor:    avg,
	}

	widths := cfg.Profile.EffectiveWidths(img.Width)
	if passthrough {
		widths = []int{img.Width}
	}
	kinds := cfg.Registry.ResolveKinds(cfg.Profile.Kinds, hasAlpha)

	// Ensure output subdirectory exists.
	keyDir := filepath.Dir(src.Key)
	if keyDir != "." {
		if err := os.MkdirAll(filepath.Join(cfg.OutputDir, keyDir), 0o755); err != nil {
			result.err = fmt.Errorf("create %s: %w", keyDir, err)
			return result
		}
	}

	for _, w := range widths {
		// Calculate proportional height.
		h := max(1, int(float64(img.Height)*float64(w)/float64(img.Width)))

		for _, kind := range kinds {
			out, err := cfg.Registry.Get(kind)
			if err != nil {
				continue
			}
			caps := out.Capabilities()
			if passthrough && !(caps.SupportsDepth && caps.SupportsBlockCompression) {
				log.Debug("skip kind", "key", src.Key, "kind", kind, "format", img.Format, "dimension", img.Dimension)
				continue
			}

			variant := img
			if !passthrough {
				mips := 1
				if cfg.Profile.MipMaps && caps.SupportsMipMaps {
					mips = texture.MaxMipCount(w, h, 1, false)
				}
				if w != img.Width || h != img.Height || mips > 1 {
					variant, err = rescale(img, w, h, mips, cfg.Profile)
					if err != nil {
						log.Warn("rescale failed", "key", src.Key, "width", w, "err", err)
						continue
					}
				}
			}

			var buf bytes.Buffer
			err = out.SaveToStream(variant, &buf, opts)
			if variant != img {
				variant.Dispose()
			}
			if err != nil {
				log.Warn("encode failed", "key", src.Key, "width", w, "height", h, "kind", kind, "err", err)
				continue
			}
			data := buf.Bytes()

			// Skip variant if encoded size >= original (--no-regress-size).
			if cfg.NoRegressSize && int64(len(data)) >= src.Size {
				log.Debug("skip regress", "key", src.Key, "kind", kind, "encoded", len(data), "original", src.Size)
				result.skippedRegress++
				continue
			}

			// Content hash for filename.
			contentHash := hasher.ContentHash(data, 16)

			// Build filename: key.w.h.hash.ext
			fileName := fmt.Sprintf("%s.%d.%d.%s%s",
				filepath.Base(src.Key), w, h, contentHash[:8], out.Extensions()[0])
			relPath := filepath.ToSlash(filepath.Join(keyDir, fileName))

			outPath := filepath.Join(cfg.OutputDir, relPath)
			if err := os.WriteFile(outPath, data, 0o644); err != nil {
				result.err = fmt.Errorf("write %s: %w", relPath, err)
				return result
			}

			frames, mipCount := 1, 1
			if caps.SupportsArray && (opts.UseAllFrames || kind == codec.KindNative) {
				frames = img.ArrayCount
			}
			if caps.SupportsMipMaps {
				mipCount = mipsFor(img, w, h, cfg.Profile, passthrough)
			}
			result.asset.Variants = append(result.asset.Variants, manifest.Variant{
				Format:      kind.String(),
				PixelFormat: img.Format.String(),
				Width:       w,
				Height:      h,
				Frames:      frames,
				MipCount:    mipCount,
				Size:        int64(len(data)),
				Hash:        contentHash,
				Path:        relPath,
			})
		}
	}

	return result
}

func mipsFor(img *texture.Image, w, h int, p profile.Profile, passthrough bool) int {
	switch {
	case passthrough:
		return img.MipCount
	case p.MipMaps:
		return texture.MaxMipCount(w, h, 1, false)
	}
	return 1
}

// rescale rebuilds the top level of every array item at w×h with a mip
// chain of the given length. Each level is resampled from the top level.
func rescale(img *texture.Image, w, h, mips int, p profile.Profile) (*texture.Image, error) {
	base := make([]image.Image, img.ArrayCount)
	for item := range base {
		b, err := img.Buffer(0, item, 0).Image()
		if err != nil {
			return nil, err
		}
		base[item] = b
	}
	list := make([]image.Image, 0, len(base)*mips)
	for _, b := range base {
		for range mips {
			list = append(list, b)
		}
	}

	opts := bitmap.Options{
		Width:      w,
		Height:     h,
		MipCount:   mips,
		ArrayCount: len(base),
		Format:     img.Format,
		Filter:     p.Filter,
		Dither:     p.Dither,
	}
	build := bitmap.Build2D
	if img.Dimension == texture.Texture1D {
		build = bitmap.Build1D
	}
	out, err := build(list, opts)
	if err != nil {
		return nil, err
	}
	maps.Copy(out.Metadata, img.Metadata)
	return out, nil
}

// opaque reports whether every pixel of img is fully opaque.
func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

// averageColor returns the mean straight-alpha RGB of img. Decoded
// 8-bit formats arrive as NRGBA or Gray and are summed from Pix directly.
func averageColor(img image.Image) [3]uint8 {
	b := img.Bounds()
	n := uint64(b.Dx()) * uint64(b.Dy())
	if n == 0 {
		return [3]uint8{}
	}

	var r, g, bl uint64
	switch m := img.(type) {
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, y):][:4*b.Dx()]
			for i := 0; i < len(row); i += 4 {
				r += uint64(row[i])
				g += uint64(row[i+1])
				bl += uint64(row[i+2])
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for _, v := range m.Pix[m.PixOffset(b.Min.X, y):][:b.Dx()] {
				r += uint64(v)
			}
		}
		g, bl = r, r
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				r += uint64(c.R)
				g += uint64(c.G)
				bl += uint64(c.B)
			}
		}
	}
	return [3]uint8{uint8(r / n), uint8(g / n), uint8(bl / n)}
}
