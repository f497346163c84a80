package e2e

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/hasher"
	"github.com/AnyUserName/texpipe/internal/manifest"
	"github.com/AnyUserName/texpipe/internal/pipeline"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/profile"
	"github.com/AnyUserName/texpipe/internal/texture"
)

func build(t *testing.T, prof string) (*manifest.Manifest, string, map[string]Fixture) {
	t.Helper()
	in, out := t.TempDir(), t.TempDir()
	set, err := WriteFixtures(in)
	if err != nil {
		t.Fatal(err)
	}
	m, err := pipeline.New(pipeline.Config{
		InputDir:  in,
		OutputDir: out,
		Profile:   profile.Get(prof),
		Workers:   4,
	}).Run()
	if err != nil {
		t.Fatal(err)
	}
	if err := manifest.WriteJSON(m, filepath.Join(out, manifest.FileName)); err != nil {
		t.Fatal(err)
	}
	if len(m.Assets) != len(set) {
		t.Fatalf("%d assets for %d fixtures", len(m.Assets), len(set))
	}
	return m, out, set
}

// loadVariant decodes a written .texz variant and checks its content hash.
func loadVariant(t *testing.T, out string, v manifest.Variant) *texture.Image {
	t.Helper()
	path := filepath.Join(out, v.Path)
	if sum, err := hasher.FileHash(path, len(v.Hash)); err != nil || sum != v.Hash {
		t.Fatalf("%s: hash %s, %v; manifest %s", v.Path, sum, err, v.Hash)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := codec.NewNative().LoadFromStream(f, v.Size, codec.Options{})
	if err != nil {
		t.Fatalf("%s: %v", v.Path, err)
	}
	return img
}

func TestArchiveProfile(t *testing.T) {
	m, out, set := build(t, "archive")

	for _, fx := range set {
		a, ok := m.Assets[fx.Key]
		if !ok {
			t.Errorf("asset %s missing", fx.Key)
			continue
		}
		if a.Original.Width != fx.Width || a.Original.Height != fx.Height || a.Original.Frames != fx.Frames {
			t.Errorf("%s: original %+v", fx.Key, a.Original)
		}
		if len(a.Variants) != 1 || a.Variants[0].Format != codec.KindNative.String() {
			t.Errorf("%s: variants %+v", fx.Key, a.Variants)
			continue
		}

		img := loadVariant(t, out, a.Variants[0])
		if img.Width != fx.Width || img.Height != fx.Height || img.ArrayCount != fx.Frames || img.MipCount != 1 {
			t.Errorf("%s: stored %+v", fx.Key, img.Descriptor)
		}
		want := pixfmt.R8G8B8A8UNorm
		if fx.Gray {
			want = pixfmt.R8UNorm
		}
		if img.Format != want {
			t.Errorf("%s: format %s, want %s", fx.Key, img.Format, want)
		}
		img.Dispose()
	}

	// The GIF's per-frame delays travel with the archived image.
	spinner := loadVariant(t, out, m.Assets["spinner"].Variants[0])
	defer spinner.Dispose()
	if spinner.Metadata["gif.delay.3"] != "10" {
		t.Errorf("metadata %v", spinner.Metadata)
	}
}

func TestTextureProfile(t *testing.T) {
	m, out, _ := build(t, "texture")

	spinner := m.Assets["spinner"]
	if len(spinner.Variants) != 1 {
		t.Fatalf("variants %+v", spinner.Variants)
	}
	v := spinner.Variants[0]
	if v.Frames != 4 || v.MipCount != 6 {
		t.Errorf("variant frames %d mips %d", v.Frames, v.MipCount)
	}
	img := loadVariant(t, out, v)
	defer img.Dispose()
	if img.ArrayCount != 4 || img.MipCount != 6 {
		t.Fatalf("stored %+v", img.Descriptor)
	}
	if b := img.Buffer(1, 3, 0); b.Width != 24 || b.Height != 24 {
		t.Errorf("mip 1 is %dx%d", b.Width, b.Height)
	}
	if b := img.Buffer(5, 0, 0); b.Width != 1 || b.Height != 1 {
		t.Errorf("last mip is %dx%d", b.Width, b.Height)
	}

	// ForceRGB promotes grayscale sources.
	height := loadVariant(t, out, m.Assets["height"].Variants[0])
	defer height.Dispose()
	if height.Format != pixfmt.R8G8B8A8UNorm || height.MipCount != 8 {
		t.Errorf("height stored %+v", height.Descriptor)
	}
}

func TestWebProfile(t *testing.T) {
	m, out, set := build(t, "web")

	for _, fx := range set {
		a := m.Assets[fx.Key]
		if len(a.Variants) == 0 {
			t.Errorf("%s: no variants", fx.Key)
			continue
		}
		for _, v := range a.Variants {
			if v.Width > fx.Width {
				t.Errorf("%s: upscaled to %d", fx.Key, v.Width)
			}
			info, err := os.Stat(filepath.Join(out, v.Path))
			if err != nil || info.Size() != v.Size {
				t.Errorf("%s: %s on disk: %v", fx.Key, v.Path, err)
			}
		}
	}

	// 400 wide: the 320 target applies and the larger ones are dropped.
	for _, v := range m.Assets["banner"].Variants {
		if v.Width != 320 || v.Height != 180 {
			t.Errorf("banner variant %dx%d", v.Width, v.Height)
		}
	}
}
