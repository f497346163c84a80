package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestManifestRoundtrip(t *testing.T) {
	m := New("test-profile")
	m.BuildInfo = &BuildInfo{Workers: 4, Codecs: []string{"png", "texz"}}
	m.Assets["test/image"] = Asset{
		Original: OriginalInfo{
			Width: 800, Height: 600,
			Format: "jpeg", PixelFormat: "R8G8B8A8_UNORM", Frames: 1,
			Size: 100000, HasAlpha: false,
		},
		SourceHash:  "0123456789abcdef",
		AspectRatio: 1.3333,
		Variants: []Variant{
			{
				Format: "png", PixelFormat: "R8G8B8A8_UNORM",
				Width: 320, Height: 240, Frames: 1, MipCount: 1,
				Size: 5000, Hash: "abcd1234", Path: "test/image.320.240.abcd1234.png",
			},
		},
	}

	// Write to temp file.
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := WriteJSON(m, path); err != nil {
		t.Fatalf("write: %v", err)
	}

	m2, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// Verify fields.
	if m2.Version != SupportedManifestVersion {
		t.Errorf("version: got %d, want %d", m2.Version, SupportedManifestVersion)
	}
	if m2.Profile != "test-profile" {
		t.Errorf("profile: got %q", m2.Profile)
	}
	if m2.BuildInfo == nil {
		t.Fatal("build_info missing")
	}
	if m2.BuildInfo.Workers != 4 {
		t.Errorf("workers: got %d", m2.BuildInfo.Workers)
	}
	if len(m2.BuildInfo.Codecs) != 2 {
		t.Errorf("codecs: got %v", m2.BuildInfo.Codecs)
	}

	a, ok := m2.Assets["test/image"]
	if !ok {
		t.Fatal("asset test/image missing")
	}
	if a.SourceHash != "0123456789abcdef" {
		t.Errorf("source_hash: got %q", a.SourceHash)
	}
	if a.Original.PixelFormat != "R8G8B8A8_UNORM" {
		t.Errorf("pixel_format: got %q", a.Original.PixelFormat)
	}
	if len(a.Variants) != 1 {
		t.Fatalf("variants: got %d", len(a.Variants))
	}
	if a.Variants[0].Format != "png" {
		t.Errorf("variant format: got %q", a.Variants[0].Format)
	}

	// Stats.
	if m2.Stats.TotalAssets != 1 {
		t.Errorf("total_assets: got %d", m2.Stats.TotalAssets)
	}
	if m2.Stats.TotalVariants != 1 {
		t.Errorf("total_variants: got %d", m2.Stats.TotalVariants)
	}
	if m2.Stats.TotalOutputBytes != 5000 {
		t.Errorf("total_output_bytes: got %d", m2.Stats.TotalOutputBytes)
	}
}

func TestComputeStatsKeepsSkipped(t *testing.T) {
	m := New("skip")
	m.Stats.SkippedRegress = 3
	m.ComputeStats()
	if m.Stats.SkippedRegress != 3 {
		t.Errorf("skipped_regress: got %d, want 3", m.Stats.SkippedRegress)
	}
}

func TestManifestVersion(t *testing.T) {
	m := New("v-test")
	if m.Version != SupportedManifestVersion {
		t.Errorf("new manifest version: got %d, want %d", m.Version, SupportedManifestVersion)
	}
}

func TestReadJSONMissing(t *testing.T) {
	if _, err := ReadJSON(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestManifestIgnoresUnknownFields(t *testing.T) {
	// Simulate a future manifest with extra fields.
	raw := `{
		"version": 1,
		"generated_at": "2025-01-01T00:00:00Z",
		"profile": "test",
		"base_path": "./",
		"future_field": "should be ignored",
		"build_info": { "workers": 8, "new_flag": true },
		"assets": {},
		"stats": { "total_input_bytes": 0, "total_output_bytes": 0, "total_assets": 0, "total_variants": 0, "new_stat": 42 }
	}`

	var m Manifest
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal with unknown fields: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("version: got %d", m.Version)
	}
	if m.BuildInfo == nil || m.BuildInfo.Workers != 8 {
		t.Error("build_info not parsed correctly")
	}
}

func TestWriteJSONReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New("replace")
	if err := WriteJSON(m, path); err != nil {
		t.Fatal(err)
	}
	got, err := ReadJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Profile != "replace" || got.Assets == nil {
		t.Errorf("read back %+v", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}
