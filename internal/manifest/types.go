package manifest

// Manifest is the top-level output of a texpipe conversion run.
type Manifest struct {
	Version     int              `json:"version"`
	GeneratedAt string           `json:"generated_at"`
	Profile     string           `json:"profile"`
	BasePath    string           `json:"base_path"`
	BuildInfo   *BuildInfo       `json:"build_info,omitempty"`
	Assets      map[string]Asset `json:"assets"`
	Stats       Stats            `json:"stats"`
}

// BuildInfo captures run parameters for diagnostics.
type BuildInfo struct {
	Workers int      `json:"workers"`
	Codecs  []string `json:"codecs,omitempty"`
}

// Asset describes a single source image and all its converted outputs.
type Asset struct {
	Original    OriginalInfo `json:"original"`
	SourceHash  string       `json:"source_hash"`         // xxhash64 of the source file
	AspectRatio float64      `json:"aspect_ratio"`        // width / height
	AvgColor    *[3]uint8    `json:"avg_color,omitempty"` // [R,G,B] 0-255, optional
	Variants    []Variant    `json:"variants"`
}

// OriginalInfo holds metadata about the source image.
type OriginalInfo struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`       // container kind
	PixelFormat string `json:"pixel_format"` // decoded internal format
	Frames      int    `json:"frames"`
	Size        int64  `json:"size"`
	HasAlpha    bool   `json:"has_alpha"`
}

// Variant is one encoded output of an asset.
type Variant struct {
	Format      string `json:"format"` // "png", "jpeg", "gif", "texz", ...
	PixelFormat string `json:"pixel_format"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Frames      int    `json:"frames"`
	MipCount    int    `json:"mip_count"`
	Size        int64  `json:"size"` // bytes on disk
	Hash        string `json:"hash"` // first 16 hex chars of xxhash64
	Path        string `json:"path"` // relative to base_path
}

// Stats aggregates run metrics.
type Stats struct {
	TotalInputBytes  int64 `json:"total_input_bytes"`
	TotalOutputBytes int64 `json:"total_output_bytes"`
	TotalAssets      int   `json:"total_assets"`
	TotalVariants    int   `json:"total_variants"`
	SkippedRegress   int   `json:"skipped_regress,omitempty"` // variants skipped (larger than original)
}

// SupportedManifestVersion is the current schema version.
const SupportedManifestVersion = 1

// FileName is the manifest's name inside an output directory.
const FileName = "texpipe.manifest.json"
