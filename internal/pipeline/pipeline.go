package pipeline

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/AnyUserName/texpipe/internal/codec"
	"github.com/AnyUserName/texpipe/internal/manifest"
	"github.com/AnyUserName/texpipe/internal/profile"
)

// Config holds all parameters for a conversion run.
type Config struct {
	InputDir      string
	OutputDir     string
	Profile       profile.Profile
	Workers       int
	NoRegressSize bool // skip variants larger than original
	// Registry defaults to codec.Default().
	Registry *codec.Registry
	// Logger defaults to codec.Logger().
	Logger *slog.Logger
}

// Pipeline orchestrates batch conversion.
type Pipeline struct {
	cfg Config
	log *slog.Logger
}

// New creates a configured pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Registry == nil {
		cfg.Registry = codec.Default()
	}
	log := cfg.Logger
	if log == nil {
		log = codec.Logger()
	}
	return &Pipeline{cfg: cfg, log: log.With("profile", cfg.Profile.Name)}
}

// Run converts every source and returns the manifest. Individual
// failures are logged; Run fails only when every source fails.
func (p *Pipeline) Run() (*manifest.Manifest, error) {
	p.log.Debug("registry", "codecs", p.cfg.Registry.String())

	// Step 1: Scan for images.
	sources, err := ScanImages(p.cfg.InputDir, p.cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no images found in %s", p.cfg.InputDir)
	}
	p.log.Info("scan complete", "images", len(sources))

	// Step 2: Convert in parallel.
	results := make([]processResult, len(sources))
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.cfg.Workers)

	for i, src := range sources {
		wg.Add(1)
		go func(idx int, s Source) {
			defer wg.Done()
			sem <- struct{}{}        // acquire
			defer func() { <-sem }() // release

			p.log.Debug("processing", "key", s.Key, "kind", s.Kind)
			results[idx] = processImage(s, p.cfg, p.log)
			if results[idx].err == nil {
				p.log.Debug("done", "key", s.Key, "variants", len(results[idx].asset.Variants))
			}
		}(i, src)
	}
	wg.Wait()

	// Step 3: Collect results into manifest.
	m := manifest.New(p.cfg.Profile.Name)

	var failed int
	var totalSkipped int
	for _, r := range results {
		if r.err != nil {
			failed++
			p.log.Error("convert failed", "key", r.key, "err", r.err)
			continue
		}
		m.Assets[r.key] = r.asset
		totalSkipped += r.skippedRegress
	}
	if failed > 0 {
		if failed == len(sources) {
			return nil, fmt.Errorf("all %d images failed to convert", failed)
		}
		p.log.Warn("partial failure", "failed", failed, "total", len(sources))
	}

	var names []string
	for _, c := range p.cfg.Registry.List() {
		names = append(names, c.Kind().String())
	}
	m.BuildInfo = &manifest.BuildInfo{
		Workers: p.cfg.Workers,
		Codecs:  names,
	}
	m.Stats.SkippedRegress = totalSkipped
	m.ComputeStats()
	return m, nil
}
