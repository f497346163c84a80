package pipeline

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AnyUserName/texpipe/internal/codec"
)

// Source represents a discovered image file.
type Source struct {
	AbsPath string
	// RelPath is relative to the input directory, with forward slashes.
	RelPath string
	// Key is RelPath without its extension; it names the asset.
	Key string
	// Kind is the container the extension claims. The processor falls
	// back to sniffing when the content disagrees.
	Kind codec.Kind
	Size int64
}

// ScanImages walks inputDir and returns every non-empty file whose
// extension a codec of reg claims, sorted by key. Hidden directories are
// skipped. Two files mapping to the same key are an error since both
// would write the same manifest entry.
func ScanImages(inputDir string, reg *codec.Registry) ([]Source, error) {
	var sources []Source
	byKey := map[string]string{}

	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != inputDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		c, err := reg.ForPath(path)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			return nil
		}

		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		key := strings.TrimSuffix(rel, filepath.Ext(rel))
		if prev, dup := byKey[key]; dup {
			return fmt.Errorf("%s and %s both map to asset %q", prev, rel, key)
		}
		byKey[key] = rel

		sources = append(sources, Source{
			AbsPath: path,
			RelPath: rel,
			Key:     key,
			Kind:    c.Kind(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Key < sources[j].Key })
	return sources, nil
}
