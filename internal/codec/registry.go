package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Registry holds codecs by kind and file extension.
type Registry struct {
	mu     sync.RWMutex
	order  []Kind
	codecs map[Kind]Codec
	byExt  map[string]Kind
}

// NewRegistry returns a registry holding every built-in codec.
func NewRegistry() *Registry {
	r := &Registry{
		codecs: make(map[Kind]Codec),
		byExt:  make(map[string]Kind),
	}
	// Sniffing order: cheap header probes first, GIF last because its
	// probe decodes every frame.
	for _, c := range []Codec{
		NewNative(), NewPNG(), NewJPEG(), NewBMP(), NewTIFF(), NewWebP(), NewGIF(),
	} {
		r.Register(c)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the shared registry of built-in codecs.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Register adds c, replacing any codec of the same kind.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.codecs[c.Kind()]; !ok {
		r.order = append(r.order, c.Kind())
	}
	r.codecs[c.Kind()] = c
	for _, ext := range c.Extensions() {
		r.byExt[strings.ToLower(ext)] = c.Kind()
	}
}

// Get returns the codec of kind k.
func (r *Registry) Get(k Kind) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.codecs[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, k)
	}
	return c, nil
}

// ForPath picks a codec by the file extension of path.
func (r *Registry) ForPath(path string) (Codec, error) {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	k, ok := r.byExt[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: extension %q", ErrCodecNotFound, ext)
	}
	return r.Get(k)
}

// Sniff returns the first codec whose IsReadable accepts rs. The stream
// position is unchanged.
func (r *Registry) Sniff(rs io.ReadSeeker, opts Options) (Codec, error) {
	for _, c := range r.List() {
		if c.IsReadable(rs, opts) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: no codec accepts the stream", ErrCodecNotFound)
}

// List returns the codecs in registration order.
func (r *Registry) List() []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Codec, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.codecs[k])
	}
	return out
}

// Extensions returns every registered extension, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// Writable returns the kinds that can be saved, in registration order.
func (r *Registry) Writable() []Kind {
	var out []Kind
	for _, c := range r.List() {
		if canSave(c) {
			out = append(out, c.Kind())
		}
	}
	return out
}

func canSave(c Codec) bool {
	s, ok := c.(interface{ CanSave() bool })
	return !ok || s.CanSave()
}

// ResolveKinds filters requested output kinds to writable ones and makes
// sure at least one remains: PNG for images with alpha, JPEG otherwise.
func (r *Registry) ResolveKinds(requested []Kind, hasAlpha bool) []Kind {
	writable := r.Writable()
	var resolved []Kind
	for _, k := range requested {
		if slices.Contains(writable, k) && !slices.Contains(resolved, k) {
			resolved = append(resolved, k)
		}
	}
	if len(resolved) > 0 {
		return resolved
	}
	fallback := KindJPEG
	if hasAlpha {
		fallback = KindPNG
	}
	if slices.Contains(writable, fallback) {
		resolved = append(resolved, fallback)
	}
	return resolved
}

// String summarizes the registered codecs.
func (r *Registry) String() string {
	var names []string
	for _, c := range r.List() {
		name := c.Kind().String()
		if !canSave(c) {
			name += " (read-only)"
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "no codecs registered"
	}
	return "codecs: " + strings.Join(names, ", ")
}
