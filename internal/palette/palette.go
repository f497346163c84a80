// Package palette extracts color lookup tables from indexed frames and
// builds quantized ones for indexed encodings.
//
// An Info lives for one frame conversion. Callers Release it when the
// conversion that consumed it is done; palettes are never shared across
// frames because each frame may quantize differently.
package palette

import (
	"image"
	"image/color"
	"sort"
	"sync"

	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"golang.org/x/image/draw"
)

// Kind records where a palette came from.
type Kind int

const (
	KindCustom Kind = iota
	KindExtracted
	KindFixed
	KindGrayscale
)

func (k Kind) String() string {
	switch k {
	case KindExtracted:
		return "extracted"
	case KindFixed:
		return "fixed"
	case KindGrayscale:
		return "grayscale"
	}
	return "custom"
}

// Dither selects how colors are mapped onto a palette.
type Dither int

const (
	DitherNone Dither = iota
	DitherErrorDiffusion
)

// Info is a color table plus the parameters used to apply it.
type Info struct {
	Entries color.Palette
	// AlphaPercentage is the share of entries (0-100) that are not fully
	// opaque.
	AlphaPercentage float64
	Kind            Kind

	pooled *color.Palette
}

// entryPool recycles entry storage between frames. 256 entries covers
// every indexed encoding.
var entryPool = sync.Pool{New: func() any {
	p := make(color.Palette, 0, 256)
	return &p
}}

func newInfo(kind Kind, colors []color.Color) *Info {
	p := entryPool.Get().(*color.Palette)
	*p = append((*p)[:0], colors...)
	info := &Info{Entries: *p, Kind: kind, pooled: p}
	info.AlphaPercentage = alphaPercentage(info.Entries)
	return info
}

// Extract returns the palette of an indexed frame. It reports false for
// any frame whose native encoding is not indexed.
func Extract(img image.Image) (*Info, bool) {
	p, ok := img.(*image.Paletted)
	if !ok || !pixfmt.NativeOf(img).IsIndexed() {
		return nil, false
	}
	return newInfo(KindExtracted, p.Palette), true
}

// Fixed wraps a caller-supplied palette.
func Fixed(p color.Palette) *Info {
	return newInfo(KindFixed, p)
}

// Grayscale returns an n-entry ramp from black to white.
func Grayscale(n int) *Info {
	n = min(max(n, 2), 256)
	colors := make([]color.Color, n)
	for i := range colors {
		v := uint8(i * 255 / (n - 1))
		colors[i] = color.Gray{Y: v}
	}
	return newInfo(KindGrayscale, colors)
}

// Palette returns a copy of the entries that outlives Release.
func (i *Info) Palette() color.Palette {
	out := make(color.Palette, len(i.Entries))
	copy(out, i.Entries)
	return out
}

// Release returns pooled storage. The Info must not be used afterwards.
func (i *Info) Release() {
	if i == nil || i.pooled == nil {
		return
	}
	clear(*i.pooled)
	*i.pooled = (*i.pooled)[:0]
	entryPool.Put(i.pooled)
	i.pooled = nil
	i.Entries = nil
}

// Expand resolves every index of p through the palette. Indices outside
// the palette become transparent black.
func (i *Info) Expand(p *image.Paletted) *image.NRGBA {
	var lut [256]color.NRGBA
	for k, c := range i.Entries {
		if k == len(lut) {
			break
		}
		lut[k] = color.NRGBAModel.Convert(c).(color.NRGBA)
	}
	b := p.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := p.Pix[p.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			var c color.NRGBA
			if int(src[x]) < len(i.Entries) {
				c = lut[src[x]]
			}
			dst[x*4+0], dst[x*4+1], dst[x*4+2], dst[x*4+3] = c.R, c.G, c.B, c.A
		}
	}
	return out
}

// Quantize maps img onto the palette. The result's bounds start at the
// origin.
func (i *Info) Quantize(img image.Image, d Dither) *image.Paletted {
	b := img.Bounds()
	out := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), i.Palette())
	if d == DitherErrorDiffusion {
		draw.FloydSteinberg.Draw(out, out.Bounds(), img, b.Min)
	} else {
		draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	}
	return out
}

func alphaPercentage(p color.Palette) float64 {
	if len(p) == 0 {
		return 0
	}
	n := 0
	for _, c := range p {
		if _, _, _, a := c.RGBA(); a != 0xffff {
			n++
		}
	}
	return float64(n) * 100 / float64(len(p))
}

// Build derives a palette of at most maxColors entries from the pixels of
// img. Images with few enough distinct colors keep them exactly;
// otherwise colors are reduced by median cut.
func Build(img image.Image, maxColors int) *Info {
	maxColors = min(max(maxColors, 2), 256)
	hist := histogram(img)
	if len(hist) <= maxColors {
		colors := make([]color.Color, len(hist))
		for k, e := range hist {
			colors[k] = e.c
		}
		return newInfo(KindCustom, colors)
	}

	boxes := []box{{entries: hist}}
	for len(boxes) < maxColors {
		idx, ch := -1, 0
		best := -1
		for k := range boxes {
			if len(boxes[k].entries) < 2 {
				continue
			}
			c, r := boxes[k].widest()
			if r > best {
				idx, ch, best = k, c, r
			}
		}
		if idx < 0 {
			break
		}
		lo, hi := boxes[idx].split(ch)
		boxes[idx] = lo
		boxes = append(boxes, hi)
	}

	colors := make([]color.Color, len(boxes))
	for k := range boxes {
		colors[k] = boxes[k].mean()
	}
	return newInfo(KindCustom, colors)
}

type histEntry struct {
	c     color.NRGBA
	count int
}

// histogram counts distinct colors in a deterministic order.
func histogram(img image.Image) []histEntry {
	counts := map[color.NRGBA]int{}
	b := img.Bounds()
	if src, ok := img.(*image.NRGBA); ok {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				counts[color.NRGBA{R: row[x*4], G: row[x*4+1], B: row[x*4+2], A: row[x*4+3]}]++
			}
		}
	} else {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				counts[color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)]++
			}
		}
	}
	out := make([]histEntry, 0, len(counts))
	for c, n := range counts {
		out = append(out, histEntry{c, n})
	}
	sort.Slice(out, func(i, j int) bool { return packNRGBA(out[i].c) < packNRGBA(out[j].c) })
	return out
}

func packNRGBA(c color.NRGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

type box struct {
	entries []histEntry
}

func channel(c color.NRGBA, ch int) uint8 {
	switch ch {
	case 0:
		return c.R
	case 1:
		return c.G
	case 2:
		return c.B
	}
	return c.A
}

// widest returns the channel with the largest value range.
func (b box) widest() (ch, rng int) {
	for c := 0; c < 4; c++ {
		lo, hi := 255, 0
		for _, e := range b.entries {
			v := int(channel(e.c, c))
			lo, hi = min(lo, v), max(hi, v)
		}
		if hi-lo > rng {
			ch, rng = c, hi-lo
		}
	}
	return ch, rng
}

// split divides the box at the pixel-weighted median of channel ch.
func (b box) split(ch int) (box, box) {
	sort.SliceStable(b.entries, func(i, j int) bool {
		return channel(b.entries[i].c, ch) < channel(b.entries[j].c, ch)
	})
	total := 0
	for _, e := range b.entries {
		total += e.count
	}
	acc, cut := 0, 1
	for k, e := range b.entries[:len(b.entries)-1] {
		acc += e.count
		cut = k + 1
		if acc*2 >= total {
			break
		}
	}
	return box{entries: b.entries[:cut:cut]}, box{entries: b.entries[cut:]}
}

func (b box) mean() color.NRGBA {
	var r, g, bl, a, n int
	for _, e := range b.entries {
		r += int(e.c.R) * e.count
		g += int(e.c.G) * e.count
		bl += int(e.c.B) * e.count
		a += int(e.c.A) * e.count
		n += e.count
	}
	if n == 0 {
		return color.NRGBA{}
	}
	return color.NRGBA{
		R: uint8((r + n/2) / n),
		G: uint8((g + n/2) / n),
		B: uint8((bl + n/2) / n),
		A: uint8((a + n/2) / n),
	}
}
