package codec

import (
	"image"
	"image/color"
	"strconv"

	"github.com/AnyUserName/texpipe/internal/container"
	"github.com/AnyUserName/texpipe/internal/palette"
	"github.com/AnyUserName/texpipe/internal/pixfmt"
	"github.com/AnyUserName/texpipe/internal/texture"
)

func frameCaps(array bool) Capabilities {
	return Capabilities{SupportsArray: array, SupportedFormats: uncompressed}
}

// NewPNG returns the PNG codec.
func NewPNG() *Adapter {
	return New(Config{
		Kind:         KindPNG,
		Name:         "PNG",
		Extensions:   []string{".png"},
		Capabilities: frameCaps(false),
		Service:      container.PNG(),
	})
}

// NewJPEG returns the JPEG codec.
func NewJPEG() *Adapter {
	return New(Config{
		Kind:         KindJPEG,
		Name:         "JPEG",
		Extensions:   []string{".jpg", ".jpeg", ".jpe", ".jfif"},
		Capabilities: frameCaps(false),
		Service:      container.JPEG(),
	})
}

// NewBMP returns the BMP codec.
func NewBMP() *Adapter {
	return New(Config{
		Kind:         KindBMP,
		Name:         "BMP",
		Extensions:   []string{".bmp", ".dib"},
		Capabilities: frameCaps(false),
		Service:      container.BMP(),
	})
}

// NewTIFF returns the TIFF codec.
func NewTIFF() *Adapter {
	return New(Config{
		Kind:         KindTIFF,
		Name:         "TIFF",
		Extensions:   []string{".tif", ".tiff"},
		Capabilities: frameCaps(false),
		Service:      container.TIFF(),
	})
}

// NewWebP returns the decode-only WebP codec.
func NewWebP() *Adapter {
	return New(Config{
		Kind:         KindWebP,
		Name:         "WebP",
		Extensions:   []string{".webp"},
		Capabilities: frameCaps(false),
		Service:      container.WebP(),
	})
}

// NewGIF returns the GIF codec. With UseAllFrames every frame becomes an
// array item; frame delays and the loop count travel in the metadata as
// "gif.delay.<item>" and "gif.loop_count".
func NewGIF() *Adapter {
	return New(Config{
		Kind:              KindGIF,
		Name:              "GIF",
		Extensions:        []string{".gif"},
		Capabilities:      frameCaps(true),
		Service:           container.GIF(),
		FrameOffset:       func(f container.Frame) image.Point { return f.Offset },
		Palette:           gifPalette,
		AddCustomMetaData: gifMetaData,
		SetFrameOptions:   gifFrameOptions,
	})
}

const (
	gifLoopKey  = "gif.loop_count"
	gifDelayKey = "gif.delay."
)

func gifMetaData(meta map[string]string, d container.Decoder, frames int) {
	meta[gifLoopKey] = strconv.Itoa(d.Config().LoopCount)
	for i := 0; i < frames; i++ {
		f, err := d.Frame(i)
		if err != nil {
			return
		}
		meta[gifDelayKey+strconv.Itoa(i)] = strconv.Itoa(f.Delay)
	}
}

func gifFrameOptions(f *container.Frame, img *texture.Image, item int, opts Options) {
	f.Delay = opts.FrameDelay
	if v, ok := img.Metadata[gifDelayKey+strconv.Itoa(item)]; ok {
		if d, err := strconv.Atoi(v); err == nil {
			f.Delay = d
		}
	}
}

// gifPalette builds palettes with at most one transparent entry, since a
// GIF frame can only mark a single index as transparent. Translucent
// pixels become either opaque or fully transparent.
func gifPalette(img image.Image, target pixfmt.Native, opts Options) *palette.Info {
	if opts.Palette != nil {
		return palette.Fixed(opts.Palette.Entries)
	}
	if target == pixfmt.NativeBlackWhite {
		return nil
	}
	b := img.Bounds()
	flat := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			if c.A < 0x80 {
				c = color.NRGBA{}
			} else {
				c.A = 0xff
			}
			flat.SetNRGBA(x, y, c)
		}
	}
	return palette.Build(flat, target.PaletteSize())
}
