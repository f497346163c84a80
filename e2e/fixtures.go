// Package e2e holds the end-to-end checks that run the conversion
// pipeline over a generated source tree.
package e2e

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
)

// Fixture describes one generated source image.
type Fixture struct {
	Key           string // asset key the pipeline derives
	Width, Height int
	Frames        int
	Gray          bool
	write         func(w io.Writer) error
}

// Fixtures returns the generated source set. Paths are relative to the
// input directory; the extension selects the container.
func Fixtures() map[string]Fixture {
	set := map[string]Fixture{
		"banner.jpg": {Key: "banner", Width: 400, Height: 225, Frames: 1, write: func(w io.Writer) error {
			return jpeg.Encode(w, gradient(400, 225), &jpeg.Options{Quality: 85})
		}},
		"logo.png": {Key: "logo", Width: 100, Height: 100, Frames: 1, write: func(w io.Writer) error {
			return png.Encode(w, alphaGradient(100, 100))
		}},
		"height.png": {Key: "height", Width: 128, Height: 128, Frames: 1, Gray: true, write: func(w io.Writer) error {
			return png.Encode(w, grayRamp(128, 128))
		}},
		"tile.bmp": {Key: "tile", Width: 64, Height: 64, Frames: 1, write: func(w io.Writer) error {
			return bmp.Encode(w, solidWithBorder(64, 64, 30))
		}},
		"spinner.gif": {Key: "spinner", Width: 48, Height: 48, Frames: 4, write: func(w io.Writer) error {
			return gif.EncodeAll(w, sweep(48, 4))
		}},
	}
	for i := 1; i <= 3; i++ {
		base := uint8(i * 60)
		set[fmt.Sprintf("cards/card-%d.png", i)] = Fixture{
			Key: fmt.Sprintf("cards/card-%d", i), Width: 200, Height: 150, Frames: 1,
			write: func(w io.Writer) error { return png.Encode(w, solidWithBorder(200, 150, base)) },
		}
	}
	return set
}

// WriteFixtures writes every fixture below dir.
func WriteFixtures(dir string) (map[string]Fixture, error) {
	set := Fixtures()
	for rel, fx := range set {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := writeFile(path, fx.write); err != nil {
			return nil, fmt.Errorf("fixture %s: %w", rel, err)
		}
	}
	return set, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func solidWithBorder(w, h int, base uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	fill := color.NRGBA{R: base, G: base + 40, B: base + 80, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := fill
			if x < 4 || x >= w-4 || y < 4 || y >= h-4 {
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func alphaGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 220, G: 60, B: 30, A: uint8(x * 255 / w)})
		}
	}
	return img
}

func grayRamp(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) * 255 / (w + h - 2))})
		}
	}
	return img
}

// sweep returns n frames of a bar moving across a size×size square.
func sweep(size, n int) *gif.GIF {
	anim := &gif.GIF{}
	bar := size / n
	for i := 0; i < n; i++ {
		frame := image.NewPaletted(image.Rect(0, 0, size, size), palette.Plan9)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				c := color.RGBA{R: 20, G: 20, B: 40, A: 255}
				if x >= i*bar && x < (i+1)*bar {
					c = color.RGBA{R: 240, G: 200, B: 40, A: 255}
				}
				frame.Set(x, y, c)
			}
		}
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, 10)
	}
	return anim
}
