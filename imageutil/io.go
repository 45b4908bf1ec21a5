package imageutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"time"
)

// EncodePNG returns the PNG encoding of img.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG decodes PNG data into an RGBAImage.
func DecodePNG(data []byte) (*RGBAImage, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	return RGBAImageFromImage(img), nil
}

// SavePNG saves an image as PNG to the specified path.
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return png.Encode(f, img)
}

// SaveAnimatedGIF writes frames as a looping animation showing each frame
// for delay. Frames are quantized to the Plan 9 palette; black-on-white
// matrices survive that unchanged.
func SaveAnimatedGIF(frames []image.Image, delay time.Duration, path string) error {
	if len(frames) == 0 {
		return fmt.Errorf("no frames for %s", path)
	}
	anim := &gif.GIF{LoopCount: 0}
	centis := int(delay / (10 * time.Millisecond))
	for _, frame := range frames {
		b := frame.Bounds()
		p := image.NewPaletted(b, grayPalette())
		draw.Draw(p, b, frame, b.Min, draw.Src)
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, centis)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := gif.EncodeAll(f, anim); err != nil {
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	return nil
}

// grayPalette keeps the 16 Plan 9 grays plus pure black and white first so
// antialiased glyph edges quantize to neutral tones.
func grayPalette() color.Palette {
	p := color.Palette{color.Black, color.White}
	for _, c := range palette.Plan9 {
		r, g, b, _ := c.RGBA()
		if r == g && g == b {
			p = append(p, c)
		}
	}
	return p
}
