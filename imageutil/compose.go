package imageutil

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// AbsDiff returns the per-channel absolute difference |a - b| as an opaque
// RGBA image. Both images must have the same dimensions.
func AbsDiff(a, b *RGBAImage) (*RGBAImage, error) {
	if !SameSize(a, b) {
		return nil, fmt.Errorf("image sizes differ: %dx%d vs %dx%d",
			a.Width(), a.Height(), b.Width(), b.Height())
	}
	width, height := a.Width(), a.Height()
	out := NewRGBAImage(width, height)
	for y := 0; y < height; y++ {
		ra := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):]
		rb := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):]
		ro := out.Pix[out.PixOffset(0, y):]
		for x := 0; x < width*4; x += 4 {
			ro[x] = absDiff8(ra[x], rb[x])
			ro[x+1] = absDiff8(ra[x+1], rb[x+1])
			ro[x+2] = absDiff8(ra[x+2], rb[x+2])
			ro[x+3] = 255
		}
	}
	return out, nil
}

// DiffLuminance fuses AbsDiff and ToGrayscale without allocating the
// intermediate RGBA image.
func DiffLuminance(a, b *RGBAImage) (*GrayImage, error) {
	if !SameSize(a, b) {
		return nil, fmt.Errorf("image sizes differ: %dx%d vs %dx%d",
			a.Width(), a.Height(), b.Width(), b.Height())
	}
	width, height := a.Width(), a.Height()
	out := NewGrayImage(width, height)
	for y := 0; y < height; y++ {
		ra := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):]
		rb := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):]
		ro := out.Pix[y*out.Stride:]
		for x := 0; x < width; x++ {
			i := x * 4
			ro[x] = Luminance(
				absDiff8(ra[i], rb[i]),
				absDiff8(ra[i+1], rb[i+1]),
				absDiff8(ra[i+2], rb[i+2]),
			)
		}
	}
	return out, nil
}

func absDiff8(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// Translate returns a copy of src shifted by (dx, dy). Uncovered pixels
// are filled with bg; pixels shifted past the edge are dropped.
func Translate(src *RGBAImage, dx, dy int, bg RGB) *RGBAImage {
	out := NewCanvas(src.Width(), src.Height(), bg)
	dst := out.Bounds().Add(image.Pt(dx, dy)).Intersect(out.Bounds())
	if dst.Empty() {
		return out
	}
	draw.Draw(out.RGBA, dst, src.RGBA, src.Bounds().Min.Sub(image.Pt(dx, dy)).Add(dst.Min), draw.Src)
	return out
}

// CopyRect copies rect of src onto the same rectangle of dst.
func CopyRect(dst, src *RGBAImage, rect image.Rectangle) {
	rect = rect.Intersect(dst.Bounds()).Intersect(src.Bounds())
	if rect.Empty() {
		return
	}
	draw.Draw(dst.RGBA, rect, src.RGBA, rect.Min, draw.Src)
}

// HConcat places images side by side on a bg canvas tall enough for the
// tallest one, separated by gap pixels.
func HConcat(bg RGB, gap int, imgs ...image.Image) *RGBAImage {
	width, height := 0, 0
	for i, img := range imgs {
		b := img.Bounds()
		if i > 0 {
			width += gap
		}
		width += b.Dx()
		if b.Dy() > height {
			height = b.Dy()
		}
	}
	out := NewCanvas(width, height, bg)
	x := 0
	for _, img := range imgs {
		b := img.Bounds()
		draw.Draw(out.RGBA, image.Rect(x, 0, x+b.Dx(), b.Dy()), img, b.Min, draw.Src)
		x += b.Dx() + gap
	}
	return out
}
