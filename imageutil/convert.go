package imageutil

import "image/color"

// ToGrayscale converts an RGBA image to grayscale using the standard
// luminance formula: Y = 0.299*R + 0.587*G + 0.114*B
// This matches the BT.601 standard used by OpenCV's COLOR_BGR2GRAY.
func ToGrayscale(img *RGBAImage) *GrayImage {
	width, height := img.Width(), img.Height()
	gray := NewGrayImage(width, height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := img.RGBAAt(x, y)
			gray.Gray.SetGray(x, y, color.Gray{Y: Luminance(c.R, c.G, c.B)})
		}
	}

	return gray
}

// Luminance returns the BT.601 luma of one pixel, rounded to the nearest
// integer with integer math.
func Luminance(r, g, b uint8) uint8 {
	lum := (299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000
	if lum > 255 {
		lum = 255
	}
	return uint8(lum)
}

// MeanGray returns the average intensity of a grayscale image, or 0 for an
// empty image.
func MeanGray(img *GrayImage) float64 {
	width, height := img.Width(), img.Height()
	if width == 0 || height == 0 {
		return 0
	}
	var sum uint64
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width]
		for _, v := range row {
			sum += uint64(v)
		}
	}
	return float64(sum) / float64(width*height)
}
