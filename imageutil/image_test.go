package imageutil

import (
	"image"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRGBAImage(t *testing.T) {
	img := NewRGBAImage(100, 50)
	if img.Width() != 100 {
		t.Errorf("Expected width 100, got %d", img.Width())
	}
	if img.Height() != 50 {
		t.Errorf("Expected height 50, got %d", img.Height())
	}
}

func TestRGBAImageGetSetRGB(t *testing.T) {
	img := NewRGBAImage(10, 10)
	c := RGB{R: 100, G: 150, B: 200}
	img.SetRGB(5, 5, c)

	got := img.GetRGB(5, 5)
	if got != c {
		t.Errorf("Expected %v, got %v", c, got)
	}
}

func TestRGBAImageClone(t *testing.T) {
	img := NewRGBAImage(10, 10)
	img.SetRGB(5, 5, RGB{R: 255, G: 0, B: 0})

	clone := img.Clone()
	if clone.GetRGB(5, 5) != img.GetRGB(5, 5) {
		t.Error("Clone should have same pixel values")
	}

	// Modify clone, original should be unchanged
	clone.SetRGB(5, 5, RGB{R: 0, G: 255, B: 0})
	if img.GetRGB(5, 5).G != 0 {
		t.Error("Modifying clone should not affect original")
	}
}

func TestNewGrayImage(t *testing.T) {
	img := NewGrayImage(100, 50)
	if img.Width() != 100 {
		t.Errorf("Expected width 100, got %d", img.Width())
	}
	if img.Height() != 50 {
		t.Errorf("Expected height 50, got %d", img.Height())
	}
}

func TestGrayImageGetSetGray(t *testing.T) {
	img := NewGrayImage(10, 10)
	img.Gray.Pix[5*img.Stride+5] = 128

	got := img.GrayAt(5, 5).Y
	if got != 128 {
		t.Errorf("Expected 128, got %d", got)
	}
}

func TestToGrayscale(t *testing.T) {
	// Test with known values
	img := NewRGBAImage(1, 1)
	img.SetRGB(0, 0, RGB{R: 255, G: 255, B: 255})

	gray := ToGrayscale(img)
	v := gray.GrayAt(0, 0).Y

	// White should produce white (255)
	if v != 255 {
		t.Errorf("White pixel should convert to 255, got %d", v)
	}

	// Test black
	img.SetRGB(0, 0, RGB{R: 0, G: 0, B: 0})
	gray = ToGrayscale(img)
	v = gray.GrayAt(0, 0).Y
	if v != 0 {
		t.Errorf("Black pixel should convert to 0, got %d", v)
	}

	// Test red (0.299 * 255 = 76.245)
	img.SetRGB(0, 0, RGB{R: 255, G: 0, B: 0})
	gray = ToGrayscale(img)
	v = gray.GrayAt(0, 0).Y
	if v < 75 || v > 77 {
		t.Errorf("Red pixel should convert to ~76, got %d", v)
	}
}

func TestSavePNG(t *testing.T) {
	img := CreateColorBarsImage(64, 64)
	path := filepath.Join(t.TempDir(), "test.png")
	if err := SavePNG(img.RGBA, path); err != nil {
		t.Fatalf("Failed to save PNG: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read PNG: %v", err)
	}
	loaded, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("Failed to decode PNG: %v", err)
	}
	if mse := CalculateMSE(img, loaded); mse != 0 {
		t.Errorf("PNG should be lossless, MSE=%f", mse)
	}
}

func TestCalculateMSE(t *testing.T) {
	img1 := NewRGBAImage(10, 10)
	img2 := NewRGBAImage(10, 10)

	// Same images should have MSE of 0
	mse := CalculateMSE(img1, img2)
	if mse != 0 {
		t.Errorf("Identical images should have MSE=0, got %f", mse)
	}

	// Different images
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img1.SetRGB(x, y, RGB{R: 0, G: 0, B: 0})
			img2.SetRGB(x, y, RGB{R: 10, G: 10, B: 10})
		}
	}
	mse = CalculateMSE(img1, img2)
	expected := 100.0 // 10^2 = 100
	if mse != expected {
		t.Errorf("Expected MSE=%f, got %f", expected, mse)
	}
}

func TestMeanGray(t *testing.T) {
	img := NewGrayImage(4, 2)
	for i := range img.Pix {
		img.Pix[i] = 10
	}
	img.Pix[0] = 90
	// (7*10 + 90) / 8 = 20
	if got := MeanGray(img); got != 20 {
		t.Errorf("Expected mean 20, got %f", got)
	}
	if got := MeanGray(NewGrayImage(0, 0)); got != 0 {
		t.Errorf("Empty image should have mean 0, got %f", got)
	}
}

func TestAbsDiff(t *testing.T) {
	a := CreateSolidImage(8, 8, RGB{R: 200, G: 10, B: 50})
	b := CreateSolidImage(8, 8, RGB{R: 100, G: 30, B: 50})

	diff, err := AbsDiff(a, b)
	if err != nil {
		t.Fatalf("AbsDiff failed: %v", err)
	}
	want := RGB{R: 100, G: 20, B: 0}
	if got := diff.GetRGB(3, 3); got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}

	if _, err := AbsDiff(a, NewRGBAImage(4, 8)); err == nil {
		t.Error("AbsDiff should reject images of different sizes")
	}
}

func TestDiffLuminanceMatchesTwoStep(t *testing.T) {
	a := CreateColorBarsImage(64, 16)
	b := CreateCheckerboardImage(64, 16, 4)

	diff, err := AbsDiff(a, b)
	if err != nil {
		t.Fatalf("AbsDiff failed: %v", err)
	}
	twoStep := ToGrayscale(diff)
	fused, err := DiffLuminance(a, b)
	if err != nil {
		t.Fatalf("DiffLuminance failed: %v", err)
	}
	if mse := CalculateMSEGray(twoStep, fused); mse != 0 {
		t.Errorf("Fused diff should equal AbsDiff+ToGrayscale, MSE=%f", mse)
	}
}

func TestTranslate(t *testing.T) {
	src := CreateSolidImage(10, 10, White)
	src.SetRGB(2, 3, Black)

	tests := []struct {
		name   string
		dx, dy int
		at     image.Point
		inked  bool
	}{
		{"Right and down", 3, 2, image.Pt(5, 5), true},
		{"Left and up", -2, -3, image.Pt(0, 0), true},
		{"Shifted out", 20, 0, image.Pt(2, 3), false},
		{"Origin vacated", 1, 1, image.Pt(2, 3), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Translate(src, tt.dx, tt.dy, White)
			if out.Width() != 10 || out.Height() != 10 {
				t.Fatalf("Translate should keep dimensions, got %dx%d", out.Width(), out.Height())
			}
			got := out.GetRGB(tt.at.X, tt.at.Y) == Black
			if got != tt.inked {
				t.Errorf("Pixel %v inked=%v, want %v", tt.at, got, tt.inked)
			}
			if n := CountInk(out); tt.inked && n != 1 {
				t.Errorf("Expected exactly one inked pixel, got %d", n)
			}
		})
	}
}

func TestCopyRect(t *testing.T) {
	dst := CreateSolidImage(10, 10, White)
	src := CreateSolidImage(10, 10, Black)

	CopyRect(dst, src, image.Rect(0, 0, 10, 3))
	if got := CountInk(dst); got != 30 {
		t.Errorf("Expected 30 copied pixels, got %d", got)
	}
	if dst.GetRGB(0, 3) != White {
		t.Error("Pixels outside the rectangle should be untouched")
	}
}

func TestHConcat(t *testing.T) {
	a := CreateSolidImage(10, 5, Black)
	b := CreateSolidImage(6, 8, Black)

	out := HConcat(White, 2, a.RGBA, b.RGBA)
	if out.Width() != 18 || out.Height() != 8 {
		t.Fatalf("Expected 18x8, got %dx%d", out.Width(), out.Height())
	}
	if out.GetRGB(11, 0) != White {
		t.Error("Gap column should be background")
	}
	if out.GetRGB(12, 7) != Black {
		t.Error("Second image should start after the gap")
	}
	if out.GetRGB(0, 7) != White {
		t.Error("Short image should be padded with background")
	}
}

func TestPNGRoundTripBytes(t *testing.T) {
	img := CreateCheckerboardImage(32, 32, 8)
	data, err := EncodePNG(img.RGBA)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	back, err := DecodePNG(data)
	if err != nil {
		t.Fatalf("DecodePNG failed: %v", err)
	}
	if mse := CalculateMSE(img, back); mse != 0 {
		t.Errorf("PNG should be lossless, MSE=%f", mse)
	}

	if _, err := DecodePNG(data[:len(data)/2]); err == nil {
		t.Error("Truncated PNG should fail to decode")
	}
}

func TestSaveAnimatedGIF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anim.gif")
	frames := []image.Image{
		CreateCheckerboardImage(16, 16, 4).RGBA,
		CreateSolidImage(16, 16, White).RGBA,
	}
	if err := SaveAnimatedGIF(frames, 750*time.Millisecond, path); err != nil {
		t.Fatalf("SaveAnimatedGIF failed: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open GIF: %v", err)
	}
	defer f.Close()
	anim, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("Failed to decode GIF: %v", err)
	}
	if len(anim.Image) != 2 || anim.Delay[0] != 75 || anim.LoopCount != 0 {
		t.Errorf("Unexpected animation: %d frames, delay %v, loop %d", len(anim.Image), anim.Delay, anim.LoopCount)
	}
	first := RGBAImageFromImage(anim.Image[0])
	if mse := CalculateMSE(CreateCheckerboardImage(16, 16, 4), first); mse != 0 {
		t.Errorf("First frame should decode unchanged, MSE=%f", mse)
	}

	if err := SaveAnimatedGIF(nil, time.Second, path); err == nil {
		t.Error("SaveAnimatedGIF should reject an empty frame list")
	}
}
