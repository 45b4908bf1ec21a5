//go:build gocv

package fontdiff

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/wbrown/fontdiff/imageutil"
)

// ScoreOpenCV computes the same similarity as Score with OpenCV doing the
// pixel work. Build with -tags gocv.
func ScoreOpenCV(a, b *imageutil.RGBAImage) (Similarity, error) {
	if !imageutil.SameSize(a, b) {
		return Similarity{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch,
			a.Width(), a.Height(), b.Width(), b.Height())
	}
	ma, err := gocv.ImageToMatRGB(a.RGBA)
	if err != nil {
		return Similarity{}, fmt.Errorf("convert image: %w", err)
	}
	defer ma.Close()
	mb, err := gocv.ImageToMatRGB(b.RGBA)
	if err != nil {
		return Similarity{}, fmt.Errorf("convert image: %w", err)
	}
	defer mb.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(ma, mb, &diff)

	// ImageToMatRGB produces BGR channel order.
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(diff, &gray, gocv.ColorBGRToGray)

	return SimilarityFromMean(gray.Mean().Val1), nil
}
