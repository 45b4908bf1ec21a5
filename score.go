package fontdiff

import (
	"fmt"
	"math"

	"github.com/wbrown/fontdiff/imageutil"
)

// MaxSimilarity is the score given to images whose difference is too small
// for the reciprocal log to be meaningful, including identical images.
const MaxSimilarity = 1000.0

// minMeanSquared is the mean squared difference at which 1/ln reaches
// MaxSimilarity. Below it the formula would keep growing, then diverge at
// one and flip sign.
var minMeanSquared = math.Exp(1 / MaxSimilarity)

// Similarity is the result of comparing two rendered matrices. Scores are
// only comparable between images of the same dimensions.
type Similarity struct {
	Score       float64
	MeanSquared float64
	Identical   bool
}

// Score compares two images: it takes the per-pixel absolute difference,
// reduces it to BT.601 luminance, squares the mean intensity and returns
// its reciprocal natural log. The difference image is returned for
// inspection.
func Score(a, b *imageutil.RGBAImage) (Similarity, *imageutil.GrayImage, error) {
	if !imageutil.SameSize(a, b) {
		return Similarity{}, nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch,
			a.Width(), a.Height(), b.Width(), b.Height())
	}
	diff, err := imageutil.DiffLuminance(a, b)
	if err != nil {
		return Similarity{}, nil, err
	}
	return SimilarityFromMean(imageutil.MeanGray(diff)), diff, nil
}

// SimilarityFromMean converts a mean luminance difference into a score.
// The result is finite, positive, and never increases as mean grows.
func SimilarityFromMean(mean float64) Similarity {
	ms := mean * mean
	s := Similarity{MeanSquared: ms, Identical: ms == 0}
	if ms <= minMeanSquared {
		s.Score = MaxSimilarity
		return s
	}
	s.Score = 1 / math.Log(ms)
	return s
}
