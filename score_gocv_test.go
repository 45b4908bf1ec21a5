//go:build gocv

package fontdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/fontdiff/imageutil"
)

func TestScoreOpenCVAgreesWithScore(t *testing.T) {
	a := imageutil.CreateColorBarsImage(64, 48)
	b := imageutil.Translate(a, 3, 0, imageutil.White)

	same, err := ScoreOpenCV(a, a.Clone())
	require.NoError(t, err)
	assert.Equal(t, MaxSimilarity, same.Score)

	want, _, err := Score(a, b)
	require.NoError(t, err)
	got, err := ScoreOpenCV(a, b)
	require.NoError(t, err)
	// OpenCV rounds luminance with its own coefficients.
	assert.InEpsilon(t, want.Score, got.Score, 0.02)

	_, err = ScoreOpenCV(a, imageutil.NewRGBAImage(8, 8))
	assert.ErrorIs(t, err, ErrSizeMismatch)
}
