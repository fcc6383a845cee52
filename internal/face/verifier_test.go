package face

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDistance(t *testing.T) {
	same := []float32{0.5, 0.5, 0}
	assert.InDelta(t, 0, float64(cosineDistance(same, same)), 1e-6)

	opposite := []float32{-0.5, -0.5, 0}
	assert.InDelta(t, 2, float64(cosineDistance(same, opposite)), 1e-6)

	orthogonal := []float32{0, 0, 1}
	assert.InDelta(t, 1, float64(cosineDistance(same, orthogonal)), 1e-6)
}

func TestCosineDistanceZeroVectorIsMaximallyDistant(t *testing.T) {
	zero := []float32{0, 0, 0}
	other := []float32{1, 0, 0}
	assert.InDelta(t, 2, float64(cosineDistance(zero, other)), 1e-6)
}

func TestCompareDecision(t *testing.T) {
	a := []float32{1, 0, 0}

	match := compare(a, a)
	assert.True(t, match.Verified)
	assert.InDelta(t, 0, float64(match.Distance), 1e-6)
	assert.InDelta(t, matchThreshold, float64(match.Threshold), 1e-6)

	miss := compare(a, []float32{0, 1, 0})
	assert.False(t, miss.Verified)
	assert.InDelta(t, 1, float64(miss.Distance), 1e-6)
}

func TestFillInputWritesNormalizedChannelPlanes(t *testing.T) {
	// Uniform color so the Lanczos resize cannot change pixel values.
	frame := image.NewNRGBA(image.Rect(0, 0, 50, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 50; x++ {
			frame.SetNRGBA(x, y, color.NRGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}

	data := make([]float32, 3*inputSize*inputSize)
	require.NoError(t, fillInput(frame, data))

	channelSize := inputSize * inputSize
	assert.InDelta(t, (255.0-127.5)/128.0, float64(data[0]), 1e-3)               // R plane
	assert.InDelta(t, (0.0-127.5)/128.0, float64(data[channelSize]), 1e-3)      // G plane
	assert.InDelta(t, (128.0-127.5)/128.0, float64(data[2*channelSize]), 1e-2)  // B plane
}

func TestFillInputRejectsUndersizedTensor(t *testing.T) {
	frame := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	err := fillInput(frame, make([]float32, 10))
	require.Error(t, err)
}
