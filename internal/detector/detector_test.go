package detector

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildOutput assembles an attribute-major tensor (attrs x anchors) the way
// the model emits it: rows 0-3 carry cx,cy,w,h in input pixels, remaining
// rows carry per-class scores.
func buildOutput(anchors int, boxes [][4]float32, scores [][]float32) []float32 {
	attrs := 4 + len(scores[0])
	data := make([]float32, attrs*anchors)
	for i := 0; i < anchors; i++ {
		for c := 0; c < 4; c++ {
			data[c*anchors+i] = boxes[i][c]
		}
		for c, s := range scores[i] {
			data[(4+c)*anchors+i] = s
		}
	}
	return data
}

func TestDecodeOutputScalesToSourceImage(t *testing.T) {
	// One anchor centered at input (320,320) with a 160x160 box, class 1.
	data := buildOutput(1,
		[][4]float32{{320, 320, 160, 160}},
		[][]float32{{0.1, 0.9}},
	)

	got := decodeOutput(data, 6, 1, 1280, 640, 0.25, []string{"a", "b"})
	require.Len(t, got, 1)

	// Source is 2x wider than the 640x640 input, same height.
	assert.Equal(t, image.Rect(480, 240, 800, 400), got[0].Box)
	assert.Equal(t, "b", got[0].Label)
	assert.InDelta(t, 0.9, float64(got[0].Confidence), 1e-6)
}

func TestDecodeOutputFiltersLowConfidence(t *testing.T) {
	data := buildOutput(2,
		[][4]float32{{100, 100, 50, 50}, {300, 300, 50, 50}},
		[][]float32{{0.2, 0.1}, {0.8, 0.05}},
	)

	got := decodeOutput(data, 6, 2, 640, 640, 0.25, []string{"a", "b"})
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Label)
}

func TestDecodeOutputClampsBoxesToImageBounds(t *testing.T) {
	// Box centered near the origin, extends past the top-left corner.
	data := buildOutput(1,
		[][4]float32{{10, 10, 100, 100}},
		[][]float32{{0.9}},
	)

	got := decodeOutput(data, 5, 1, 640, 640, 0.25, []string{"a"})
	require.Len(t, got, 1)

	box := got[0].Box
	assert.GreaterOrEqual(t, box.Min.X, 0)
	assert.GreaterOrEqual(t, box.Min.Y, 0)
	assert.LessOrEqual(t, box.Max.X, 640)
	assert.LessOrEqual(t, box.Max.Y, 640)
}

func TestDecodeOutputDropsDegenerateBoxes(t *testing.T) {
	data := buildOutput(1,
		[][4]float32{{320, 320, 0, 0}},
		[][]float32{{0.9}},
	)

	got := decodeOutput(data, 5, 1, 640, 640, 0.25, []string{"a"})
	assert.Empty(t, got)
}

func TestApplyNMSCollapsesOverlappingDetections(t *testing.T) {
	dets := []Detection{
		{Label: "card", Confidence: 0.7, Box: image.Rect(10, 10, 110, 110)},
		{Label: "card", Confidence: 0.9, Box: image.Rect(12, 12, 112, 112)},
		{Label: "card", Confidence: 0.6, Box: image.Rect(400, 400, 500, 500)},
	}

	got := applyNMS(dets, 0.45)
	require.Len(t, got, 2)

	// Highest-confidence overlap survivor first.
	assert.InDelta(t, 0.9, float64(got[0].Confidence), 1e-6)
	assert.Equal(t, image.Rect(400, 400, 500, 500), got[1].Box)
}

func TestIOU(t *testing.T) {
	a := image.Rect(0, 0, 10, 10)
	assert.InDelta(t, 1.0, float64(iou(a, a)), 1e-6)
	assert.InDelta(t, 0.0, float64(iou(a, image.Rect(20, 20, 30, 30))), 1e-6)

	half := iou(image.Rect(0, 0, 10, 10), image.Rect(0, 5, 10, 15))
	assert.InDelta(t, 1.0/3.0, float64(half), 1e-6)
}

func TestDetectionArea(t *testing.T) {
	d := Detection{Box: image.Rect(10, 20, 110, 70)}
	assert.Equal(t, 5000, d.Area())
}

func TestClassNameFallsBackForUnknownID(t *testing.T) {
	assert.Equal(t, "unknown", className([]string{"a"}, 5))
	assert.Equal(t, "unknown", className([]string{"a"}, -1))
	assert.Equal(t, "a", className([]string{"a"}, 0))
}
