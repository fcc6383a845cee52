package ocr

import (
	"image"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
)

func TestNewReaderDefaultsToEnglishAndUrdu(t *testing.T) {
	assert.Equal(t, []string{"eng", "urd"}, NewReader().Languages())
	assert.Equal(t, []string{"eng"}, NewReader("eng").Languages())
}

func TestPreprocessUpscalesSmallCrops(t *testing.T) {
	small := image.NewNRGBA(image.Rect(0, 0, 200, 120))
	out := preprocess(small)

	assert.Equal(t, minRecognitionHeight, out.Bounds().Dy())
	// Aspect ratio preserved.
	assert.Equal(t, 1000, out.Bounds().Dx())
}

func TestPreprocessKeepsLargeFramesUnscaled(t *testing.T) {
	large := image.NewNRGBA(image.Rect(0, 0, 800, 1200))
	out := preprocess(large)

	assert.Equal(t, 1200, out.Bounds().Dy())
	assert.Equal(t, 800, out.Bounds().Dx())
}

func TestCollectLinesKeepsEngineOrderAndDropsBlanks(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Word: "  ISLAMIC REPUBLIC OF PAKISTAN  "},
		{Word: "\n\t"},
		{Word: "Identity Number"},
		{Word: ""},
		{Word: "12345-6789012-3"},
	}

	got := collectLines(boxes)
	assert.Equal(t, []string{
		"ISLAMIC REPUBLIC OF PAKISTAN",
		"Identity Number",
		"12345-6789012-3",
	}, got)
}
