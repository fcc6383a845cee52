// Package ocr wraps the pretrained Tesseract text-recognition engine.
package ocr

import (
	"bytes"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Crops below this height are upscaled before recognition; Tesseract degrades
// sharply on small text.
const minRecognitionHeight = 600

// Reader recognizes text in a pixel grid using a fixed language set. A fresh
// Tesseract client is built per call, so a single Reader is safe for
// concurrent use.
type Reader struct {
	langs []string
}

// NewReader builds a reader for the given Tesseract language codes
// (e.g. "eng", "urd").
func NewReader(langs ...string) *Reader {
	if len(langs) == 0 {
		langs = []string{"eng", "urd"}
	}
	return &Reader{langs: langs}
}

// Languages returns the configured language codes.
func (r *Reader) Languages() []string {
	return append([]string(nil), r.langs...)
}

// ReadText recognizes text in the frame and returns one string per detected
// text line, in the order the engine emits them. No spatial canonicalization
// or field parsing is applied.
func (r *Reader) ReadText(img gocv.Mat) ([]string, error) {
	if img.Empty() {
		return nil, errors.New("ocr: empty input image")
	}

	frame, err := img.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "ocr: convert frame")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, preprocess(frame), imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "ocr: encode frame")
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(r.langs...); err != nil {
		return nil, errors.Wrap(err, "ocr: set languages")
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, errors.Wrap(err, "ocr: set image")
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, errors.Wrap(err, "ocr: recognize")
	}
	return collectLines(boxes), nil
}

// preprocess applies the light cleanup pass that consistently helps
// recognition on document photos: grayscale, a touch of contrast and
// sharpening, and an upscale for small crops.
func preprocess(img image.Image) *image.NRGBA {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 15)
	out = imaging.Sharpen(out, 0.7)
	if out.Bounds().Dy() > 0 && out.Bounds().Dy() < minRecognitionHeight {
		out = imaging.Resize(out, 0, minRecognitionHeight, imaging.Lanczos)
	}
	return out
}

// collectLines flattens engine text lines into the response sequence,
// dropping whitespace-only fragments.
func collectLines(boxes []gosseract.BoundingBox) []string {
	lines := make([]string, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}
	return lines
}
