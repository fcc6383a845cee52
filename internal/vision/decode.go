// Package vision converts transport-level image payloads into in-memory
// pixel grids (BGR gocv.Mat) shared by every model client.
package vision

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrInvalidImage marks payloads that cannot be interpreted as an image at
// any decoding step (malformed base64, truncated or non-image bytes).
var ErrInvalidImage = errors.New("invalid image")

// DecodeString decodes a base64 image payload into a BGR pixel grid. A
// data-URI header ("data:image/png;base64,....") is tolerated: everything up
// to and including the first comma is discarded before decoding.
func DecodeString(input string) (gocv.Mat, error) {
	if idx := strings.Index(input, ","); idx >= 0 {
		input = input[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return gocv.NewMat(), errors.Wrapf(ErrInvalidImage, "base64 decode: %v", err)
	}
	return DecodeBytes(raw)
}

// DecodeBytes decodes already-unwrapped image container bytes (JPEG, PNG,
// ...) into a BGR pixel grid.
func DecodeBytes(raw []byte) (gocv.Mat, error) {
	if len(raw) == 0 {
		return gocv.NewMat(), errors.Wrap(ErrInvalidImage, "empty payload")
	}

	img, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), errors.Wrapf(ErrInvalidImage, "imdecode: %v", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), errors.Wrap(ErrInvalidImage, "payload is not a decodable image")
	}
	return img, nil
}
