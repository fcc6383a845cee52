package usecase

import (
	"context"
	"image"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/example/kyc-engine/internal/detector"
	"github.com/example/kyc-engine/internal/face"
	"github.com/example/kyc-engine/internal/logging"
	"github.com/example/kyc-engine/internal/vision"
)

const (
	// Fixed margin added around the winning card box, clamped to the frame.
	cardMargin = 10

	// Labels whose best confidence does not exceed this are dropped from the
	// shop report.
	tagConfidenceThreshold = 0.4
)

// ObjectDetector is the detection-model client used for both card
// localization and shop-object tagging.
type ObjectDetector interface {
	Detect(img gocv.Mat) ([]detector.Detection, error)
}

// TextReader is the OCR-model client.
type TextReader interface {
	ReadText(img gocv.Mat) ([]string, error)
}

// FaceMatcher is the face-verification-model client.
type FaceMatcher interface {
	Compare(a, b gocv.Mat) (face.Result, error)
}

// KYCUseCase composes the three model clients into the verification flows
// served by the endpoint layer. It is immutable after construction and safe
// for concurrent use.
type KYCUseCase struct {
	detector ObjectDetector
	reader   TextReader
	faces    FaceMatcher
	logger   *zap.Logger
	metrics  *metrics
}

// ShopReport is the outcome of a shop verification: the deduplicated set of
// detected object labels plus the text recognized on the full frame.
type ShopReport struct {
	Objects []string
	Text    []string
}

// NewKYCUseCase constructs a new use case instance.
func NewKYCUseCase(det ObjectDetector, reader TextReader, faces FaceMatcher, logger *zap.Logger) *KYCUseCase {
	return &KYCUseCase{
		detector: det,
		reader:   reader,
		faces:    faces,
		logger:   logger.Named("kyc_usecase"),
		metrics:  newMetrics(),
	}
}

// VerifyCNIC decodes the document photo, crops it to the most likely card
// region, and returns the raw recognized text lines. Field parsing is left
// to the caller.
func (uc *KYCUseCase) VerifyCNIC(ctx context.Context, imagePayload string) (lines []string, err error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify_cnic", requestID)
	defer uc.metrics.observe(opVerifyCNIC, time.Now(), &err)

	img, err := vision.DecodeString(imagePayload)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_image", requestID, err)
		opLogger.Error("image decode failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer img.Close()

	card, err := uc.cropCard(img)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.crop_card", requestID, err)
		opLogger.Error("card localization failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer card.Close()

	lines, err = uc.reader.ReadText(card)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.read_text", requestID, err)
		opLogger.Error("text extraction failed", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("cnic text extracted",
		zap.Int("lines", len(lines)),
		zap.Int("crop_width", card.Cols()),
		zap.Int("crop_height", card.Rows()))
	return lines, nil
}

// FaceVerify decodes the document photo and the live selfie and relays the
// face model's match decision verbatim.
func (uc *KYCUseCase) FaceVerify(ctx context.Context, image1, image2 string) (result face.Result, err error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.face_verify", requestID)
	defer uc.metrics.observe(opFaceVerify, time.Now(), &err)

	document, err := vision.DecodeString(image1)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_document", requestID, err)
		opLogger.Error("document decode failed", zap.Error(wrapped))
		return face.Result{}, wrapped
	}
	defer document.Close()

	selfie, err := vision.DecodeString(image2)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_selfie", requestID, err)
		opLogger.Error("selfie decode failed", zap.Error(wrapped))
		return face.Result{}, wrapped
	}
	defer selfie.Close()

	result, err = uc.faces.Compare(document, selfie)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.compare_faces", requestID, err)
		opLogger.Error("face comparison failed", zap.Error(wrapped))
		return face.Result{}, wrapped
	}

	opLogger.Info("faces compared",
		zap.Bool("verified", result.Verified),
		zap.Float32("distance", result.Distance))
	return result, nil
}

// ShopVerify tags objects in the frame and recognizes text on the full,
// uncropped image. Labels are kept only when their best confidence exceeds
// the tagging threshold, deduplicated, and sorted for a stable response.
func (uc *KYCUseCase) ShopVerify(ctx context.Context, imagePayload string) (report *ShopReport, err error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.shop_verify", requestID)
	defer uc.metrics.observe(opShopVerify, time.Now(), &err)

	img, err := vision.DecodeString(imagePayload)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.decode_image", requestID, err)
		opLogger.Error("image decode failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer img.Close()

	detections, err := uc.detector.Detect(img)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.detect_objects", requestID, err)
		opLogger.Error("object detection failed", zap.Error(wrapped))
		return nil, wrapped
	}

	seen := make(map[string]struct{})
	objects := make([]string, 0, len(detections))
	for _, d := range detections {
		if d.Confidence <= tagConfidenceThreshold {
			continue
		}
		if _, ok := seen[d.Label]; ok {
			continue
		}
		seen[d.Label] = struct{}{}
		objects = append(objects, d.Label)
	}
	sort.Strings(objects)

	text, err := uc.reader.ReadText(img)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.read_text", requestID, err)
		opLogger.Error("text extraction failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if text == nil {
		text = []string{}
	}

	opLogger.Info("shop frame analyzed",
		zap.Int("objects", len(objects)),
		zap.Int("text_lines", len(text)))
	return &ShopReport{Objects: objects, Text: text}, nil
}

// cropCard localizes the document in the frame: the largest detected box
// wins regardless of class, expanded by a fixed margin and clamped to the
// frame. Zero detections fall back to the whole image, never an error. The
// returned Mat is always a copy owned by the caller.
func (uc *KYCUseCase) cropCard(img gocv.Mat) (gocv.Mat, error) {
	detections, err := uc.detector.Detect(img)
	if err != nil {
		return gocv.NewMat(), err
	}

	best, ok := largestDetection(detections)
	if !ok {
		return img.Clone(), nil
	}

	size := img.Size()
	rect := expandBox(best.Box, cardMargin, size[1], size[0])
	region := img.Region(rect)
	defer region.Close()
	return region.Clone(), nil
}

// largestDetection picks the candidate with strictly greatest box area; on a
// tie the first maximum encountered wins.
func largestDetection(detections []detector.Detection) (detector.Detection, bool) {
	var best detector.Detection
	maxArea := 0
	for _, d := range detections {
		if area := d.Area(); area > maxArea {
			maxArea = area
			best = d
		}
	}
	return best, maxArea > 0
}

// expandBox grows the box by margin pixels on each side, clamped to the
// frame bounds.
func expandBox(box image.Rectangle, margin, width, height int) image.Rectangle {
	return box.Inset(-margin).Intersect(image.Rect(0, 0, width, height))
}
