// Package detector wraps the pretrained general-purpose object detection
// model behind a typed, lock-protected client.
package detector

import (
	"image"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	inputWidth  = 640
	inputHeight = 640

	// Base score below which raw candidates are discarded before NMS.
	defaultConfThreshold = 0.25
	defaultNMSThreshold  = 0.45
)

// Detection is one detected object, already converted from the model's raw
// tensor layout into pixel coordinates of the source image.
type Detection struct {
	Label      string
	Confidence float32
	Box        image.Rectangle
}

// Area returns the detection box area in pixels.
func (d Detection) Area() int {
	size := d.Box.Size()
	return size.X * size.Y
}

// Detector runs a YOLO-family ONNX model through the gocv DNN module. The
// underlying net holds mutable native state, so calls are serialized with a
// per-instance mutex.
type Detector struct {
	mu            sync.Mutex
	net           gocv.Net
	confThreshold float32
	nmsThreshold  float32
	classes       []string
}

// New loads the detection model from an ONNX file. The returned detector is
// ready for concurrent use; it must be closed when the process shuts down.
func New(modelPath string) (*Detector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, errors.Errorf("detector: unable to load model from %s", modelPath)
	}

	return &Detector{
		net:           net,
		confThreshold: defaultConfThreshold,
		nmsThreshold:  defaultNMSThreshold,
		classes:       cocoClasses,
	}, nil
}

// Detect runs single-image inference and returns all surviving candidates.
// Consumption policy (largest box, label set, thresholds) is the caller's
// concern.
func (d *Detector) Detect(img gocv.Mat) ([]Detection, error) {
	if img.Empty() {
		return nil, errors.New("detector: empty input image")
	}

	size := img.Size()
	origH, origW := size[0], size[1]

	d.mu.Lock()
	defer d.mu.Unlock()

	blob := gocv.BlobFromImage(img, 1.0/255.0,
		image.Pt(inputWidth, inputHeight), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, errors.Errorf("detector: unexpected output rank %d", len(dims))
	}
	attrs, anchors := dims[1], dims[2]

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "detector: read output tensor")
	}

	raw := decodeOutput(data, attrs, anchors, origW, origH, d.confThreshold, d.classes)
	return applyNMS(raw, d.nmsThreshold), nil
}

// Warmup runs one inference on a blank frame so the first real request does
// not pay the one-time DNN graph initialization cost.
func (d *Detector) Warmup() error {
	blank := gocv.NewMatWithSize(inputHeight, inputWidth, gocv.MatTypeCV8UC3)
	defer blank.Close()
	_, err := d.Detect(blank)
	return err
}

// Close releases the native net.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// decodeOutput converts the model's attribute-major float tensor
// (attrs x anchors; rows 0-3 are cx,cy,w,h in input pixels, the rest are
// per-class scores) into detections in source-image pixel coordinates.
func decodeOutput(data []float32, attrs, anchors, origW, origH int, confThreshold float32, classes []string) []Detection {
	if attrs <= 4 || anchors <= 0 || len(data) < attrs*anchors {
		return nil
	}

	scaleX := float32(origW) / float32(inputWidth)
	scaleY := float32(origH) / float32(inputHeight)

	var out []Detection
	for i := 0; i < anchors; i++ {
		classID := 0
		best := float32(0)
		for c := 4; c < attrs; c++ {
			if score := data[c*anchors+i]; score > best {
				best = score
				classID = c - 4
			}
		}
		if best < confThreshold {
			continue
		}

		cx := data[0*anchors+i] * scaleX
		cy := data[1*anchors+i] * scaleY
		w := data[2*anchors+i] * scaleX
		h := data[3*anchors+i] * scaleY

		x1 := clamp(int(cx-w/2), 0, origW)
		y1 := clamp(int(cy-h/2), 0, origH)
		x2 := clamp(int(cx+w/2), 0, origW)
		y2 := clamp(int(cy+h/2), 0, origH)
		box := image.Rect(x1, y1, x2, y2)
		if box.Empty() {
			continue
		}

		out = append(out, Detection{
			Label:      className(classes, classID),
			Confidence: best,
			Box:        box,
		})
	}
	return out
}

// applyNMS keeps the highest-confidence detection among heavily overlapping
// candidates.
func applyNMS(detections []Detection, nmsThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	var kept []Detection
	suppressed := make([]bool, len(detections))
	for i := range detections {
		if suppressed[i] {
			continue
		}
		kept = append(kept, detections[i])
		for j := i + 1; j < len(detections); j++ {
			if suppressed[j] {
				continue
			}
			if iou(detections[i].Box, detections[j].Box) > nmsThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float32 {
	inter := a.Intersect(b).Size()
	interArea := inter.X * inter.Y
	if interArea <= 0 {
		return 0
	}
	aSize, bSize := a.Size(), b.Size()
	union := aSize.X*aSize.Y + bSize.X*bSize.Y - interArea
	if union <= 0 {
		return 0
	}
	return float32(interArea) / float32(union)
}

func className(classes []string, id int) string {
	if id >= 0 && id < len(classes) {
		return classes[id]
	}
	return "unknown"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
