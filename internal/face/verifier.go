// Package face wraps the pretrained face-embedding model and relays its
// match decision, distance, and threshold.
package face

import (
	"image"
	"sync"

	"github.com/chewxy/math32"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

const (
	inputSize     = 112
	embeddingSize = 512

	// Cosine-distance decision threshold calibrated for the pretrained
	// embedding model.
	matchThreshold = 0.68
)

// Result is the verification outcome relayed verbatim to the caller.
type Result struct {
	Verified  bool
	Distance  float32
	Threshold float32
}

// Verifier embeds face frames through an ONNX session and compares the
// embeddings by cosine distance. The session reuses persistent input/output
// tensors, so calls are serialized with a per-instance mutex.
//
// Frames are embedded as-is: no face detector gates the call, so a missing
// or poorly framed face degrades the distance instead of failing the request.
type Verifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

func initRuntime(libPath string) error {
	runtimeOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		if !ort.IsInitialized() {
			runtimeErr = ort.InitializeEnvironment()
		}
	})
	return runtimeErr
}

// NewVerifier loads the face-embedding model. libPath optionally points at
// the onnxruntime shared library; an empty value uses the library default.
func NewVerifier(modelPath, libPath string) (*Verifier, error) {
	if err := initRuntime(libPath); err != nil {
		return nil, errors.Wrap(err, "face: initialize onnxruntime")
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputSize, inputSize))
	if err != nil {
		return nil, errors.Wrap(err, "face: create input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, embeddingSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "face: create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "face: create session options")
	}
	defer options.Destroy()
	options.SetIntraOpNumThreads(4)
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrapf(err, "face: load model from %s", modelPath)
	}

	return &Verifier{session: session, input: inputTensor, output: outputTensor}, nil
}

// Compare embeds both frames (first the document photo, then the live
// selfie) and returns the model's match decision.
func (v *Verifier) Compare(a, b gocv.Mat) (Result, error) {
	embA, err := v.embed(a)
	if err != nil {
		return Result{}, err
	}
	embB, err := v.embed(b)
	if err != nil {
		return Result{}, err
	}
	return compare(embA, embB), nil
}

// Close releases the session and its tensors.
func (v *Verifier) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.input != nil {
		v.input.Destroy()
		v.input = nil
	}
	if v.output != nil {
		v.output.Destroy()
		v.output = nil
	}
	if v.session != nil {
		v.session.Destroy()
		v.session = nil
	}
}

func (v *Verifier) embed(img gocv.Mat) ([]float32, error) {
	if img.Empty() {
		return nil, errors.New("face: empty input image")
	}
	frame, err := img.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "face: convert frame")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session == nil {
		return nil, errors.New("face: verifier is closed")
	}

	if err := fillInput(frame, v.input.GetData()); err != nil {
		return nil, err
	}
	if err := v.session.Run(); err != nil {
		return nil, errors.Wrap(err, "face: run inference")
	}

	embedding := make([]float32, embeddingSize)
	copy(embedding, v.output.GetData())
	return embedding, nil
}

// fillInput resizes the frame to the model resolution and writes it into the
// tensor as normalized CHW planes.
func fillInput(img image.Image, data []float32) error {
	channelSize := inputSize * inputSize
	if len(data) < channelSize*3 {
		return errors.Errorf("face: input tensor holds %d floats, need %d", len(data), channelSize*3)
	}
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	img = resize.Resize(inputSize, inputSize, img, resize.Lanczos3)

	i := 0
	for y := 0; y < inputSize; y++ {
		for x := 0; x < inputSize; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = (float32(r>>8) - 127.5) / 128.0
			green[i] = (float32(g>>8) - 127.5) / 128.0
			blue[i] = (float32(b>>8) - 127.5) / 128.0
			i++
		}
	}
	return nil
}

func compare(a, b []float32) Result {
	distance := cosineDistance(a, b)
	return Result{
		Verified:  distance <= matchThreshold,
		Distance:  distance,
		Threshold: matchThreshold,
	}
}

// cosineDistance returns 1 - cos(a, b); 0 for identical directions, 2 for
// opposite ones. Degenerate zero vectors compare as maximally distant.
func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math32.Sqrt(normA)*math32.Sqrt(normB))
}
