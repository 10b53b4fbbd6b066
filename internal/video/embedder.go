package video

import (
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// embedInputSize is the square crop side the embedding network
// expects. Chosen to match common face-embedding ONNX exports
// (ArcFace-style 112x112 input).
const embedInputSize = 112

// embedOutputSize is the length of the embedding vector the bundled
// model produces.
const embedOutputSize = 512

// expandRatio widens a detected face box before cropping so the
// embedding model sees context beyond the cascade's tight box, the
// way the teacher's expandAndCenterFace does for its API snapshots.
const expandRatio = 0.35

// Embedder runs a face crop through an ONNX embedding network using
// onnxruntime_go directly rather than gocv's built-in dnn ONNX
// importer: OpenCV's ONNX support covers only a subset of operators,
// and common face-embedding exports (PReLU, certain normalization
// ops) fall outside it. gocv is still used for the crop/resize/blob
// preparation that feeds the tensor. Calls are serialized internally
// since an onnxruntime_go Session is not safe for concurrent Run.
type Embedder struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewEmbedder loads the embedding network from an ONNX file and
// initializes the onnxruntime_go environment if it has not already
// been initialized by this process.
func NewEmbedder(onnxPath string) (*Embedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("video: initialize onnxruntime: %w", err)
		}
	}

	inputShape := ort.NewShape(1, 3, embedInputSize, embedInputSize)
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("video: allocate input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, embedOutputSize)
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("video: allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(onnxPath,
		[]string{"input"}, []string{"output"},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("video: load face embedding model %s: %w", onnxPath, err)
	}

	return &Embedder{session: session, input: input, output: output}, nil
}

// Close releases the underlying session and tensors.
func (e *Embedder) Close() error {
	e.session.Destroy()
	e.input.Destroy()
	e.output.Destroy()
	return nil
}

// Embed computes a FaceEmbedding for an already-cropped face image,
// satisfying consent.Embedder.
func (e *Embedder) Embed(face gocv.Mat) (models.FaceEmbedding, error) {
	return e.embedSquared(face)
}

// EmbedDetection crops, expands and squares detection out of frame
// before embedding it, mirroring the teacher's
// expandAndCenterFace+makeSquare crop pipeline.
func (e *Embedder) EmbedDetection(frame gocv.Mat, det image.Rectangle) (models.FaceEmbedding, error) {
	expanded := expandAndCenterFace(det, frame.Cols(), frame.Rows(), expandRatio)
	crop := frame.Region(expanded)
	defer crop.Close()

	squared := makeSquare(crop)
	defer squared.Close()

	return e.embedSquared(squared)
}

func (e *Embedder) embedSquared(face gocv.Mat) (models.FaceEmbedding, error) {
	if face.Empty() {
		return nil, fmt.Errorf("video: cannot embed an empty face crop")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(face, &resized, image.Pt(embedInputSize, embedInputSize), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0/255.0, image.Pt(embedInputSize, embedInputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	chw, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("video: read blob data: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.input.GetData(), chw)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("video: run embedding session: %w", err)
	}

	out := e.output.GetData()
	embedding := make(models.FaceEmbedding, len(out))
	copy(embedding, out)
	return embedding, nil
}

// makeSquare pads mat to a square canvas, centering the original
// content, so every embedding input has identical aspect ratio
// regardless of the source detection's box.
func makeSquare(mat gocv.Mat) gocv.Mat {
	w, h := mat.Cols(), mat.Rows()
	if w == h {
		return mat.Clone()
	}

	side := w
	if h > side {
		side = h
	}

	canvas := gocv.NewMatWithSize(side, side, mat.Type())
	offX, offY := (side-w)/2, (side-h)/2
	roi := canvas.Region(image.Rect(offX, offY, offX+w, offY+h))
	mat.CopyTo(&roi)
	roi.Close()
	return canvas
}

// expandAndCenterFace widens box by ratio on every side, clamped to
// the frame bounds.
func expandAndCenterFace(box image.Rectangle, frameW, frameH int, ratio float64) image.Rectangle {
	expandX := int(float64(box.Dx()) * ratio)
	expandY := int(float64(box.Dy()) * ratio)

	x1 := clamp(box.Min.X-expandX, 0, frameW)
	y1 := clamp(box.Min.Y-expandY, 0, frameH)
	x2 := clamp(box.Max.X+expandX, 0, frameW)
	y2 := clamp(box.Max.Y+expandY, 0, frameH)

	return image.Rect(x1, y1, x2, y2)
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
