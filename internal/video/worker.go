package video

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/PrivacyIsAllYouNeed/protector/internal/consent"
	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// unknownLabel is the registry name used for any detection that does
// not match within threshold, and for capture files written with no
// recognized speaker.
const unknownLabel = "unknown"

// FaceFinder detects candidate faces in a frame, sorted
// largest-first. *Detector satisfies this; tests supply fakes.
type FaceFinder interface {
	Detect(frame gocv.Mat) []models.FaceDetection
}

// FaceEmbedder computes an embedding for one detection within a
// frame. *Embedder satisfies this; tests supply fakes.
type FaceEmbedder interface {
	EmbedDetection(frame gocv.Mat, det image.Rectangle) (models.FaceEmbedding, error)
}

// Worker is the Video Worker (spec.md §4.2): it consumes decoded video
// frames in order, consumes the pending consent-capture request,
// recognizes faces against the registry, blurs unknowns, and emits
// the composed frame downstream.
type Worker struct {
	detector  FaceFinder
	embedder  FaceEmbedder
	registry  *consent.Registry
	latch     *consent.Latch
	writer    *consent.Writer
	threshold float64
	log       *zap.SugaredLogger

	in  <-chan models.VideoPacket
	out chan<- models.VideoPacket

	heartbeat atomic.Int64
}

// NewWorker wires the Video Worker to its dependencies. in/out are the
// bounded FIFO channels created by the supervisor.
func NewWorker(
	detector FaceFinder,
	embedder FaceEmbedder,
	registry *consent.Registry,
	latch *consent.Latch,
	writer *consent.Writer,
	threshold float64,
	log *zap.SugaredLogger,
	in <-chan models.VideoPacket,
	out chan<- models.VideoPacket,
) *Worker {
	return &Worker{
		detector:  detector,
		embedder:  embedder,
		registry:  registry,
		latch:     latch,
		writer:    writer,
		threshold: threshold,
		log:       log,
		in:        in,
		out:       out,
	}
}

// Heartbeat returns the UnixNano timestamp of the last frame this
// worker finished processing, for the Health Monitor.
func (w *Worker) Heartbeat() int64 {
	return w.heartbeat.Load()
}

// Run processes frames from in until ctx is done or in is closed.
// Frames are processed and forwarded one at a time in arrival order,
// preserving strict FIFO. A frame already read from in is always fully
// processed; if ctx is done while it waits for room on out, it is
// released instead of forwarded.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-w.in:
			if !ok {
				return
			}
			w.processFrame(pkt)
			w.heartbeat.Store(time.Now().UnixNano())

			select {
			case w.out <- pkt:
			case <-ctx.Done():
				pkt.Close()
				return
			}
		}
	}
}

func (w *Worker) processFrame(pkt models.VideoPacket) {
	detections, err := w.safeDetect(pkt.Mat)
	if err != nil {
		w.log.Warnw("face detection failed, blurring full frame to fail closed", "error", err)
		blurWholeFrame(pkt.Mat)
		return
	}

	if name, pending := w.latch.TakeIfArmed(); pending {
		w.captureConsent(pkt.Mat, detections, name)
	}

	for i := range detections {
		name := w.recognize(pkt.Mat, detections[i].Box)
		detections[i].Name = name
		if name == unknownLabel {
			blurRegion(pkt.Mat, detections[i].Box)
		} else {
			drawLabel(pkt.Mat, detections[i].Box, name)
		}
	}
}

// safeDetect isolates detector panics/failures behind a single error
// return so the caller can apply the full-frame fallback blur
// mandated by the privacy guarantee (spec.md §4.2, §7).
func (w *Worker) safeDetect(frame gocv.Mat) (detections []models.FaceDetection, err error) {
	defer func() {
		if r := recover(); r != nil {
			detections = nil
			err = errFromPanic(r)
		}
	}()
	return w.detector.Detect(frame), nil
}

func (w *Worker) recognize(frame gocv.Mat, box image.Rectangle) string {
	embedding, err := w.embedder.EmbedDetection(frame, box)
	if err != nil {
		w.log.Warnw("face embedding failed, treating as unconsented", "error", err)
		return unknownLabel
	}

	name, ok := w.registry.Match(embedding, w.threshold)
	if !ok {
		return unknownLabel
	}
	return name
}

// captureConsent saves the largest detected face as a consent
// capture, per spec.md §4.2 step 1: "..._unknown.jpg" when no name was
// classified, and nothing at all when no face is visible in the
// triggering frame.
func (w *Worker) captureConsent(frame gocv.Mat, detections []models.FaceDetection, name string) {
	largest, found := Largest(detections)
	if !found {
		return
	}

	if name == "" {
		name = unknownLabel
	}

	crop := frame.Region(largest.Box)
	defer crop.Close()

	if _, err := w.writer.Write(name, crop); err != nil {
		w.log.Errorw("failed to save consent capture", "name", name, "error", err)
	}
}

func errFromPanic(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ v interface{} }

func (e *panicError) Error() string { return "video: detector panic recovered" }
