package video

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/PrivacyIsAllYouNeed/protector/internal/consent"
	"github.com/PrivacyIsAllYouNeed/protector/models"
)

type fakeFinder struct{ boxes []image.Rectangle }

func (f fakeFinder) Detect(gocv.Mat) []models.FaceDetection {
	detections := make([]models.FaceDetection, len(f.boxes))
	for i, b := range f.boxes {
		detections[i] = models.FaceDetection{Box: b, Confidence: 1.0}
	}
	return detections
}

type fakeEmbedder struct {
	embedding models.FaceEmbedding
	err       error
}

func (f fakeEmbedder) EmbedDetection(gocv.Mat, image.Rectangle) (models.FaceEmbedding, error) {
	return f.embedding, f.err
}

func newTestWorker(t *testing.T, finder FaceFinder, embedder FaceEmbedder, registry *consent.Registry, latch *consent.Latch) *Worker {
	t.Helper()
	w, err := consent.NewWriter(t.TempDir())
	require.NoError(t, err)
	return NewWorker(finder, embedder, registry, latch, w, 0.8, zap.NewNop().Sugar(), nil, nil)
}

func TestWorker_ArmedLatchWithVisibleFaceWritesCapture(t *testing.T) {
	latch := consent.NewLatch()
	latch.Arm("dana")

	dir := t.TempDir()
	writer, err := consent.NewWriter(dir)
	require.NoError(t, err)

	finder := fakeFinder{boxes: []image.Rectangle{image.Rect(0, 0, 20, 20)}}
	embedder := fakeEmbedder{embedding: models.FaceEmbedding{1, 0, 0}}
	registry := consent.NewRegistry()

	w := NewWorker(finder, embedder, registry, latch, writer, 0.8, zap.NewNop().Sugar(), nil, nil)

	frame := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	w.processFrame(models.VideoPacket{Mat: frame})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, filepath.Base(entries[0].Name()), "dana")
}

func TestWorker_ArmedLatchWithNoFaceWritesNothing(t *testing.T) {
	latch := consent.NewLatch()
	latch.Arm("dana")

	finder := fakeFinder{boxes: nil}
	embedder := fakeEmbedder{embedding: models.FaceEmbedding{1, 0, 0}}
	registry := consent.NewRegistry()

	dir := t.TempDir()
	writer, err := consent.NewWriter(dir)
	require.NoError(t, err)

	w := NewWorker(finder, embedder, registry, latch, writer, 0.8, zap.NewNop().Sugar(), nil, nil)

	frame := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	w.processFrame(models.VideoPacket{Mat: frame})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no face visible must discard the pending request")

	_, pending := latch.TakeIfArmed()
	assert.False(t, pending, "latch must still be cleared even when discarded")
}

func TestWorker_Recognize_MatchAboveThreshold(t *testing.T) {
	registry := consent.NewRegistry()
	registry.Insert(models.ConsentRecord{Path: "/c/x.jpg", Name: "dana", Embedding: models.FaceEmbedding{1, 0, 0}})

	embedder := fakeEmbedder{embedding: models.FaceEmbedding{1, 0, 0}}
	w := newTestWorker(t, fakeFinder{}, embedder, registry, consent.NewLatch())

	frame := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	name := w.recognize(frame, image.Rect(0, 0, 10, 10))
	assert.Equal(t, "dana", name)
}

func TestWorker_Recognize_NoMatchIsUnknown(t *testing.T) {
	registry := consent.NewRegistry()
	embedder := fakeEmbedder{embedding: models.FaceEmbedding{1, 0, 0}}
	w := newTestWorker(t, fakeFinder{}, embedder, registry, consent.NewLatch())

	frame := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	name := w.recognize(frame, image.Rect(0, 0, 10, 10))
	assert.Equal(t, unknownLabel, name)
}

func TestWorker_CaptureFilenameMatchesGrammar(t *testing.T) {
	dir := t.TempDir()
	writer, err := consent.NewWriter(dir)
	require.NoError(t, err)

	latch := consent.NewLatch()
	latch.Arm("dana")
	finder := fakeFinder{boxes: []image.Rectangle{image.Rect(0, 0, 20, 20)}}
	embedder := fakeEmbedder{embedding: models.FaceEmbedding{1, 0, 0}}
	registry := consent.NewRegistry()

	w := NewWorker(finder, embedder, registry, latch, writer, 0.8, zap.NewNop().Sugar(), nil, nil)

	frame := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	w.processFrame(models.VideoPacket{Mat: frame})

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^\d{14}_dana\.jpg$`, filepath.Base(entries[0].Name()))
}
