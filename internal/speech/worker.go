package speech

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/PrivacyIsAllYouNeed/protector/internal/consent"
	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// ASR runs speech recognition over a completed segment.
type ASR interface {
	Transcribe(ctx context.Context, seg models.SpeechSegment) (models.Transcript, error)
}

// ConsentClassifier classifies a transcript for explicit consent.
type ConsentClassifier interface {
	Classify(ctx context.Context, transcript models.Transcript) (models.ConsentVerdict, error)
}

// Worker is one member of the Speech Worker pool (spec.md §4.5).
type Worker struct {
	name       string
	asr        ASR
	classifier ConsentClassifier
	latch      *consent.Latch
	log        *zap.SugaredLogger

	in <-chan models.SpeechSegment

	heartbeat atomic.Int64
}

// NewWorker builds one Speech Worker. name distinguishes this
// worker's heartbeat and log lines from its pool siblings.
func NewWorker(name string, asr ASR, classifier ConsentClassifier, latch *consent.Latch, log *zap.SugaredLogger, in <-chan models.SpeechSegment) *Worker {
	return &Worker{name: name, asr: asr, classifier: classifier, latch: latch, log: log, in: in}
}

// Heartbeat returns the UnixNano timestamp of this worker's last
// completed segment.
func (w *Worker) Heartbeat() int64 {
	return w.heartbeat.Load()
}

// Name returns this worker's pool identity, for health reporting.
func (w *Worker) Name() string {
	return w.name
}

// Run pulls segments from in until ctx is done or in is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case seg, ok := <-w.in:
			if !ok {
				return
			}
			w.process(ctx, seg)
			w.heartbeat.Store(time.Now().UnixNano())
		}
	}
}

func (w *Worker) process(ctx context.Context, seg models.SpeechSegment) {
	transcript, err := w.asr.Transcribe(ctx, seg)
	if err != nil {
		w.log.Warnw("transcription failed, dropping segment", "worker", w.name, "error", err)
		return
	}
	if transcript.Text == "" {
		return
	}

	verdict, err := w.classifier.Classify(ctx, transcript)
	if err != nil {
		w.log.Warnw("consent classification failed, dropping segment", "worker", w.name, "error", err)
		return
	}
	if !verdict.Consented {
		return
	}

	name := verdict.Name
	if name == "" {
		name = "unknown"
	}

	if !w.latch.Arm(name) {
		w.log.Debugw("consent capture already pending, coalescing", "worker", w.name, "name", name)
	}
}
