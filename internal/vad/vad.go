// Package vad implements the Voice Activity Detector (spec.md §4.4):
// it consumes a copy of the decoded audio stream, detects utterance
// boundaries with a local silero-vad-go model, and emits SpeechSegments
// to the speech-worker pool without ever blocking on that downstream,
// dropping the oldest queued segment when its channel is full.
package vad

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/streamer45/silero-vad-go/speech"
	"go.uber.org/zap"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// windowSize is the sample count silero-vad-go evaluates per call,
// grounded on the 1536-sample window used against a 16kHz track in
// the pack's transcriber call-tracks VAD wiring.
const windowSize = 1536

// Worker is the VAD stage.
type Worker struct {
	detector        *speech.Detector
	trailingSilence time.Duration
	log             *zap.SugaredLogger

	in  <-chan models.AudioFrame
	out chan models.SpeechSegment

	heartbeat atomic.Int64
}

// Config bundles the detector tuning knobs spec.md §6 exposes.
type Config struct {
	ModelPath       string
	SampleRate      int
	TrailingSilence time.Duration
	Threshold       float32
}

// NewWorker constructs the VAD stage and loads its detection model.
func NewWorker(cfg Config, log *zap.SugaredLogger, in <-chan models.AudioFrame, out chan models.SpeechSegment) (*Worker, error) {
	detector, err := speech.NewDetector(speech.DetectorConfig{
		ModelPath:            cfg.ModelPath,
		SampleRate:            cfg.SampleRate,
		WindowSize:            windowSize,
		Threshold:             cfg.Threshold,
		SpeechPadMs:           100,
		MinSilenceDurationMs:  int(cfg.TrailingSilence.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("vad: load detector model %s: %w", cfg.ModelPath, err)
	}

	return &Worker{
		detector:        detector,
		trailingSilence: cfg.TrailingSilence,
		log:             log,
		in:              in,
		out:             out,
	}, nil
}

// Close releases the underlying detection model.
func (w *Worker) Close() error {
	return w.detector.Destroy()
}

// Heartbeat returns the UnixNano timestamp of the worker's last
// processed audio frame.
func (w *Worker) Heartbeat() int64 {
	return w.heartbeat.Load()
}

// Run consumes audio frames and emits completed utterances until ctx
// is done or in is closed.
func (w *Worker) Run(ctx context.Context) {
	acc := newAccumulator(w.trailingSilence)
	window := make([]float32, 0, windowSize)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-w.in:
			if !ok {
				if seg, done := acc.flush(); done {
					w.emit(seg)
				}
				return
			}

			window = append(window, frame.Samples...)
			for len(window) >= windowSize {
				chunk := window[:windowSize]
				window = window[windowSize:]

				speaking, err := w.isSpeech(chunk)
				if err != nil {
					w.log.Warnw("vad inference failed, treating window as silence", "error", err)
					speaking = false
				}

				if seg, done := acc.observe(chunk, speaking); done {
					w.emit(seg)
				}
			}
			w.heartbeat.Store(time.Now().UnixNano())
		}
	}
}

func (w *Worker) isSpeech(chunk []float32) (bool, error) {
	segments, err := w.detector.Detect(chunk)
	if err != nil {
		return false, err
	}
	return len(segments) > 0, nil
}

func (w *Worker) emit(seg models.SpeechSegment) {
	trySendDropOldest(w.out, seg, w.log)
}

// trySendDropOldest implements spec.md §4.4's back-pressure policy: a
// full channel drops its oldest queued segment rather than blocking
// the VAD stage, so real-time audio ingestion is never stalled by a
// slow speech-worker pool.
func trySendDropOldest(out chan models.SpeechSegment, seg models.SpeechSegment, log *zap.SugaredLogger) {
	select {
	case out <- seg:
		return
	default:
	}

	select {
	case dropped := <-out:
		log.Warnw("speech segment queue full, dropping oldest", "dropped_id", dropped.ID)
	default:
	}

	select {
	case out <- seg:
	default:
		log.Warnw("speech segment queue still full after dropping oldest, discarding newest", "id", seg.ID)
	}
}

// accumulator tracks one in-progress utterance across consecutive VAD
// windows, closing it out after trailingSilence of non-speech.
type accumulator struct {
	trailingSilence time.Duration

	active       bool
	samples      []float32
	startedAt    time.Time
	silenceStart time.Time
}

func newAccumulator(trailingSilence time.Duration) *accumulator {
	return &accumulator{trailingSilence: trailingSilence}
}

func (a *accumulator) observe(chunk []float32, speaking bool) (models.SpeechSegment, bool) {
	now := time.Now()

	if speaking {
		if !a.active {
			a.active = true
			a.startedAt = now
			a.samples = a.samples[:0]
		}
		a.samples = append(a.samples, chunk...)
		a.silenceStart = time.Time{}
		return models.SpeechSegment{}, false
	}

	if !a.active {
		return models.SpeechSegment{}, false
	}

	if a.silenceStart.IsZero() {
		a.silenceStart = now
	}
	a.samples = append(a.samples, chunk...)

	if now.Sub(a.silenceStart) >= a.trailingSilence {
		return a.flush()
	}
	return models.SpeechSegment{}, false
}

func (a *accumulator) flush() (models.SpeechSegment, bool) {
	if !a.active || len(a.samples) == 0 {
		a.active = false
		return models.SpeechSegment{}, false
	}

	seg := models.SpeechSegment{
		ID:         uuid.NewString(),
		Samples:    append([]float32(nil), a.samples...),
		SampleRate: 16000,
		StartedAt:  a.startedAt,
		EndedAt:    time.Now(),
	}
	a.active = false
	a.samples = a.samples[:0]
	return seg, true
}
