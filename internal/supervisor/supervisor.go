// Package supervisor assembles every pipeline stage (spec.md §4), wires
// their bounded FIFO channels, starts them, runs the Health Monitor,
// and drives ordered graceful shutdown.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/PrivacyIsAllYouNeed/protector/internal/consent"
	"github.com/PrivacyIsAllYouNeed/protector/internal/demux"
	"github.com/PrivacyIsAllYouNeed/protector/internal/logging"
	"github.com/PrivacyIsAllYouNeed/protector/internal/mux"
	"github.com/PrivacyIsAllYouNeed/protector/internal/speech"
	"github.com/PrivacyIsAllYouNeed/protector/internal/transcode"
	"github.com/PrivacyIsAllYouNeed/protector/internal/vad"
	"github.com/PrivacyIsAllYouNeed/protector/internal/video"
	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// worker is anything the Supervisor runs in its own goroutine.
type worker interface {
	Heartbeat() int64
	Run(ctx context.Context)
}

// Supervisor owns every pipeline worker and the channels between
// them. It is the single place the whole graph from spec.md §5 is
// wired together.
type Supervisor struct {
	cfg *models.Config
	log *zap.Logger

	registry *consent.Registry
	latch    *consent.Latch
	writer   *consent.Writer
	monitor  *consent.Monitor

	chans *channels

	demuxWorker     *demux.Worker
	transcodeWorker *transcode.Worker
	vadWorker       *vad.Worker
	videoWorker     *video.Worker
	speechWorkers   []*speech.Worker
	muxWorker       *mux.Worker

	health *HealthMonitor

	monitorStop chan struct{}
	wg          sync.WaitGroup
}

// New builds the full pipeline: it loads every model-backed component
// (failing fast on the first error, per loadModels), constructs every
// channel named in spec.md §5, and wires every worker to them. It does
// not start anything; call Start to run the pipeline.
func New(cfg *models.Config, log *zap.Logger) (*Supervisor, error) {
	registry := consent.NewRegistry()
	latch := consent.NewLatch()

	writer, err := consent.NewWriter(cfg.CaptureDir)
	if err != nil {
		return nil, fmt.Errorf("supervisor: consent writer: %w", err)
	}

	chans := newChannels(cfg)

	lm, monitor, err := loadModels(cfg, registry, log, chans.audioToVAD, chans.speech)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load models: %w", err)
	}

	asrTempDir := filepath.Join(os.TempDir(), "protector-asr")
	transcriber, err := speech.NewTranscriber(cfg.WhisperBinPath, cfg.WhisperModelPath, asrTempDir)
	if err != nil {
		return nil, fmt.Errorf("supervisor: transcriber: %w", err)
	}
	classifier, err := speech.NewClassifier(cfg.OllamaHost, cfg.OllamaModel)
	if err != nil {
		return nil, fmt.Errorf("supervisor: consent classifier: %w", err)
	}

	demuxWorker := demux.NewWorker(
		cfg.FFmpegPath, cfg.IngressURL, cfg.IngressConnectTimeout, cfg.IngressRetryInterval,
		logging.Component(log, "demux"),
		chans.video, chans.audioToXcode, chans.audioToVAD,
	)

	transcodeWorker := transcode.NewWorker(
		cfg.FFmpegPath, cfg.EgressAudioCodec, cfg.EgressAudioBitrateK, cfg.EgressAudioChannels,
		logging.Component(log, "transcode"),
		chans.audioToXcode, chans.audioOut,
	)

	videoWorker := video.NewWorker(
		lm.detector, lm.embedder, registry, latch, writer, cfg.RecognitionMatchThreshold,
		logging.Component(log, "video"),
		chans.video, chans.videoOut,
	)

	speechWorkers := make([]*speech.Worker, 0, cfg.SpeechWorkerCount)
	for i := 0; i < cfg.SpeechWorkerCount; i++ {
		name := fmt.Sprintf("speech-%d", i)
		speechWorkers = append(speechWorkers, speech.NewWorker(
			name, transcriber, classifier, latch,
			logging.Component(log, name),
			chans.speech,
		))
	}

	muxWorker := mux.NewWorker(cfg.FFmpegPath, cfg.EgressURL, logging.Component(log, "mux"), chans.videoOut, chans.audioOut)

	workers := map[string]heartbeater{
		"demux":     demuxWorker,
		"transcode": transcodeWorker,
		"vad":       lm.vadWorker,
		"video":     videoWorker,
		"mux":       muxWorker,
	}
	for _, sw := range speechWorkers {
		workers[sw.Name()] = sw
	}
	health := NewHealthMonitor(logging.Component(log, "health"), cfg.HeartbeatStaleThreshold, workers)

	return &Supervisor{
		cfg: cfg, log: log,
		registry: registry, latch: latch, writer: writer, monitor: monitor,
		chans: chans,
		demuxWorker: demuxWorker, transcodeWorker: transcodeWorker, vadWorker: lm.vadWorker,
		videoWorker: videoWorker, speechWorkers: speechWorkers, muxWorker: muxWorker,
		health: health,
	}, nil
}

// runStage launches w.Run in its own goroutine against its own
// cancellable context, independent of every other stage's context, and
// returns the function to stop it plus a channel that closes once it
// has returned. Stages deliberately do not share a parent
// context: shutdown must reach them in the dependency order spec.md
// §4.8 requires, one cancel() call at a time, not all at once.
func (s *Supervisor) runStage(w worker) (func(), <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		w.Run(ctx)
	}()
	return cancel, done
}

// Start launches every worker, the Consent Monitor's watch loop, and
// the Health Monitor, and blocks until ctx is done. On return, every
// worker has been asked to stop in dependency order and each stage's
// grace deadline has either been honored or logged as exceeded.
func (s *Supervisor) Start(ctx context.Context) error {
	sugar := logging.Component(s.log, "supervisor")

	s.monitorStop = make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.monitor.Run(s.monitorStop); err != nil {
			sugar.Warnw("consent monitor stopped with error", "error", err)
		}
	}()

	demuxCancel, demuxDone := s.runStage(s.demuxWorker)
	transcodeCancel, transcodeDone := s.runStage(s.transcodeWorker)
	vadCancel, vadDone := s.runStage(s.vadWorker)

	speechCancels := make([]func(), len(s.speechWorkers))
	speechDones := make([]<-chan struct{}, len(s.speechWorkers))
	for i, sw := range s.speechWorkers {
		speechCancels[i], speechDones[i] = s.runStage(sw)
	}

	videoCancel, videoDone := s.runStage(s.videoWorker)
	muxCancel, muxDone := s.runStage(s.muxWorker)

	healthCtx, healthCancel := context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.health.Run(healthCtx)
	}()

	<-ctx.Done()
	sugar.Infow("shutdown signal received, stopping pipeline")

	speechDone := make(chan struct{})
	cancelAllSpeech := func() {
		go func() {
			var wg sync.WaitGroup
			for i := range s.speechWorkers {
				wg.Add(1)
				go func(cancel func(), done <-chan struct{}) {
					defer wg.Done()
					cancel()
					<-done
				}(speechCancels[i], speechDones[i])
			}
			wg.Wait()
			close(speechDone)
		}()
	}

	runShutdown(sugar, []stage{
		{name: "demux", cancel: demuxCancel, done: demuxDone, grace: s.cfg.ShutdownGraceCPULight},
		{name: "vad", cancel: vadCancel, done: vadDone, grace: s.cfg.ShutdownGraceCPULight},
		{name: "transcode", cancel: transcodeCancel, done: transcodeDone, grace: s.cfg.ShutdownGraceCPULight},
		{name: "speech-workers", cancel: cancelAllSpeech, done: speechDone, grace: s.cfg.ShutdownGraceASR},
		{name: "video", cancel: videoCancel, done: videoDone, grace: s.cfg.ShutdownGraceCPULight},
		{name: "mux", cancel: muxCancel, done: muxDone, grace: s.cfg.ShutdownGraceCPULight},
	})

	healthCancel()
	close(s.monitorStop)
	s.wg.Wait()
	return nil
}

// Health exposes the Health Monitor's latest snapshot.
func (s *Supervisor) Health() []models.WorkerHealth {
	return s.health.Snapshot()
}
