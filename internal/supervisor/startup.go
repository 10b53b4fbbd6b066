package supervisor

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/PrivacyIsAllYouNeed/protector/internal/consent"
	"github.com/PrivacyIsAllYouNeed/protector/internal/logging"
	"github.com/PrivacyIsAllYouNeed/protector/internal/vad"
	"github.com/PrivacyIsAllYouNeed/protector/internal/video"
	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// registryRescanInterval is how often the Consent Monitor falls back
// to a full directory re-scan in case an fsnotify event was ever
// missed (SPEC_FULL.md §13).
const registryRescanInterval = 30 * time.Second

// loadedModels bundles the pipeline's heavyweight, model-backed
// components, all loaded in parallel during startup.
type loadedModels struct {
	detector *video.Detector
	embedder *video.Embedder
	vadWorker *vad.Worker
}

// loadModels initializes every model-backed component concurrently,
// failing fast on the first error, grounded on errgroup's use in this
// pack for "run several independent setup steps, bail on the first
// failure" (iamprashant-voice-ai's go.mod carries golang.org/x/sync).
// The Consent Monitor's initial directory scan runs after the
// embedder finishes loading, since it depends on the embedder to turn
// capture images into embeddings, so the registry is warm before the
// video worker processes its first frame.
func loadModels(cfg *models.Config, registry *consent.Registry, base *zap.Logger, audioIn chan models.AudioFrame, speechOut chan models.SpeechSegment) (*loadedModels, *consent.Monitor, error) {
	var (
		detector *video.Detector
		embedder *video.Embedder
		vadWorker *vad.Worker
	)

	g := new(errgroup.Group)

	g.Go(func() error {
		var err error
		detector, err = video.NewDetector(cfg.FaceCascadePath, cfg.MinFaceSize)
		if err != nil {
			return fmt.Errorf("startup: face detector: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		embedder, err = video.NewEmbedder(cfg.FaceEmbeddingONNX)
		if err != nil {
			return fmt.Errorf("startup: face embedder: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		vadWorker, err = vad.NewWorker(vad.Config{
			ModelPath:       cfg.VADModelPath,
			SampleRate:      16000,
			TrailingSilence: cfg.VADTrailingSilence,
			Threshold:       0.5,
		}, logging.Component(base, "vad"), audioIn, speechOut)
		if err != nil {
			return fmt.Errorf("startup: vad model: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	monitor := consent.NewMonitor(cfg.CaptureDir, registry, embedder, logging.Component(base, "consent-monitor"), registryRescanInterval)
	if err := monitor.ScanOnce(); err != nil {
		return nil, nil, fmt.Errorf("startup: initial registry scan: %w", err)
	}

	return &loadedModels{detector: detector, embedder: embedder, vadWorker: vadWorker}, monitor, nil
}
