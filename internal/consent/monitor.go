package consent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// Embedder computes a face embedding from an already-cropped face
// image. The Video Worker implements this for live frames; Monitor
// uses the same contract against capture files so both paths produce
// embeddings in the same space.
type Embedder interface {
	Embed(face gocv.Mat) (models.FaceEmbedding, error)
}

// debounce absorbs editors/filesystems that emit more than one
// fsnotify event per logical write (e.g. Write followed by Chmod).
const debounce = 100 * time.Millisecond

// Monitor watches the capture directory with fsnotify and keeps a
// Registry in sync, the way the teacher's bufferPool and connection
// maps are maintained by a dedicated goroutine rather than by ad hoc
// callers. On start it performs a full directory scan so the registry
// is warm before the first frame arrives; it then applies incremental
// create/remove events and falls back to a periodic full re-scan in
// case an fsnotify event is ever missed (spec.md §13).
type Monitor struct {
	dir      string
	registry *Registry
	embedder Embedder
	log      *zap.SugaredLogger

	rescanEvery time.Duration
}

// NewMonitor constructs a Monitor. rescanEvery of zero disables the
// periodic fallback re-scan.
func NewMonitor(dir string, registry *Registry, embedder Embedder, log *zap.SugaredLogger, rescanEvery time.Duration) *Monitor {
	return &Monitor{dir: dir, registry: registry, embedder: embedder, log: log, rescanEvery: rescanEvery}
}

// ScanOnce performs a single full enumeration of the capture directory,
// inserting every parseable file into the registry. Exposed so the
// supervisor can warm the registry during startup, before any worker
// begins consuming frames.
func (m *Monitor) ScanOnce() error {
	return m.scanOnce()
}

// fallbackRescanInterval is the periodic re-scan period used when the
// fsnotify watcher cannot be armed at all (e.g. the platform lacks
// inotify, or the capture directory's watch fails to register), so
// registry maintenance never stops for the life of the process
// (spec.md §3 invariant (c)) even without filesystem events.
const fallbackRescanInterval = 5 * time.Second

// Run performs the initial scan and then blocks watching dir until stop
// is closed. If the fsnotify watcher cannot be created or armed, Run
// falls back to a rescan-only loop rather than returning, so a watcher
// failure never permanently stops registry maintenance.
func (m *Monitor) Run(stop <-chan struct{}) error {
	if err := m.scanOnce(); err != nil {
		m.log.Warnw("initial capture directory scan failed", "error", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		m.log.Warnw("capture directory watcher unavailable, falling back to periodic re-scan only", "error", err)
		return m.runRescanOnly(stop)
	}
	defer watcher.Close()

	if err := watcher.Add(m.dir); err != nil {
		m.log.Warnw("failed to watch capture directory, falling back to periodic re-scan only", "dir", m.dir, "error", err)
		return m.runRescanOnly(stop)
	}

	var rescan <-chan time.Time
	if m.rescanEvery > 0 {
		ticker := time.NewTicker(m.rescanEvery)
		defer ticker.Stop()
		rescan = ticker.C
	}

	pending := make(map[string]time.Time)
	debounceTick := time.NewTicker(25 * time.Millisecond)
	defer debounceTick.Stop()

	for {
		select {
		case <-stop:
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			m.handleEvent(ev, pending)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warnw("capture directory watch error", "error", err)

		case now := <-debounceTick.C:
			for path, due := range pending {
				if now.After(due) {
					delete(pending, path)
					m.processPath(path)
				}
			}

		case <-rescan:
			if err := m.scanOnce(); err != nil {
				m.log.Warnw("periodic capture directory re-scan failed", "error", err)
			}
		}
	}
}

// runRescanOnly keeps the registry in sync purely via periodic full
// directory scans, used when the fsnotify watcher could not be armed.
// It uses m.rescanEvery when configured, falling back to
// fallbackRescanInterval so a zero rescanEvery never disables
// maintenance entirely once the watcher is unavailable.
func (m *Monitor) runRescanOnly(stop <-chan struct{}) error {
	every := m.rescanEvery
	if every <= 0 {
		every = fallbackRescanInterval
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			if err := m.scanOnce(); err != nil {
				m.log.Warnw("periodic capture directory re-scan failed", "error", err)
			}
		}
	}
}

func (m *Monitor) handleEvent(ev fsnotify.Event, pending map[string]time.Time) {
	if !strings.HasSuffix(strings.ToLower(ev.Name), ".jpg") {
		return
	}

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		m.registry.Remove(ev.Name)
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		pending[ev.Name] = time.Now().Add(debounce)
	}
}

func (m *Monitor) processPath(path string) {
	rec, err := m.loadCapture(path)
	if err != nil {
		m.log.Warnw("skipping unreadable capture", "path", path, "error", err)
		return
	}
	m.registry.Insert(rec)
}

func (m *Monitor) scanOnce() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", m.dir, err)
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".jpg") {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		seen[path] = struct{}{}
		if rec, err := m.loadCapture(path); err != nil {
			m.log.Warnw("skipping unreadable capture", "path", path, "error", err)
		} else {
			m.registry.Insert(rec)
		}
	}

	for _, path := range m.registry.Paths() {
		if _, ok := seen[path]; !ok {
			m.registry.Remove(path)
		}
	}
	return nil
}

func (m *Monitor) loadCapture(path string) (models.ConsentRecord, error) {
	parsed, err := parseCaptureFilename(path)
	if err != nil {
		return models.ConsentRecord{}, err
	}

	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return models.ConsentRecord{}, fmt.Errorf("empty or unreadable image")
	}
	defer img.Close()

	embedding, err := m.embedder.Embed(img)
	if err != nil {
		return models.ConsentRecord{}, fmt.Errorf("embed: %w", err)
	}

	return models.ConsentRecord{
		ID:        strings.TrimSuffix(filepath.Base(path), ".jpg"),
		Name:      parsed.name,
		Timestamp: parsed.timestamp,
		Embedding: embedding,
		Path:      path,
	}, nil
}
