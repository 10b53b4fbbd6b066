package consent

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Writer persists a consent-capture frame to the capture directory
// under the spec.md §6 filename grammar. It only writes the file; the
// registry is updated asynchronously by the Monitor watching the same
// directory, the way the teacher keeps its connection bookkeeping
// separate from the I/O that triggers it.
type Writer struct {
	dir string
	now func() time.Time

	// mu serializes the probe-then-write sequence so two concurrent
	// captures of the same name never race onto the same path.
	mu sync.Mutex
}

// NewWriter returns a Writer rooted at dir. dir is created if it does
// not already exist.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("consent: create capture dir %s: %w", dir, err)
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

// Write encodes frame as a JPEG and saves it under a freshly allocated
// filename for name. It returns the full path written. Per spec.md
// §4.6, the disambiguating suffix is applied only when the exact
// (timestamp, name) path already exists on disk, not merely because
// another capture of the same name exists from an earlier timestamp.
func (w *Writer) Write(name string, frame gocv.Mat) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := w.now()
	path := filepath.Join(w.dir, captureFilename(ts, name))
	for n := 2; fileExists(path); n++ {
		path = filepath.Join(w.dir, captureFilenameSuffixed(ts, name, n))
	}

	if ok := gocv.IMWrite(path, frame); !ok {
		return "", fmt.Errorf("consent: failed to write capture %s", path)
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
