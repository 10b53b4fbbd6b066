// Package consent implements the consent capture writer, the
// in-memory consent registry, and the directory watcher that keeps
// the registry in sync with the capture directory on disk (spec.md
// §4.6).
package consent

import (
	"math"
	"sync"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// Registry maps a logical person name to the union of all embeddings
// captured for that name. Readers (the video worker, once per frame)
// take the read lock for the duration of their lookups; the monitor
// takes the write lock for insert/remove. This mirrors the teacher's
// sync.RWMutex-guarded connection map, generalized to spec.md §5's
// readers-writer contract.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string][]entry
	byPath  map[string]string // path -> name, for O(1) remove-by-path
}

type entry struct {
	path      string
	embedding models.FaceEmbedding
}

// NewRegistry returns an empty registry. An empty registry is valid
// and causes every face to be treated as unconsented (spec.md §8
// boundary behavior).
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string][]entry),
		byPath: make(map[string]string),
	}
}

// Insert adds (or idempotently re-adds) one capture's embedding under
// its parsed name. Re-inserting the same path replaces its prior
// embedding rather than duplicating it, so the fsnotify watcher can
// safely re-process an event it has already handled.
func (r *Registry) Insert(rec models.ConsentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if oldName, ok := r.byPath[rec.Path]; ok {
		r.removeLocked(rec.Path, oldName)
	}

	r.byName[rec.Name] = append(r.byName[rec.Name], entry{path: rec.Path, embedding: rec.Embedding})
	r.byPath[rec.Path] = rec.Name
}

// Remove deletes the embedding associated with path. If that was the
// last embedding for its name, the name is dropped from the registry
// entirely (invariant (c) in spec.md §3: no stale entries survive a
// deletion).
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.byPath[path]
	if !ok {
		return
	}
	r.removeLocked(path, name)
}

func (r *Registry) removeLocked(path, name string) {
	delete(r.byPath, path)
	entries := r.byName[name]
	for i, e := range entries {
		if e.path == path {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(r.byName, name)
	} else {
		r.byName[name] = entries
	}
}

// Paths returns every capture file path currently backing the
// registry. Used by the periodic directory re-scan to prune entries
// whose file has disappeared from disk since the last scan (spec.md
// §3 invariant (c)).
func (r *Registry) Paths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.byPath))
	for path := range r.byPath {
		paths = append(paths, path)
	}
	return paths
}

// Names returns the registry's current key set, used to check
// invariant (a) in tests: it must equal the set of distinct names
// encoded in capture filenames currently on disk.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	return names
}

// Match looks up the best-matching name for a live embedding against
// every embedding currently in the registry. It returns ("", false)
// when no embedding meets threshold, which the video worker treats as
// "unknown" and therefore blurs (spec.md §4.2 step 3, §7 privacy
// guarantee: uncertainty resolves to blur).
func (r *Registry) Match(probe models.FaceEmbedding, threshold float64) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bestName := ""
	bestScore := -math.MaxFloat64
	for name, entries := range r.byName {
		for _, e := range entries {
			score := cosineSimilarity(probe, e.embedding)
			if score > bestScore {
				bestScore = score
				bestName = name
			}
		}
	}

	if bestName == "" || bestScore < threshold {
		return "", false
	}
	return bestName, true
}

func cosineSimilarity(a, b models.FaceEmbedding) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
