package consent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

func TestRegistry_MatchAboveThreshold(t *testing.T) {
	r := NewRegistry()
	r.Insert(models.ConsentRecord{
		Path:      "/captures/20260101000000_dana.jpg",
		Name:      "dana",
		Timestamp: time.Now(),
		Embedding: models.FaceEmbedding{1, 0, 0},
	})

	name, ok := r.Match(models.FaceEmbedding{1, 0, 0}, 0.9)
	require.True(t, ok)
	assert.Equal(t, "dana", name)
}

func TestRegistry_MatchBelowThresholdIsUnknown(t *testing.T) {
	r := NewRegistry()
	r.Insert(models.ConsentRecord{
		Path:      "/captures/20260101000000_dana.jpg",
		Name:      "dana",
		Timestamp: time.Now(),
		Embedding: models.FaceEmbedding{1, 0, 0},
	})

	_, ok := r.Match(models.FaceEmbedding{0, 1, 0}, 0.9)
	assert.False(t, ok, "orthogonal embedding must not match")
}

func TestRegistry_EmptyRegistryNeverMatches(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Match(models.FaceEmbedding{1, 0, 0}, 0.0)
	assert.False(t, ok)
}

func TestRegistry_InsertSamePathReplacesRatherThanDuplicates(t *testing.T) {
	r := NewRegistry()
	rec := models.ConsentRecord{Path: "/captures/x.jpg", Name: "dana", Embedding: models.FaceEmbedding{1, 0, 0}}
	r.Insert(rec)

	rec.Embedding = models.FaceEmbedding{0, 1, 0}
	r.Insert(rec)

	assert.Len(t, r.Names(), 1)
	name, ok := r.Match(models.FaceEmbedding{0, 1, 0}, 0.9)
	require.True(t, ok)
	assert.Equal(t, "dana", name)
}

func TestRegistry_RemoveLastEntryDropsName(t *testing.T) {
	r := NewRegistry()
	r.Insert(models.ConsentRecord{Path: "/captures/x.jpg", Name: "dana", Embedding: models.FaceEmbedding{1, 0, 0}})
	r.Remove("/captures/x.jpg")

	assert.Empty(t, r.Names())
	_, ok := r.Match(models.FaceEmbedding{1, 0, 0}, 0.0)
	assert.False(t, ok)
}

func TestRegistry_RemoveUnknownPathIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Insert(models.ConsentRecord{Path: "/captures/x.jpg", Name: "dana", Embedding: models.FaceEmbedding{1, 0, 0}})
	r.Remove("/captures/does-not-exist.jpg")

	assert.Len(t, r.Names(), 1)
}

func TestRegistry_PathsReflectsInsertsAndRemoves(t *testing.T) {
	r := NewRegistry()
	r.Insert(models.ConsentRecord{Path: "/captures/a.jpg", Name: "dana", Embedding: models.FaceEmbedding{1, 0, 0}})
	r.Insert(models.ConsentRecord{Path: "/captures/b.jpg", Name: "sam", Embedding: models.FaceEmbedding{0, 1, 0}})

	assert.ElementsMatch(t, []string{"/captures/a.jpg", "/captures/b.jpg"}, r.Paths())

	r.Remove("/captures/a.jpg")
	assert.ElementsMatch(t, []string{"/captures/b.jpg"}, r.Paths())
}
