package vad

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

func TestAccumulator_SpeechThenShortSilenceStaysOpen(t *testing.T) {
	a := newAccumulator(500 * time.Millisecond)

	_, done := a.observe([]float32{1, 2, 3}, true)
	assert.False(t, done)

	_, done = a.observe([]float32{0, 0, 0}, false)
	assert.False(t, done, "silence shorter than the trailing threshold must not close the segment")
	assert.True(t, a.active)
}

func TestAccumulator_SilenceWithoutPriorSpeechIsNoop(t *testing.T) {
	a := newAccumulator(500 * time.Millisecond)
	_, done := a.observe([]float32{0, 0, 0}, false)
	assert.False(t, done)
	assert.False(t, a.active)
}

func TestAccumulator_TrailingSilencePastThresholdClosesSegment(t *testing.T) {
	a := newAccumulator(10 * time.Millisecond)

	_, done := a.observe([]float32{1, 1, 1}, true)
	require.False(t, done)

	// Trailing silence is timed from the first non-speech window.
	_, done = a.observe([]float32{0, 0, 0}, false)
	require.False(t, done)

	time.Sleep(20 * time.Millisecond)

	seg, done := a.observe([]float32{0, 0, 0}, false)
	require.True(t, done)
	assert.NotEmpty(t, seg.ID)
	assert.False(t, a.active)
}

func TestAccumulator_FlushWithNoSpeechReturnsFalse(t *testing.T) {
	a := newAccumulator(500 * time.Millisecond)
	_, done := a.flush()
	assert.False(t, done)
}

func TestTrySendDropOldest_DropsOldestWhenFull(t *testing.T) {
	out := make(chan models.SpeechSegment, 1)
	log := zap.NewNop().Sugar()

	first := models.SpeechSegment{ID: "first"}
	second := models.SpeechSegment{ID: "second"}

	trySendDropOldest(out, first, log)
	trySendDropOldest(out, second, log)

	require.Len(t, out, 1)
	assert.Equal(t, "second", (<-out).ID)
}

func TestTrySendDropOldest_NonFullChannelJustSends(t *testing.T) {
	out := make(chan models.SpeechSegment, 2)
	log := zap.NewNop().Sugar()

	trySendDropOldest(out, models.SpeechSegment{ID: "only"}, log)

	require.Len(t, out, 1)
	assert.Equal(t, "only", (<-out).ID)
}
