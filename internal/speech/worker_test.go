package speech

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PrivacyIsAllYouNeed/protector/internal/consent"
	"github.com/PrivacyIsAllYouNeed/protector/models"
)

type fakeASR struct {
	text string
	err  error
}

func (f fakeASR) Transcribe(context.Context, models.SpeechSegment) (models.Transcript, error) {
	if f.err != nil {
		return models.Transcript{}, f.err
	}
	return models.Transcript{Text: f.text}, nil
}

type fakeClassifier struct {
	verdict models.ConsentVerdict
	err     error
}

func (f fakeClassifier) Classify(context.Context, models.Transcript) (models.ConsentVerdict, error) {
	return f.verdict, f.err
}

func TestWorker_PositiveVerdictArmsLatch(t *testing.T) {
	latch := consent.NewLatch()
	w := NewWorker("w1",
		fakeASR{text: "I consent to be recorded, my name is Dana"},
		fakeClassifier{verdict: models.ConsentVerdict{Consented: true, Name: "dana"}},
		latch, zap.NewNop().Sugar(), nil)

	w.process(context.Background(), models.SpeechSegment{ID: "s1"})

	name, pending := latch.TakeIfArmed()
	require.True(t, pending)
	assert.Equal(t, "dana", name)
}

func TestWorker_NegativeVerdictLeavesLatchClear(t *testing.T) {
	latch := consent.NewLatch()
	w := NewWorker("w1",
		fakeASR{text: "she said it was fine to record her"},
		fakeClassifier{verdict: models.ConsentVerdict{Consented: false}},
		latch, zap.NewNop().Sugar(), nil)

	w.process(context.Background(), models.SpeechSegment{ID: "s1"})

	_, pending := latch.TakeIfArmed()
	assert.False(t, pending)
}

func TestWorker_EmptyTranscriptSkipsClassification(t *testing.T) {
	latch := consent.NewLatch()
	w := NewWorker("w1", fakeASR{text: ""}, fakeClassifier{verdict: models.ConsentVerdict{Consented: true}}, latch, zap.NewNop().Sugar(), nil)

	w.process(context.Background(), models.SpeechSegment{ID: "s1"})

	_, pending := latch.TakeIfArmed()
	assert.False(t, pending, "an empty transcript must never arm the latch even if the classifier would have")
}

func TestWorker_ASRFailureDoesNotArmLatch(t *testing.T) {
	latch := consent.NewLatch()
	w := NewWorker("w1", fakeASR{err: assertError("boom")}, fakeClassifier{verdict: models.ConsentVerdict{Consented: true}}, latch, zap.NewNop().Sugar(), nil)

	w.process(context.Background(), models.SpeechSegment{ID: "s1"})

	_, pending := latch.TakeIfArmed()
	assert.False(t, pending)
}

type assertError string

func (e assertError) Error() string { return string(e) }
