package models

import "time"

// SpeechSegment is a contiguous span of 16kHz mono samples covering
// one detected utterance, handed from the VAD to a Speech Worker.
type SpeechSegment struct {
	ID          string
	Samples     []float32
	SampleRate  int
	StartedAt   time.Time
	EndedAt     time.Time
}

// Transcript is the text an ASR pass recognized from a SpeechSegment.
type Transcript struct {
	Text      string
	StartedAt time.Time
	EndedAt   time.Time
}

// ConsentVerdict is the structured output of the consent classifier
// that runs on a Transcript.
type ConsentVerdict struct {
	Consented bool
	// Name is the filename-safe token extracted from the utterance,
	// already normalized per the filename grammar in spec.md §6.
	// Empty when Consented is false; "unknown" when consent was given
	// but no usable name could be parsed.
	Name string
}
