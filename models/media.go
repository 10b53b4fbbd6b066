package models

import (
	"time"

	"gocv.io/x/gocv"
)

// StreamKind tags an EncodedPacket as belonging to the video or audio
// leg of the output mux.
type StreamKind int

const (
	StreamVideo StreamKind = iota
	StreamAudio
)

func (k StreamKind) String() string {
	if k == StreamVideo {
		return "video"
	}
	return "audio"
}

// VideoPacket is a decoded raw video frame in a pixel format suitable
// for blurring operations. It is owned exclusively by whichever stage
// currently holds it; Close must be called exactly once, by whichever
// stage retires it (the output muxer after writing it, or any stage
// that drops it on shutdown or during a drain).
type VideoPacket struct {
	Mat    gocv.Mat
	PTS    time.Duration
	Width  int
	Height int
	Seq    uint64
}

// Close releases the underlying pixel buffer.
func (p *VideoPacket) Close() error {
	if p == nil {
		return nil
	}
	return p.Mat.Close()
}

// AudioFrame is a decoded audio frame with interleaved samples. It is
// fanned out: the demuxer delivers an independent copy to the
// transcoder and to the VAD, so neither consumer mutates shared
// memory.
type AudioFrame struct {
	PTS        time.Duration
	SampleRate int
	Channels   int
	// Samples holds interleaved float32 PCM samples.
	Samples []float32
}

// Clone returns a deep copy safe for independent fan-out delivery.
func (f AudioFrame) Clone() AudioFrame {
	cp := make([]float32, len(f.Samples))
	copy(cp, f.Samples)
	f.Samples = cp
	return f
}

// EncodedPacket is a compressed video or audio packet bound for the
// output muxer.
type EncodedPacket struct {
	Kind StreamKind
	Data []byte
	PTS  time.Duration
}
