// Package speech implements the Speech Worker pool (spec.md §4.5):
// automatic speech recognition over a completed utterance followed by
// a local-language-model consent classifier, arming the video
// worker's consent-capture latch on a positive verdict.
package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// Transcriber runs automatic speech recognition over one segment's
// samples. It shells out to whisper-cli against a WAV file written
// from the segment, the same subprocess-piping idiom internal/demux
// and internal/transcode use for ffmpeg: sklyt/whisper's own public
// surface (github.com/sklyt/whisper/pkg) is built around live
// microphone capture via portaudio with no entry point for
// transcribing an in-memory buffer, so the Speech Worker drives the
// whisper-cli binary the same way that package does internally.
type Transcriber struct {
	whisperBin string
	modelPath  string
	tempDir    string
}

// NewTranscriber builds a Transcriber. tempDir holds scratch WAV
// files; it is created if missing.
func NewTranscriber(whisperBin, modelPath, tempDir string) (*Transcriber, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("speech: create transcriber temp dir: %w", err)
	}
	return &Transcriber{whisperBin: whisperBin, modelPath: modelPath, tempDir: tempDir}, nil
}

// Transcribe runs ASR over seg and returns a Transcript carrying the
// recognized text and the segment's original timestamps (spec.md §3).
// A failure here is swallowed by the caller per spec.md §7 (Speech
// Workers produce no verdict rather than a wrong one).
func (t *Transcriber) Transcribe(ctx context.Context, seg models.SpeechSegment) (models.Transcript, error) {
	wavPath := filepath.Join(t.tempDir, fmt.Sprintf("%s.wav", uuid.NewString()))
	if err := writeWAV(wavPath, seg.Samples, seg.SampleRate); err != nil {
		return models.Transcript{}, fmt.Errorf("speech: write scratch wav: %w", err)
	}
	defer os.Remove(wavPath)

	cmd := exec.CommandContext(ctx, t.whisperBin, "-m", t.modelPath, "-f", wavPath, "-nt", "-otxt", "-of", wavPath)
	out, err := cmd.Output()
	if err != nil {
		return models.Transcript{}, fmt.Errorf("speech: whisper-cli: %w", err)
	}
	return models.Transcript{
		Text:      string(bytes.TrimSpace(out)),
		StartedAt: seg.StartedAt,
		EndedAt:   seg.EndedAt,
	}, nil
}

// writeWAV encodes mono float32 samples as a 16-bit PCM WAV file.
func writeWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dataSize := len(samples) * 2
	byteRate := sampleRate * 2

	header := new(bytes.Buffer)
	header.WriteString("RIFF")
	binary.Write(header, binary.LittleEndian, uint32(36+dataSize))
	header.WriteString("WAVE")
	header.WriteString("fmt ")
	binary.Write(header, binary.LittleEndian, uint32(16))
	binary.Write(header, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(header, binary.LittleEndian, uint16(1)) // mono
	binary.Write(header, binary.LittleEndian, uint32(sampleRate))
	binary.Write(header, binary.LittleEndian, uint32(byteRate))
	binary.Write(header, binary.LittleEndian, uint16(2)) // block align
	binary.Write(header, binary.LittleEndian, uint16(16))
	header.WriteString("data")
	binary.Write(header, binary.LittleEndian, uint32(dataSize))

	if _, err := f.Write(header.Bytes()); err != nil {
		return err
	}

	pcm := make([]byte, dataSize)
	for i, s := range samples {
		v := int16(clampSample(s) * 32767)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	_, err = f.Write(pcm)
	return err
}

func clampSample(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
