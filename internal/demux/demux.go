// Package demux implements the Input Demuxer (spec.md §4.1): it opens
// the ingress URL, decodes video and audio, and fans each decoded unit
// out to the rest of the pipeline. Decoding is delegated to a
// long-running ffmpeg subprocess, generalizing the teacher's one-shot
// "pipe a VP8 frame through ffmpeg to get a gocv.Mat" idiom
// (internal/webrtc/video_processing.go's vp8FrameToGoCV) into a
// continuous pipe for an entire stream instead of one frame at a time.
package demux

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// Frame geometry for the rawvideo pipe. 720p/30fps matches the
// throughput target in spec.md §1; the decoder re-scales whatever the
// ingress track actually carries to this size so downstream stages
// never need to handle variable geometry.
const (
	FrameWidth  = 1280
	FrameHeight = 720

	audioSampleRate = 16000
	audioChannels   = 1
)

var frameByteSize = FrameWidth * FrameHeight * 3 // bgr24

// Worker is the Input Demuxer.
type Worker struct {
	ffmpegPath     string
	ingressURL     string
	connectTimeout time.Duration
	retryInterval  time.Duration
	log            *zap.SugaredLogger

	videoOut  chan<- models.VideoPacket
	audioOutA chan<- models.AudioFrame
	audioOutB chan<- models.AudioFrame

	heartbeat atomic.Int64
	stopped   atomic.Bool
}

// NewWorker builds the Input Demuxer. audioOutA/audioOutB are the two
// independent fan-out destinations (Audio Transcoder and VAD) per the
// design note in spec.md §9: "implement as two independent channels
// written in sequence by the demuxer."
func NewWorker(
	ffmpegPath, ingressURL string,
	connectTimeout, retryInterval time.Duration,
	log *zap.SugaredLogger,
	videoOut chan<- models.VideoPacket,
	audioOutA, audioOutB chan<- models.AudioFrame,
) *Worker {
	return &Worker{
		ffmpegPath:     ffmpegPath,
		ingressURL:     ingressURL,
		connectTimeout: connectTimeout,
		retryInterval:  retryInterval,
		log:            log,
		videoOut:       videoOut,
		audioOutA:      audioOutA,
		audioOutB:      audioOutB,
	}
}

// Heartbeat returns the UnixNano timestamp of the worker's last
// liveness signal, emitted at least once per second even while
// retrying a connection (spec.md §4.1).
func (w *Worker) Heartbeat() int64 {
	return w.heartbeat.Load()
}

// Stop requests shutdown; Run observes it within one second, per
// spec.md §4.1's shutdown bound.
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

// Run connects to the ingress URL and streams decoded units until Stop
// is called. On any disconnect or decode error it closes the
// subprocess, clears no-longer-valid state, and retries with a fixed
// backoff, never giving up (spec.md §7: Transient I/O retries).
func (w *Worker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	go func() {
		// Once Stop has been called, cancel ctx so an in-progress
		// ffmpeg session is torn down rather than run to completion.
		defer cancel()
		for !w.stopped.Load() {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.heartbeat.Store(time.Now().UnixNano())
			}
		}
	}()

	for !w.stopped.Load() && ctx.Err() == nil {
		w.heartbeat.Store(time.Now().UnixNano())

		if err := w.runOnce(ctx); err != nil {
			w.log.Warnw("ingress session ended, reconnecting", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryInterval):
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, w.connectTimeout)
	defer cancel()

	audioReader, audioWriter, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("demux: create audio pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, w.ffmpegPath,
		"-i", w.ingressURL,
		"-map", "0:v:0",
		"-f", "rawvideo", "-pix_fmt", "bgr24", "-s", fmt.Sprintf("%dx%d", FrameWidth, FrameHeight),
		"pipe:1",
		"-map", "0:a:0",
		"-f", "s16le", "-ar", fmt.Sprintf("%d", audioSampleRate), "-ac", fmt.Sprintf("%d", audioChannels),
		"pipe:3",
	)
	cmd.ExtraFiles = []*os.File{audioWriter}

	videoStdout, err := cmd.StdoutPipe()
	if err != nil {
		audioWriter.Close()
		audioReader.Close()
		return fmt.Errorf("demux: attach stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		audioWriter.Close()
		audioReader.Close()
		return fmt.Errorf("demux: start ffmpeg: %w", err)
	}
	audioWriter.Close() // parent's copy; child keeps fd 3 open.

	// connected closes the moment the first video frame is decoded,
	// which only happens once ffmpeg has actually opened the ingress
	// URL. Until then, a watcher races the connect phase against
	// connectCtx so a hung "-i <url>" never blocks past the per-attempt
	// budget spec.md §4.1/§5 require.
	connected := make(chan struct{})
	var closeConnectedOnce sync.Once
	signalConnected := func() { closeConnectedOnce.Do(func() { close(connected) }) }

	go func() {
		select {
		case <-connected:
		case <-connectCtx.Done():
			if ctx.Err() == nil {
				w.log.Warnw("ingress connect attempt timed out, killing subprocess", "timeout", w.connectTimeout)
				_ = cmd.Process.Kill()
			}
		}
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- w.readVideo(ctx, videoStdout, signalConnected) }()
	go func() { errCh <- w.readAudio(ctx, audioReader) }()

	waitErr := cmd.Wait()
	signalConnected() // unblock the connect watcher once the process has exited either way
	audioReader.Close()

	firstErr := <-errCh
	<-errCh
	if firstErr != nil {
		return firstErr
	}
	return waitErr
}

func (w *Worker) readVideo(ctx context.Context, r io.Reader, signalConnected func()) error {
	buf := make([]byte, frameByteSize)
	var seq uint64
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("demux: read video frame: %w", err)
		}
		signalConnected()

		mat, err := gocv.NewMatFromBytes(FrameHeight, FrameWidth, gocv.MatTypeCV8UC3, buf)
		if err != nil {
			return fmt.Errorf("demux: decode frame into mat: %w", err)
		}

		seq++
		pkt := models.VideoPacket{
			Mat:    mat,
			PTS:    time.Duration(seq) * time.Second / 30,
			Width:  FrameWidth,
			Height: FrameHeight,
			Seq:    seq,
		}

		select {
		case w.videoOut <- pkt:
		case <-ctx.Done():
			pkt.Close()
			return nil
		}
	}
}

// audioChunkSamples is how many samples (per channel) make up one
// AudioFrame, chosen as a 20ms frame at 16kHz to match common VAD
// window expectations.
const audioChunkSamples = audioSampleRate / 50

func (w *Worker) readAudio(ctx context.Context, r io.Reader) error {
	br := bufio.NewReader(r)
	raw := make([]byte, audioChunkSamples*2)
	var sampleCount uint64

	for {
		if _, err := io.ReadFull(br, raw); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return fmt.Errorf("demux: read audio chunk: %w", err)
		}

		samples := pcm16ToFloat32(raw)

		sampleCount += uint64(len(samples))
		frame := models.AudioFrame{
			PTS:        time.Duration(sampleCount) * time.Second / audioSampleRate,
			SampleRate: audioSampleRate,
			Channels:   audioChannels,
			Samples:    samples,
		}

		if !w.sendAudio(ctx, frame) {
			return nil
		}
	}
}

// pcm16ToFloat32 converts little-endian signed 16-bit PCM bytes into
// normalized float32 samples in [-1, 1).
func pcm16ToFloat32(raw []byte) []float32 {
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

func (w *Worker) sendAudio(ctx context.Context, frame models.AudioFrame) bool {
	select {
	case w.audioOutA <- frame:
	case <-ctx.Done():
		return false
	}
	select {
	case w.audioOutB <- frame.Clone():
	case <-ctx.Done():
		return false
	}
	return true
}
