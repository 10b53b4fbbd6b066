// Package transcode implements the Audio Transcoder (spec.md §4.3): it
// re-encodes decoded AudioFrames to the egress codec via a long-running
// ffmpeg subprocess, the same piped-subprocess idiom internal/demux
// uses for decode.
package transcode

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// Worker re-encodes audio to the configured egress codec.
type Worker struct {
	ffmpegPath string
	codec      string
	bitrateKbp int
	channels   int
	log        *zap.SugaredLogger

	in  <-chan models.AudioFrame
	out chan<- models.EncodedPacket

	heartbeat atomic.Int64

	// pts0 anchors the egress timebase to the first ingress AudioFrame's
	// PTS (spec.md §4.3); lastInputPTS tracks the most recent ingress
	// PTS handed to ffmpeg's stdin so readEncoded can stamp each
	// emitted packet with real elapsed audio time instead of a counter
	// unrelated to the ingress clock.
	pts0set      atomic.Bool
	pts0         atomic.Int64
	lastInputPTS atomic.Int64
}

// NewWorker builds the Audio Transcoder.
func NewWorker(ffmpegPath, codec string, bitrateKbps, channels int, log *zap.SugaredLogger, in <-chan models.AudioFrame, out chan<- models.EncodedPacket) *Worker {
	return &Worker{
		ffmpegPath: ffmpegPath,
		codec:      codec,
		bitrateKbp: bitrateKbps,
		channels:   channels,
		log:        log,
		in:         in,
		out:        out,
	}
}

// Heartbeat returns the UnixNano timestamp of the worker's last
// processed frame.
func (w *Worker) Heartbeat() int64 {
	return w.heartbeat.Load()
}

// Run starts the transcoder subprocess and feeds it frames from in
// until ctx is done or in is closed. The ingress-to-egress timebase
// mapping is fixed once at the first frame, per spec.md §4.3.
func (w *Worker) Run(ctx context.Context) {
	cmd, stdin, stdout, err := w.spawn(ctx)
	if err != nil {
		w.log.Errorw("failed to start audio transcoder subprocess", "error", err)
		return
	}
	defer func() {
		stdin.Close()
		_ = cmd.Wait()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.readEncoded(ctx, stdout)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-w.in:
			if !ok {
				return
			}
			if w.pts0set.CompareAndSwap(false, true) {
				w.pts0.Store(int64(frame.PTS))
			}
			w.lastInputPTS.Store(int64(frame.PTS))

			if err := writePCM(stdin, frame.Samples); err != nil {
				w.log.Warnw("audio transcoder write failed", "error", err)
				return
			}
			w.heartbeat.Store(time.Now().UnixNano())
		}
	}
}

func (w *Worker) spawn(ctx context.Context) (*exec.Cmd, io.WriteCloser, io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, w.ffmpegPath,
		"-f", "f32le", "-ar", "16000", "-ac", "1", "-i", "pipe:0",
		"-c:a", w.codec, "-b:a", fmt.Sprintf("%dk", w.bitrateKbp), "-ac", fmt.Sprintf("%d", w.channels),
		"-f", "ogg", "pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transcode: attach stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("transcode: attach stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("transcode: start ffmpeg: %w", err)
	}
	return cmd, stdin, stdout, nil
}

func writePCM(w io.Writer, samples []float32) error {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	_, err := w.Write(buf)
	return err
}

// readEncoded reads ffmpeg's encoded output and stamps each chunk with
// the ingress-timebase-anchored PTS of the most recent input frame fed
// to the encoder, per spec.md §4.3's "map the ingress audio timebase to
// the egress timebase exactly once at stream start." The encoder
// buffers and reframes internally, so this is necessarily an
// approximation of the exact sample an output chunk corresponds to,
// but it tracks real elapsed audio time rather than a counter with no
// relationship to it, and is monotonically non-decreasing since
// lastInputPTS only ever increases.
func (w *Worker) readEncoded(ctx context.Context, r io.Reader) {
	br := bufio.NewReader(r)
	buf := make([]byte, 4096)

	for {
		n, err := br.Read(buf)
		if n > 0 {
			pts := time.Duration(w.lastInputPTS.Load() - w.pts0.Load())
			pkt := models.EncodedPacket{
				Kind: models.StreamAudio,
				Data: append([]byte(nil), buf[:n]...),
				PTS:  pts,
			}
			select {
			case w.out <- pkt:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}
