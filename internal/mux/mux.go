// Package mux implements the Output Muxer (spec.md §4.7): it accepts
// processed raw video frames and encoded audio packets from two
// upstream channels and muxes
// them into the egress URL via a long-running ffmpeg subprocess,
// preserving cross-stream ordering by merging the two upstream
// channels on PTS rather than on arrival order (spec.md §5).
package mux

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/PrivacyIsAllYouNeed/protector/internal/demux"
	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// writeGrace is how long the muxer drains upstream channels after a
// write error before reopening, per spec.md §4.7.
const writeGrace = 500 * time.Millisecond

// idleCheck is the period of the muxer's idle tick: it refreshes the
// heartbeat while the upstream channels are quiet, and bounds how long
// a packet held from one stream waits for the other stream before it
// is written anyway.
const idleCheck = 200 * time.Millisecond

// Worker is the Output Muxer.
type Worker struct {
	ffmpegPath string
	egressURL  string
	log        *zap.SugaredLogger

	videoIn <-chan models.VideoPacket
	audioIn <-chan models.EncodedPacket

	heartbeat atomic.Int64
}

// NewWorker builds the Output Muxer.
func NewWorker(ffmpegPath, egressURL string, log *zap.SugaredLogger, videoIn <-chan models.VideoPacket, audioIn <-chan models.EncodedPacket) *Worker {
	return &Worker{ffmpegPath: ffmpegPath, egressURL: egressURL, log: log, videoIn: videoIn, audioIn: audioIn}
}

// Heartbeat returns the UnixNano timestamp of the worker's last
// successful write or idle tick, whichever is later.
func (w *Worker) Heartbeat() int64 {
	return w.heartbeat.Load()
}

// Run opens the egress subprocess and feeds it packets from both
// upstream channels until ctx is done. A write failure closes the
// current subprocess, drains both channels for writeGrace, and
// reopens a fresh one.
func (w *Worker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := w.session(ctx); err != nil {
			w.log.Warnw("egress session ended, reopening", "error", err)
			w.drain(ctx)
		}
	}
}

// mergeAction is what session should do next given the packets it is
// currently holding.
type mergeAction int

const (
	mergeWait mergeAction = iota
	mergeFlushVideo
	mergeFlushAudio
	mergeDone
)

// decideMerge is the PTS-ordered merge rule, pulled out as a pure
// function so it can be unit tested without a real ffmpeg subprocess.
// It prefers comparing PTS whenever both streams have a pending
// packet; once one stream has closed, whatever remains from the other
// is flushed as it arrives, since there is nothing left to compare it
// against.
func decideMerge(pendingVideo *models.VideoPacket, pendingAudio *models.EncodedPacket, videoDone, audioDone bool) mergeAction {
	switch {
	case pendingVideo != nil && pendingAudio != nil:
		if pendingVideo.PTS <= pendingAudio.PTS {
			return mergeFlushVideo
		}
		return mergeFlushAudio
	case videoDone && pendingAudio != nil:
		return mergeFlushAudio
	case audioDone && pendingVideo != nil:
		return mergeFlushVideo
	case videoDone && audioDone:
		return mergeDone
	default:
		return mergeWait
	}
}

// session holds at most one pending packet per upstream stream and
// writes whichever has the lower PTS first (via decideMerge), so
// cross-stream ordering at the muxer is governed by PTS rather than by
// whichever channel Go's select happens to ready first (spec.md §5:
// "Cross-stream ordering between video and audio is preserved at the
// muxer by PTS, not by arrival order").
func (w *Worker) session(ctx context.Context) error {
	cmd, videoStdin, audioWriter, err := w.spawn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		videoStdin.Close()
		audioWriter.Close()
		_ = cmd.Wait()
	}()

	ticker := time.NewTicker(idleCheck)
	defer ticker.Stop()

	var pendingVideo *models.VideoPacket
	var pendingAudio *models.EncodedPacket
	videoDone := false
	audioDone := false

	flushVideo := func() error {
		err := writeFrame(videoStdin, *pendingVideo)
		pendingVideo.Close()
		pendingVideo = nil
		return err
	}
	flushAudio := func() error {
		_, err := audioWriter.Write(pendingAudio.Data)
		pendingAudio = nil
		return err
	}

	for {
		switch decideMerge(pendingVideo, pendingAudio, videoDone, audioDone) {
		case mergeFlushVideo:
			if err := flushVideo(); err != nil {
				return fmt.Errorf("mux: write video: %w", err)
			}
			w.heartbeat.Store(time.Now().UnixNano())
			continue

		case mergeFlushAudio:
			if err := flushAudio(); err != nil {
				return fmt.Errorf("mux: write audio: %w", err)
			}
			w.heartbeat.Store(time.Now().UnixNano())
			continue

		case mergeDone:
			return nil
		}

		var videoCh <-chan models.VideoPacket
		if pendingVideo == nil && !videoDone {
			videoCh = w.videoIn
		}
		var audioCh <-chan models.EncodedPacket
		if pendingAudio == nil && !audioDone {
			audioCh = w.audioIn
		}

		select {
		case <-ctx.Done():
			if pendingVideo != nil {
				pendingVideo.Close()
			}
			return nil

		case pkt, ok := <-videoCh:
			if !ok {
				videoDone = true
				continue
			}
			pendingVideo = &pkt

		case pkt, ok := <-audioCh:
			if !ok {
				audioDone = true
				continue
			}
			pendingAudio = &pkt

		case <-ticker.C:
			w.heartbeat.Store(time.Now().UnixNano())
			// One stream has a packet held while the other has stayed
			// empty: write what is held rather than keep waiting.
			if pendingVideo != nil && pendingAudio == nil {
				if err := flushVideo(); err != nil {
					return fmt.Errorf("mux: write video: %w", err)
				}
			} else if pendingAudio != nil && pendingVideo == nil {
				if err := flushAudio(); err != nil {
					return fmt.Errorf("mux: write audio: %w", err)
				}
			}
		}
	}
}

func (w *Worker) spawn(ctx context.Context) (*exec.Cmd, io.WriteCloser, io.WriteCloser, error) {
	audioReader, audioWriter, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("mux: create audio pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, w.ffmpegPath,
		"-f", "rawvideo", "-pix_fmt", "bgr24", "-s", fmt.Sprintf("%dx%d", demux.FrameWidth, demux.FrameHeight),
		"-r", "30",
		"-i", "pipe:0",
		"-f", "ogg", "-i", "pipe:3",
		"-c:v", "libx264", "-preset", "veryfast", "-c:a", "copy",
		"-f", "flv", w.egressURL,
	)
	cmd.ExtraFiles = []*os.File{audioReader}

	videoStdin, err := cmd.StdinPipe()
	if err != nil {
		audioReader.Close()
		audioWriter.Close()
		return nil, nil, nil, fmt.Errorf("mux: attach stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		audioReader.Close()
		audioWriter.Close()
		return nil, nil, nil, fmt.Errorf("mux: start ffmpeg: %w", err)
	}
	audioReader.Close() // parent's copy; child keeps fd 3.

	return cmd, videoStdin, audioWriter, nil
}

func writeFrame(w io.Writer, pkt models.VideoPacket) error {
	data, err := pkt.Mat.DataPtrUint8()
	if err != nil {
		return fmt.Errorf("read frame bytes: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// drain discards any packets queued while the muxer was down, for at
// most writeGrace, so a respawn starts from fresh state rather than a
// backlog of stale frames.
func (w *Worker) drain(ctx context.Context) {
	deadline := time.After(writeGrace)
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case pkt, ok := <-w.videoIn:
			if !ok {
				return
			}
			pkt.Close()
		case _, ok := <-w.audioIn:
			if !ok {
				return
			}
		}
	}
}
