package mux

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

func TestWriteFrame_WritesRawMatBytes(t *testing.T) {
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	var buf bytes.Buffer
	err := writeFrame(&buf, models.VideoPacket{Mat: frame})
	require.NoError(t, err)
	assert.Equal(t, 4*4*3, buf.Len())
}

func TestWorker_Drain_StopsAfterGraceEvenWithNoTraffic(t *testing.T) {
	w := NewWorker("ffmpeg", "rtmp://ignored", noopLogger(), make(chan models.VideoPacket), make(chan models.EncodedPacket))

	start := time.Now()
	w.drain(context.Background())
	assert.GreaterOrEqual(t, time.Since(start), writeGrace-10*time.Millisecond)
}

func TestWorker_Drain_ClosesQueuedVideoPackets(t *testing.T) {
	videoIn := make(chan models.VideoPacket, 1)
	frame := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
	videoIn <- models.VideoPacket{Mat: frame}

	w := NewWorker("ffmpeg", "rtmp://ignored", noopLogger(), videoIn, make(chan models.EncodedPacket))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	w.drain(ctx)
	// draining must take the queued packet off the channel (drain calls
	// pkt.Close() on every video packet it takes) without panicking or
	// blocking past the context deadline.
	assert.Empty(t, videoIn)
}

func TestDecideMerge_PrefersLowerPTSWhenBothPending(t *testing.T) {
	video := &models.VideoPacket{PTS: 200 * time.Millisecond}
	audio := &models.EncodedPacket{PTS: 100 * time.Millisecond}
	assert.Equal(t, mergeFlushAudio, decideMerge(video, audio, false, false))

	video.PTS, audio.PTS = 50*time.Millisecond, 100*time.Millisecond
	assert.Equal(t, mergeFlushVideo, decideMerge(video, audio, false, false))
}

func TestDecideMerge_TiesFavorVideo(t *testing.T) {
	video := &models.VideoPacket{PTS: 100 * time.Millisecond}
	audio := &models.EncodedPacket{PTS: 100 * time.Millisecond}
	assert.Equal(t, mergeFlushVideo, decideMerge(video, audio, false, false))
}

func TestDecideMerge_FlushesRemainderOnceOtherStreamDone(t *testing.T) {
	audio := &models.EncodedPacket{PTS: time.Second}
	assert.Equal(t, mergeFlushAudio, decideMerge(nil, audio, true, false))

	video := &models.VideoPacket{PTS: time.Second}
	assert.Equal(t, mergeFlushVideo, decideMerge(video, nil, false, true))
}

func TestDecideMerge_DoneWhenBothStreamsClosedAndEmpty(t *testing.T) {
	assert.Equal(t, mergeDone, decideMerge(nil, nil, true, true))
}

func TestDecideMerge_WaitsWhenNothingPendingAndBothOpen(t *testing.T) {
	assert.Equal(t, mergeWait, decideMerge(nil, nil, false, false))
}

func TestWorker_Drain_StopsImmediatelyOnClosedChannels(t *testing.T) {
	videoIn := make(chan models.VideoPacket)
	audioIn := make(chan models.EncodedPacket)
	close(videoIn)
	close(audioIn)

	w := NewWorker("ffmpeg", "rtmp://ignored", noopLogger(), videoIn, audioIn)

	done := make(chan struct{})
	go func() {
		w.drain(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(writeGrace):
		t.Fatal("drain must return promptly when upstream channels are closed")
	}
}
