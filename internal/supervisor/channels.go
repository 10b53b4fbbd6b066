package supervisor

import (
	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// channels bundles every bounded FIFO edge in the pipeline graph
// (spec.md §5). Capacities come straight from the recognized
// configuration options in spec.md §6.
type channels struct {
	video       chan models.VideoPacket
	audioToXcode chan models.AudioFrame
	audioToVAD  chan models.AudioFrame
	speech      chan models.SpeechSegment
	videoOut    chan models.VideoPacket
	audioOut    chan models.EncodedPacket
}

func newChannels(cfg *models.Config) *channels {
	return &channels{
		video:        make(chan models.VideoPacket, cfg.VideoQueueCapacity),
		audioToXcode: make(chan models.AudioFrame, cfg.AudioQueueCapacity),
		audioToVAD:   make(chan models.AudioFrame, cfg.AudioQueueCapacity),
		speech:       make(chan models.SpeechSegment, cfg.SpeechSegmentQueueCap),
		videoOut:     make(chan models.VideoPacket, cfg.VideoOutQueueCapacity),
		audioOut:     make(chan models.EncodedPacket, cfg.AudioOutQueueCapacity),
	}
}
