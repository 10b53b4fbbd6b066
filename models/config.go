package models

import (
	"fmt"
	"time"
)

// Config holds every recognized option from the configuration table
// (ingress/egress endpoints, queue capacities, thresholds). It is
// populated by internal/config from a YAML file plus environment
// overrides and passed down to the supervisor and every worker it
// starts.
type Config struct {
	IngressURL string `mapstructure:"ingress_url"`
	EgressURL  string `mapstructure:"egress_url"`

	CaptureDir string `mapstructure:"capture_dir"`

	VideoQueueCapacity     int `mapstructure:"video_queue_capacity"`
	AudioQueueCapacity     int `mapstructure:"audio_queue_capacity"`
	SpeechSegmentQueueCap  int `mapstructure:"speech_segment_queue_capacity"`
	VideoOutQueueCapacity  int `mapstructure:"video_out_queue_capacity"`
	AudioOutQueueCapacity  int `mapstructure:"audio_out_queue_capacity"`

	SpeechWorkerCount int `mapstructure:"speech_worker_count"`

	VADTrailingSilence time.Duration `mapstructure:"vad_trailing_silence"`

	RecognitionMatchThreshold float64 `mapstructure:"recognition_match_threshold"`

	EgressAudioCodec    string `mapstructure:"egress_audio_codec"`
	EgressAudioBitrateK int    `mapstructure:"egress_audio_bitrate_kbps"`
	EgressAudioChannels int    `mapstructure:"egress_audio_channels"`

	LogLevel string `mapstructure:"log_level"`

	FFmpegPath string `mapstructure:"ffmpeg_path"`

	FaceCascadePath   string `mapstructure:"face_cascade_path"`
	FaceEmbeddingONNX string `mapstructure:"face_embedding_model_path"`
	MinFaceSize       int    `mapstructure:"min_face_size"`

	VADModelPath string `mapstructure:"vad_model_path"`

	WhisperBinPath   string `mapstructure:"whisper_bin_path"`
	WhisperModelPath string `mapstructure:"whisper_model_path"`

	OllamaHost  string `mapstructure:"ollama_host"`
	OllamaModel string `mapstructure:"ollama_model"`

	IngressConnectTimeout time.Duration `mapstructure:"ingress_connect_timeout"`
	IngressRetryInterval  time.Duration `mapstructure:"ingress_retry_interval"`

	HeartbeatStaleThreshold time.Duration `mapstructure:"heartbeat_stale_threshold"`
	ShutdownGraceCPULight   time.Duration `mapstructure:"shutdown_grace_cpu_light"`
	ShutdownGraceASR        time.Duration `mapstructure:"shutdown_grace_asr"`
}

// Validate enforces the invariants a Configuration error (spec.md §7)
// must catch before the supervisor starts any worker.
func (c *Config) Validate() error {
	if c.IngressURL == "" {
		return fmt.Errorf("config: ingress_url is required")
	}
	if c.EgressURL == "" {
		return fmt.Errorf("config: egress_url is required")
	}
	if c.CaptureDir == "" {
		return fmt.Errorf("config: capture_dir is required")
	}
	if c.VideoQueueCapacity <= 0 {
		return fmt.Errorf("config: video_queue_capacity must be > 0, got %d", c.VideoQueueCapacity)
	}
	if c.AudioQueueCapacity <= 0 {
		return fmt.Errorf("config: audio_queue_capacity must be > 0, got %d", c.AudioQueueCapacity)
	}
	if c.SpeechSegmentQueueCap <= 0 {
		return fmt.Errorf("config: speech_segment_queue_capacity must be > 0, got %d", c.SpeechSegmentQueueCap)
	}
	if c.SpeechWorkerCount < 1 {
		return fmt.Errorf("config: speech_worker_count must be >= 1, got %d", c.SpeechWorkerCount)
	}
	if c.RecognitionMatchThreshold < 0 || c.RecognitionMatchThreshold > 1 {
		return fmt.Errorf("config: recognition_match_threshold must be in [0,1], got %f", c.RecognitionMatchThreshold)
	}
	if c.MinFaceSize <= 0 {
		return fmt.Errorf("config: min_face_size must be > 0, got %d", c.MinFaceSize)
	}
	return nil
}
