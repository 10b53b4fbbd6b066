// Package config loads the recognized configuration table (spec.md
// §6) from a YAML file plus PROTECTOR_*-prefixed environment
// overrides, the way iamprashant-voice-ai and tvarr layer viper over
// a config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// Load reads configuration from path (if non-empty) and the
// environment, applies defaults, validates, and returns a Config
// ready to hand to the supervisor. A Configuration error (spec.md §7)
// is fatal on start, so Load returns early on any validation failure.
func Load(path string) (*models.Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PROTECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capture_dir", "./consent-captures")
	v.SetDefault("video_queue_capacity", 8)
	v.SetDefault("audio_queue_capacity", 32)
	v.SetDefault("speech_segment_queue_capacity", 16)
	v.SetDefault("video_out_queue_capacity", 8)
	v.SetDefault("audio_out_queue_capacity", 32)
	v.SetDefault("speech_worker_count", 2)
	v.SetDefault("vad_trailing_silence", 500*time.Millisecond)
	v.SetDefault("recognition_match_threshold", 0.75)
	v.SetDefault("egress_audio_codec", "opus")
	v.SetDefault("egress_audio_bitrate_kbps", 64)
	v.SetDefault("egress_audio_channels", 2)
	v.SetDefault("log_level", "info")
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("face_cascade_path", "haarcascade_frontalface_default.xml")
	v.SetDefault("face_embedding_model_path", "models/face_embedding.onnx")
	v.SetDefault("min_face_size", 60)
	v.SetDefault("vad_model_path", "models/silero_vad.onnx")
	v.SetDefault("whisper_bin_path", "whisper-cli")
	v.SetDefault("whisper_model_path", "models/ggml-base.en.bin")
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_model", "llama3.2:1b")
	v.SetDefault("ingress_connect_timeout", time.Second)
	v.SetDefault("ingress_retry_interval", time.Second)
	v.SetDefault("heartbeat_stale_threshold", 5*time.Second)
	v.SetDefault("shutdown_grace_cpu_light", time.Second)
	v.SetDefault("shutdown_grace_asr", 5*time.Second)
}
