package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/livescribe/internal/config"
)

type envConfig struct {
	Env string `env:"ENV" envDefault:"production"`

	StreamURL     string `env:"STREAM_URL"`
	StreamPageURL string `env:"STREAM_PAGE_URL"`

	OutputDir         string `env:"OUTPUT_DIR" envDefault:"output"`
	ChunksDir         string `env:"CHUNKS_DIR"`
	TranscriptsDir    string `env:"TRANSCRIPTS_DIR"`
	KeepCaptureBuffer bool   `env:"KEEP_CAPTURE_BUFFER" envDefault:"false"`

	AudioFormat string `env:"AUDIO_FORMAT" envDefault:"wav"`
	SampleRate  int    `env:"SAMPLE_RATE" envDefault:"16000"`

	SegmentDuration       time.Duration `env:"SEGMENT_DURATION" envDefault:"300s"`
	CutPollInterval       time.Duration `env:"CUT_POLL_INTERVAL" envDefault:"10s"`
	ReadinessPollInterval time.Duration `env:"READINESS_POLL_INTERVAL" envDefault:"2s"`
	ReadinessStablePolls  int           `env:"READINESS_STABLE_POLLS" envDefault:"3"`
	ReadinessMaxWait      time.Duration `env:"READINESS_MAX_WAIT" envDefault:"120s"`
	CaptureStartupTimeout time.Duration `env:"CAPTURE_STARTUP_TIMEOUT" envDefault:"30s"`
	CaptureStopTimeout    time.Duration `env:"CAPTURE_STOP_TIMEOUT" envDefault:"10s"`
	ShutdownStepTimeout   time.Duration `env:"SHUTDOWN_STEP_TIMEOUT" envDefault:"60s"`
	UploadDrainTimeout    time.Duration `env:"UPLOAD_DRAIN_TIMEOUT" envDefault:"30s"`
	UploadCallTimeout     time.Duration `env:"UPLOAD_CALL_TIMEOUT" envDefault:"20s"`
	UploadRatePerMinute   int           `env:"UPLOAD_RATE_PER_MINUTE" envDefault:"60"`

	TranscribeBackend  string `env:"TRANSCRIBE_BACKEND" envDefault:"whisper_cli"`
	TranscribeLanguage string `env:"TRANSCRIBE_LANGUAGE" envDefault:"es"`

	WhisperPython      string `env:"WHISPER_PYTHON" envDefault:"python3"`
	WhisperModel       string `env:"WHISPER_MODEL" envDefault:"small"`
	WhisperDevice      string `env:"WHISPER_DEVICE" envDefault:"cpu"`
	WhisperComputeType string `env:"WHISPER_COMPUTE_TYPE" envDefault:"int8"`

	GoogleCloudProjectID       string `env:"GOOGLE_CLOUD_PROJECT_ID"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCloudSpeechLocation  string `env:"GOOGLE_CLOUD_SPEECH_LOCATION" envDefault:"global"`
	GoogleCloudSpeechModel     string `env:"GOOGLE_CLOUD_SPEECH_MODEL" envDefault:"long"`

	RemoteStores         []string `env:"REMOTE_STORES" envSeparator:","`
	GoogleSheetsID       string   `env:"GOOGLE_SHEETS_ID"`
	GoogleDocsID         string   `env:"GOOGLE_DOCS_ID"`
	TranscriptWebhookURL string   `env:"TRANSCRIPT_WEBHOOK_URL"`
	DiscordToken         string   `env:"DISCORD_TOKEN"`
	DiscordChannelID     string   `env:"DISCORD_CHANNEL_ID"`
	DatabaseURL          string   `env:"DATABASE_URL"`

	TranscriptTitle    string `env:"TRANSCRIPT_TITLE" envDefault:"LIVE TRANSCRIPT"`
	TranscriptTimezone string `env:"TRANSCRIPT_TIMEZONE" envDefault:"UTC"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		StreamURL:                  raw.StreamURL,
		StreamPageURL:              raw.StreamPageURL,
		OutputDir:                  raw.OutputDir,
		ChunksDir:                  withDefault(raw.ChunksDir, filepath.Join(raw.OutputDir, "audio_chunks")),
		TranscriptsDir:             withDefault(raw.TranscriptsDir, filepath.Join(raw.OutputDir, "transcripts")),
		KeepCaptureBuffer:          raw.KeepCaptureBuffer,
		AudioFormat:                raw.AudioFormat,
		SampleRate:                 raw.SampleRate,
		SegmentDuration:            raw.SegmentDuration,
		CutPollInterval:            raw.CutPollInterval,
		ReadinessPollInterval:      raw.ReadinessPollInterval,
		ReadinessStablePolls:       raw.ReadinessStablePolls,
		ReadinessMaxWait:           raw.ReadinessMaxWait,
		CaptureStartupTimeout:      raw.CaptureStartupTimeout,
		CaptureStopTimeout:         raw.CaptureStopTimeout,
		ShutdownStepTimeout:        raw.ShutdownStepTimeout,
		UploadDrainTimeout:         raw.UploadDrainTimeout,
		UploadCallTimeout:          raw.UploadCallTimeout,
		UploadRatePerMinute:        raw.UploadRatePerMinute,
		TranscribeBackend:          raw.TranscribeBackend,
		TranscribeLanguage:         raw.TranscribeLanguage,
		WhisperPython:              raw.WhisperPython,
		WhisperModel:               raw.WhisperModel,
		WhisperDevice:              raw.WhisperDevice,
		WhisperComputeType:         raw.WhisperComputeType,
		GoogleCloudProjectID:       raw.GoogleCloudProjectID,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCloudSpeechLocation:  raw.GoogleCloudSpeechLocation,
		GoogleCloudSpeechModel:     raw.GoogleCloudSpeechModel,
		RemoteStores:               raw.RemoteStores,
		GoogleSheetsID:             raw.GoogleSheetsID,
		GoogleDocsID:               raw.GoogleDocsID,
		TranscriptWebhookURL:       raw.TranscriptWebhookURL,
		DiscordToken:               raw.DiscordToken,
		DiscordChannelID:           raw.DiscordChannelID,
		DatabaseURL:                raw.DatabaseURL,
		TranscriptTitle:            raw.TranscriptTitle,
		TranscriptTimezone:         raw.TranscriptTimezone,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
