package config

import (
	"fmt"
	"slices"
	"time"
)

const (
	AudioFormatWAV  = "wav"
	AudioFormatFLAC = "flac"

	TranscribeBackendWhisperCLI  = "whisper_cli"
	TranscribeBackendCloudSpeech = "cloud_speech"

	RemoteStoreSheets   = "sheets"
	RemoteStoreDocs     = "docs"
	RemoteStoreWebhook  = "webhook"
	RemoteStoreDiscord  = "discord"
	RemoteStorePostgres = "postgres"
)

type Config struct {
	Env string

	StreamURL     string
	StreamPageURL string

	OutputDir         string
	ChunksDir         string
	TranscriptsDir    string
	KeepCaptureBuffer bool

	AudioFormat string
	SampleRate  int

	SegmentDuration       time.Duration
	CutPollInterval       time.Duration
	ReadinessPollInterval time.Duration
	ReadinessStablePolls  int
	ReadinessMaxWait      time.Duration
	CaptureStartupTimeout time.Duration
	CaptureStopTimeout    time.Duration
	ShutdownStepTimeout   time.Duration
	UploadDrainTimeout    time.Duration
	UploadCallTimeout     time.Duration
	UploadRatePerMinute   int

	TranscribeBackend  string
	TranscribeLanguage string

	WhisperPython      string
	WhisperModel       string
	WhisperDevice      string
	WhisperComputeType string

	GoogleCloudProjectID       string
	GoogleCloudCredentialsJSON string
	GoogleCloudSpeechLocation  string
	GoogleCloudSpeechModel     string

	RemoteStores         []string
	GoogleSheetsID       string
	GoogleDocsID         string
	TranscriptWebhookURL string
	DiscordToken         string
	DiscordChannelID     string
	DatabaseURL          string

	TranscriptTitle    string
	TranscriptTimezone string
}

func (c *Config) Validate() error {
	if c.ChunksDir == "" || c.TranscriptsDir == "" {
		return fmt.Errorf("CHUNKS_DIR and TRANSCRIPTS_DIR are required")
	}
	if c.AudioFormat != AudioFormatWAV && c.AudioFormat != AudioFormatFLAC {
		return fmt.Errorf("AUDIO_FORMAT must be %q or %q, got %q", AudioFormatWAV, AudioFormatFLAC, c.AudioFormat)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("SAMPLE_RATE must be positive, got %d", c.SampleRate)
	}
	for _, d := range c.positiveDurations() {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	if c.CutPollInterval > c.SegmentDuration {
		return fmt.Errorf("CUT_POLL_INTERVAL (%s) must not exceed SEGMENT_DURATION (%s)", c.CutPollInterval, c.SegmentDuration)
	}
	if c.ReadinessStablePolls <= 0 {
		return fmt.Errorf("READINESS_STABLE_POLLS must be positive, got %d", c.ReadinessStablePolls)
	}
	if c.UploadRatePerMinute <= 0 {
		return fmt.Errorf("UPLOAD_RATE_PER_MINUTE must be positive, got %d", c.UploadRatePerMinute)
	}
	if _, err := time.LoadLocation(c.TranscriptTimezone); err != nil {
		return fmt.Errorf("TRANSCRIPT_TIMEZONE is invalid: %w", err)
	}
	if err := c.validateBackend(); err != nil {
		return err
	}
	return c.validateRemoteStores()
}

// ValidateCapture checks the settings only continuous capture needs.
func (c *Config) ValidateCapture() error {
	if c.StreamURL == "" && c.StreamPageURL == "" {
		return fmt.Errorf("STREAM_URL or STREAM_PAGE_URL is required for capture mode")
	}
	return nil
}

func (c *Config) validateBackend() error {
	switch c.TranscribeBackend {
	case TranscribeBackendWhisperCLI:
		if c.WhisperPython == "" || c.WhisperModel == "" {
			return fmt.Errorf("WHISPER_PYTHON and WHISPER_MODEL are required for %s", TranscribeBackendWhisperCLI)
		}
	case TranscribeBackendCloudSpeech:
		if c.GoogleCloudProjectID == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT_ID is required for %s", TranscribeBackendCloudSpeech)
		}
		if c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_CREDENTIALS_JSON is required for %s", TranscribeBackendCloudSpeech)
		}
	default:
		return fmt.Errorf("TRANSCRIBE_BACKEND %q is not supported", c.TranscribeBackend)
	}
	return nil
}

func (c *Config) validateRemoteStores() error {
	seen := make(map[string]struct{}, len(c.RemoteStores))
	for _, name := range c.RemoteStores {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("REMOTE_STORES lists %q more than once", name)
		}
		seen[name] = struct{}{}
		var req requiredEnvField
		switch name {
		case RemoteStoreSheets:
			req = requiredEnvField{name: "GOOGLE_SHEETS_ID", value: c.GoogleSheetsID}
		case RemoteStoreDocs:
			req = requiredEnvField{name: "GOOGLE_DOCS_ID", value: c.GoogleDocsID}
		case RemoteStoreWebhook:
			req = requiredEnvField{name: "TRANSCRIPT_WEBHOOK_URL", value: c.TranscriptWebhookURL}
		case RemoteStoreDiscord:
			if c.DiscordToken == "" {
				return fmt.Errorf("DISCORD_TOKEN is required when REMOTE_STORES contains %s", name)
			}
			req = requiredEnvField{name: "DISCORD_CHANNEL_ID", value: c.DiscordChannelID}
		case RemoteStorePostgres:
			req = requiredEnvField{name: "DATABASE_URL", value: c.DatabaseURL}
		default:
			return fmt.Errorf("REMOTE_STORES contains unknown store %q", name)
		}
		if req.value == "" {
			return fmt.Errorf("%s is required when REMOTE_STORES contains %s", req.name, name)
		}
		if (name == RemoteStoreSheets || name == RemoteStoreDocs) && c.GoogleCloudCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_CLOUD_CREDENTIALS_JSON is required when REMOTE_STORES contains %s", name)
		}
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

type durationField struct {
	name  string
	value time.Duration
}

func (c *Config) positiveDurations() []durationField {
	return []durationField{
		{name: "SEGMENT_DURATION", value: c.SegmentDuration},
		{name: "CUT_POLL_INTERVAL", value: c.CutPollInterval},
		{name: "READINESS_POLL_INTERVAL", value: c.ReadinessPollInterval},
		{name: "READINESS_MAX_WAIT", value: c.ReadinessMaxWait},
		{name: "CAPTURE_STARTUP_TIMEOUT", value: c.CaptureStartupTimeout},
		{name: "CAPTURE_STOP_TIMEOUT", value: c.CaptureStopTimeout},
		{name: "SHUTDOWN_STEP_TIMEOUT", value: c.ShutdownStepTimeout},
		{name: "UPLOAD_DRAIN_TIMEOUT", value: c.UploadDrainTimeout},
		{name: "UPLOAD_CALL_TIMEOUT", value: c.UploadCallTimeout},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) UsesStore(name string) bool {
	return slices.Contains(c.RemoteStores, name)
}

// Location falls back to UTC; Validate has already rejected unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TranscriptTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
