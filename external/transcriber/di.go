package transcriber

import (
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/foxseedlab/livescribe/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Model, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.TranscribeBackend == config.TranscribeBackendCloudSpeech {
			return NewCloudSpeechModel(CloudSpeechConfig{
				ProjectID:       c.GoogleCloudProjectID,
				CredentialsJSON: c.GoogleCloudCredentialsJSON,
				Location:        c.GoogleCloudSpeechLocation,
				Model:           c.GoogleCloudSpeechModel,
			}), nil
		}
		return NewWhisperCLIModel(WhisperCLIConfig{
			Python:      c.WhisperPython,
			Model:       c.WhisperModel,
			Device:      c.WhisperDevice,
			ComputeType: c.WhisperComputeType,
		}), nil
	})
}
