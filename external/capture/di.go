package capture

import (
	"github.com/foxseedlab/livescribe/internal/capture"
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (capture.Source, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewFFmpegSource(FFmpegConfig{
			SampleRate:     c.SampleRate,
			StartupTimeout: c.CaptureStartupTimeout,
			StopGrace:      c.CaptureStopTimeout,
		}), nil
	})
	do.Provide(injector, func(i do.Injector) (capture.Resolver, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewYTDLPResolver("", c.CaptureStartupTimeout), nil
	})
}
