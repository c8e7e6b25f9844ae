package audio

import (
	"github.com/foxseedlab/livescribe/internal/audio"
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.SegmentEncoder, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.AudioFormat == config.AudioFormatFLAC {
			return NewFLACEncoder(), nil
		}
		return NewWAVEncoder(), nil
	})
	do.Provide(injector, func(i do.Injector) (audio.DurationProber, error) {
		return NewFileProber(), nil
	})
}
