package webhook

import (
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideNamed(injector, config.RemoteStoreWebhook, func(i do.Injector) (remote.Store, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPStore(c.TranscriptWebhookURL), nil
	})
}
