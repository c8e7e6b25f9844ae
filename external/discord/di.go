package discord

import (
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideNamed(injector, config.RemoteStoreDiscord, func(i do.Injector) (remote.Store, error) {
		c := do.MustInvoke[*config.Config](i)
		store, err := NewChannelStore(c.DiscordToken, c.DiscordChannelID)
		if err != nil {
			return nil, err
		}
		return store, nil
	})
}
