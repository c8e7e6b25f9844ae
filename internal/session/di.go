package session

import (
	"fmt"

	"github.com/foxseedlab/livescribe/internal/audio"
	"github.com/foxseedlab/livescribe/internal/capture"
	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/foxseedlab/livescribe/internal/readiness"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/foxseedlab/livescribe/internal/repository"
	"github.com/foxseedlab/livescribe/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Orchestrator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		stores := make([]remote.Store, 0, len(cfg.RemoteStores))
		for _, name := range cfg.RemoteStores {
			s, err := do.InvokeNamed[remote.Store](i, name)
			if err != nil {
				return nil, fmt.Errorf("remote store %s: %w", name, err)
			}
			stores = append(stores, s)
		}
		watch, err := do.Invoke[readiness.WatchFunc](i)
		if err != nil {
			watch = nil
		}
		prober, err := do.Invoke[audio.DurationProber](i)
		if err != nil {
			prober = nil
		}
		return NewOrchestrator(cfg, Dependencies{
			Source:   do.MustInvoke[capture.Source](i),
			Resolver: do.MustInvoke[capture.Resolver](i),
			Encoder:  do.MustInvoke[audio.SegmentEncoder](i),
			Model:    do.MustInvoke[transcriber.Model](i),
			Prober:   prober,
			Store:    remote.NewMulti(stores...),
			Repo:     do.MustInvoke[repository.Repository](i),
			Watch:    watch,
		}), nil
	})
}
