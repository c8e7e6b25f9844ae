package watcher

import (
	"github.com/foxseedlab/livescribe/internal/readiness"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideValue(injector, readiness.WatchFunc(Watch))
}
