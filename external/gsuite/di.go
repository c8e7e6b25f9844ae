package gsuite

import (
	"context"

	"github.com/foxseedlab/livescribe/internal/config"
	"github.com/foxseedlab/livescribe/internal/remote"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideNamed(injector, config.RemoteStoreSheets, func(i do.Injector) (remote.Store, error) {
		c := do.MustInvoke[*config.Config](i)
		opts, err := credentialOptions(c.GoogleCloudCredentialsJSON, sheetsScope)
		if err != nil {
			return nil, err
		}
		store, err := NewSheetsStore(context.Background(), c.GoogleSheetsID, c.Location(), opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	})
	do.ProvideNamed(injector, config.RemoteStoreDocs, func(i do.Injector) (remote.Store, error) {
		c := do.MustInvoke[*config.Config](i)
		opts, err := credentialOptions(c.GoogleCloudCredentialsJSON, docsScope)
		if err != nil {
			return nil, err
		}
		store, err := NewDocsStore(context.Background(), c.GoogleDocsID, c.Location(), opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	})
}
