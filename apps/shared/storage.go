package shared

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/collegium/core"
	"github.com/trezcool/collegium/storage/database"
	"github.com/trezcool/collegium/storage/kv/badger"
	"github.com/trezcool/collegium/storage/kv/inmem"
	"github.com/trezcool/collegium/storage/kv/postgres"
)

// Substrate is the opened key-value substrate. DB is only set for the postgres driver.
type Substrate struct {
	core.KeyValueStore
	DB *sqlx.DB
}

// OpenSubstrate opens the key-value substrate selected by conf.Storage.Driver.
// The postgres database is created and migrated first when migrate is true.
func OpenSubstrate(ctx context.Context, conf *core.Config, logger core.Logger, migrate bool) (*Substrate, error) {
	switch conf.Storage.Driver {
	case core.StorageMemory:
		return &Substrate{KeyValueStore: inmemkv.Open()}, nil

	case core.StorageBadger:
		cfg := badgerkv.DefaultConfig(conf.Storage.Path)
		cfg.SyncWrites = conf.Storage.SyncWrites
		cfg.Logger = logger
		kv, err := badgerkv.Open(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "opening badger substrate")
		}
		return &Substrate{KeyValueStore: kv}, nil

	case core.StoragePostgres:
		if migrate {
			if err := database.CreateIfNotExist(conf.Database); err != nil {
				return nil, err
			}
		}
		db, err := database.Open(conf.Database)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err = database.Migrate(ctx, db, "up"); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Substrate{KeyValueStore: pgkv.New(db, 0), DB: db}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", conf.Storage.Driver)
}
