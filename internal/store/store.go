// Package store selects and opens a storage backend.
package store

import (
	"context"
	"fmt"

	"github.com/Voork1144/just-memory/internal/domain"
	"github.com/Voork1144/just-memory/internal/store/postgres"
	"github.com/Voork1144/just-memory/internal/store/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Backend bundles the memory and edge stores of one database.
type Backend struct {
	Driver   string
	Memories domain.MemoryStore
	Edges    domain.EdgeStore

	ping  func(context.Context) error
	close func()
}

// Config selects a backend. DSN is a file path for sqlite (":memory:" for an
// in-process database) and a connection URL for postgres.
type Config struct {
	Driver string
	DSN    string
}

func Open(ctx context.Context, cfg Config) (*Backend, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		var (
			db  *sqlite.DB
			err error
		)
		if cfg.DSN == ":memory:" {
			db, err = sqlite.OpenMemory()
		} else {
			path := cfg.DSN
			if path == "" {
				if path, err = sqlite.DefaultDBPath(); err != nil {
					return nil, err
				}
			}
			db, err = sqlite.Open(path)
		}
		if err != nil {
			return nil, err
		}
		return &Backend{
			Driver:   DriverSQLite,
			Memories: sqlite.NewMemoryStore(db),
			Edges:    sqlite.NewEdgeStore(db),
			ping:     db.Ping,
			close:    func() { _ = db.Close() },
		}, nil

	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_URL")
		}
		pool, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Driver:   DriverPostgres,
			Memories: postgres.NewMemoryStore(pool),
			Edges:    postgres.NewEdgeStore(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

func (b *Backend) Close() {
	b.close()
}
