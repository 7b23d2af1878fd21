package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/todo-api/internal/platform/db"
	"github.com/odyssey-erp/todo-api/internal/platform/docstore"
	"github.com/odyssey-erp/todo-api/internal/todos"
	"github.com/odyssey-erp/todo-api/internal/users"
)

// Stores bundles the repositories selected by STORE_DRIVER.
type Stores struct {
	Users users.Repository
	Todos todos.Repository

	// Ping reports store reachability for readiness checks.
	Ping func(ctx context.Context) error

	closers []func()
}

// Close releases store connections in reverse order of acquisition.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores connects to the configured backend and prepares its schema.
func OpenStores(ctx context.Context, cfg *Config, logger *slog.Logger) (*Stores, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.StoreDriver {
	case StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return &Stores{
			Users: users.NewMemoryRepository(),
			Todos: todos.NewMemoryRepository(),
			Ping:  func(context.Context) error { return nil },
		}, nil

	case StoreMongo:
		client, err := docstore.New(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		database := client.Database(cfg.MongoDatabase)
		userRepo := users.NewMongoRepository(database)
		todoRepo := todos.NewMongoRepository(database)
		closeClient := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect", slog.Any("error", err))
			}
		}
		if err := userRepo.EnsureIndexes(ctx); err != nil {
			closeClient()
			return nil, fmt.Errorf("app: user indexes: %w", err)
		}
		if err := todoRepo.EnsureIndexes(ctx); err != nil {
			closeClient()
			return nil, fmt.Errorf("app: todo indexes: %w", err)
		}
		return &Stores{
			Users:   userRepo,
			Todos:   todoRepo,
			Ping:    func(ctx context.Context) error { return client.Ping(ctx, nil) },
			closers: []func(){closeClient},
		}, nil

	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		userRepo := users.NewPGRepository(pool)
		todoRepo := todos.NewPGRepository(pool)
		// todos references users, so order matters.
		if err := userRepo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("app: user schema: %w", err)
		}
		if err := todoRepo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("app: todo schema: %w", err)
		}
		return &Stores{
			Users:   userRepo,
			Todos:   todoRepo,
			Ping:    pool.Ping,
			closers: []func(){pool.Close},
		}, nil
	}
	return nil, fmt.Errorf("app: unknown store driver %q", cfg.StoreDriver)
}
