package server

import (
	"context"
	"fmt"

	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/backup"
	"github.com/taskboard/apiserver/internal/db"
	"github.com/taskboard/apiserver/internal/events"
	"github.com/taskboard/apiserver/internal/mq"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/store"
)

// AccountStore is the persistence surface used by the API and by backups.
type AccountStore interface {
	services.UserRepository
	backup.Lister
}

func noopClose() error { return nil }

// OpenStore connects to the backend selected by cfg.StoreDriver. The
// returned function releases the connection.
func OpenStore(ctx context.Context, cfg config.Config) (AccountStore, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return store.NewUserRepository(conn), conn.Close, nil

	case config.StoreDriverMongo:
		client, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		repo := store.NewMongoUserRepository(client.Database(cfg.Mongo.Database))
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return repo, func() error { return client.Disconnect(context.Background()) }, nil

	case config.StoreDriverMemory:
		return store.NewMemoryUserRepository(), noopClose, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// OpenPublisher connects to the configured broker. With no broker
// configured, events are discarded.
func OpenPublisher(ctx context.Context, cfg config.Config) (services.EventPublisher, func() error, error) {
	if cfg.EventsBackend == "" || cfg.EventsBackend == config.EventsBackendNone {
		return events.Discard{}, noopClose, nil
	}

	backend, err := mq.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return events.NewPublisher(backend, cfg.EventsChannel), backend.Close, nil
}
