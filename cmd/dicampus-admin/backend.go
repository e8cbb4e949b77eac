package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
	"github.com/noah-isme/dicampus-admin/pkg/cache"
	"github.com/noah-isme/dicampus-admin/pkg/config"
	"github.com/noah-isme/dicampus-admin/pkg/database"
)

type documentStore interface {
	Subscribe(collection string, onSnapshot repository.SnapshotFunc, onError repository.ErrorFunc) (repository.Subscription, error)
	Insert(ctx context.Context, collection string, fields repository.Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields repository.Fields) error
	Delete(ctx context.Context, collection, id string) error
}

type credentialStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

// backend bundles the collection store and credential source selected by STORE_DRIVER.
type backend struct {
	store       documentStore
	credentials credentialStore
	closers     []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		_ = b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*backend, error) {
	b := &backend{}
	var db *sqlx.DB

	switch cfg.Store.Driver {
	case config.StorePostgres:
		var err error
		db, err = database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, db.Close)

		listenerLogger := logr.Named("listener")
		repo := repository.NewPostgresDocumentRepository(db, func() (repository.Listener, error) {
			return database.NewListener(cfg.Database, listenerLogger), nil
		}, logr.Named("store"))
		if err := repo.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		b.store = repo
	case config.StoreRedis:
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.store = repository.NewRedisDocumentRepository(client, cfg.Redis.KeyPrefix, logr.Named("store"))
	default:
		b.store = repository.NewMemoryDocumentRepository()
	}

	switch {
	case cfg.Admin.Email != "" && cfg.Admin.PasswordHash != "":
		b.credentials = repository.NewStaticUserRepository(cfg.Admin.Email, cfg.Admin.PasswordHash, cfg.Admin.Name)
	case db != nil:
		b.credentials = repository.NewUserRepository(db)
	default:
		b.Close()
		return nil, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD_HASH are required with the %s store", cfg.Store.Driver)
	}

	return b, nil
}
