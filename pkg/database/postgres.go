package database

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/dicampus-admin/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// NewListener opens a dedicated LISTEN connection. Connection state changes
// are reported to the logger; pq reconnects on its own within the configured
// backoff window.
func NewListener(cfg config.DatabaseConfig, logger *zap.Logger) *pq.Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	minReconnect := cfg.ListenerMinReconnect
	if minReconnect <= 0 {
		minReconnect = 10 * time.Second
	}
	maxReconnect := cfg.ListenerMaxReconnect
	if maxReconnect < minReconnect {
		maxReconnect = minReconnect
	}

	return pq.NewListener(cfg.DSN(), minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("postgres listener connected")
		case pq.ListenerEventDisconnected:
			logger.Warn("postgres listener disconnected", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("postgres listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("postgres listener connection attempt failed", zap.Error(err))
		}
	})
}
