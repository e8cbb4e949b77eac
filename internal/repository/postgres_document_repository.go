package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
)

// DocumentsChannel is the NOTIFY channel announcing changed collections.
const DocumentsChannel = "dicampus_documents"

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_created_idx ON documents (collection, created_at);
CREATE OR REPLACE FUNCTION notify_document_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('dicampus_documents', COALESCE(NEW.collection, OLD.collection));
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS documents_notify ON documents;
CREATE TRIGGER documents_notify AFTER INSERT OR UPDATE OR DELETE ON documents
	FOR EACH ROW EXECUTE FUNCTION notify_document_change();
`

// Listener is the subset of *pq.Listener used for change feeds.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// ListenerFactory opens a dedicated LISTEN connection.
type ListenerFactory func() (Listener, error)

// PostgresDocumentRepository stores collections in a single jsonb table and
// pushes changes through LISTEN/NOTIFY.
type PostgresDocumentRepository struct {
	db        *sqlx.DB
	listeners ListenerFactory
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewPostgresDocumentRepository constructs the repository.
func NewPostgresDocumentRepository(db *sqlx.DB, listeners ListenerFactory, logger *zap.Logger) *PostgresDocumentRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresDocumentRepository{
		db:        db,
		listeners: listeners,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// EnsureSchema creates the documents table and its change trigger.
func (r *PostgresDocumentRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, documentsSchema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

type documentRow struct {
	ID   string `db:"id"`
	Data []byte `db:"data"`
}

// Snapshot returns the current contents of a collection in creation order.
func (r *PostgresDocumentRepository) Snapshot(ctx context.Context, collection string) ([]Document, error) {
	const query = `SELECT id, data FROM documents WHERE collection = $1 ORDER BY created_at, id`
	var rows []documentRow
	if err := r.db.SelectContext(ctx, &rows, query, collection); err != nil {
		return nil, fmt.Errorf("load collection %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		fields, err := decodeFields(row.Data)
		if err != nil {
			r.logger.Warn("skipping undecodable document", zap.String("collection", collection), zap.String("id", row.ID), zap.Error(err))
			continue
		}
		docs = append(docs, Document{ID: row.ID, Fields: fields})
	}
	return docs, nil
}

// Insert stores a new document under a generated id.
func (r *PostgresDocumentRepository) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	payload, err := encodeFields(withoutID(fields))
	if err != nil {
		return "", err
	}
	id := r.newID()
	now := r.now().UTC()
	const query = `INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`
	if _, err := r.db.ExecContext(ctx, query, collection, id, payload, now); err != nil {
		return "", fmt.Errorf("insert document into %s: %w", collection, err)
	}
	return id, nil
}

// Update merges fields into an existing document.
func (r *PostgresDocumentRepository) Update(ctx context.Context, collection, id string, fields Fields) error {
	payload, err := encodeFields(withoutID(fields))
	if err != nil {
		return err
	}
	const query = `UPDATE documents SET data = data || $3::jsonb, updated_at = $4 WHERE collection = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, query, collection, id, payload, r.now().UTC())
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}
	if affected == 0 {
		return appErrors.Clone(appErrors.ErrDocumentNotFound, "document "+collection+"/"+id+" not found")
	}
	return nil
}

// Delete removes a document. Deleting a missing document is a no-op.
func (r *PostgresDocumentRepository) Delete(ctx context.Context, collection, id string) error {
	const query = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, collection, id); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// Subscribe listens for changes before loading the first snapshot so no
// write between the two is missed. Every notification for the collection,
// and every listener reconnect, triggers a fresh snapshot. A failed load is
// reported to onError and ends the subscription.
func (r *PostgresDocumentRepository) Subscribe(collection string, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error) {
	if r.listeners == nil {
		return nil, fmt.Errorf("subscribe %s: no listener configured", collection)
	}
	listener, err := r.listeners()
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}
	if err := listener.Listen(DocumentsChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = listener.Close()
		})
	}

	go func() {
		defer stop()

		load := func() bool {
			docs, err := r.Snapshot(ctx, collection)
			if ctx.Err() != nil {
				return false
			}
			if err != nil {
				onError(err)
				return false
			}
			onSnapshot(docs)
			return true
		}

		if !load() {
			return
		}
		notifications := listener.NotificationChannel()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notifications:
				if !ok {
					if ctx.Err() == nil {
						onError(fmt.Errorf("listener for %s closed", collection))
					}
					return
				}
				// nil follows a reconnect; changes may have been missed.
				if n != nil && n.Extra != collection {
					continue
				}
				if !load() {
					return
				}
			}
		}
	}()

	return subscriptionFunc(stop), nil
}
