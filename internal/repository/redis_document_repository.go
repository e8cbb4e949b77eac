package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/dicampus-admin/pkg/cache"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
)

const maxWatchRetries = 5

var errNoRedisClient = errors.New("redis client not configured")

// RedisDocumentRepository keeps each collection in a hash (id -> JSON) and
// announces changes on a per-collection pub/sub channel.
type RedisDocumentRepository struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
	newID  func() string
}

// NewRedisDocumentRepository constructs the repository.
func NewRedisDocumentRepository(client *redis.Client, prefix string, logger *zap.Logger) *RedisDocumentRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisDocumentRepository{client: client, prefix: prefix, logger: logger, newID: uuid.NewString}
}

func (r *RedisDocumentRepository) hashKey(collection string) string {
	return cache.Key(r.prefix, collection)
}

func (r *RedisDocumentRepository) changesChannel(collection string) string {
	return cache.Key(r.prefix, collection, "changes")
}

// Snapshot returns the current contents of a collection ordered by createdAt.
func (r *RedisDocumentRepository) Snapshot(ctx context.Context, collection string) ([]Document, error) {
	if r.client == nil {
		return nil, errNoRedisClient
	}
	entries, err := r.client.HGetAll(ctx, r.hashKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", collection, err)
	}
	return r.decodeHash(collection, entries), nil
}

func (r *RedisDocumentRepository) decodeHash(collection string, entries map[string]string) []Document {
	docs := make([]Document, 0, len(entries))
	for id, raw := range entries {
		fields, err := decodeFields([]byte(raw))
		if err != nil {
			r.logger.Warn("skipping undecodable document", zap.String("collection", collection), zap.String("id", id), zap.Error(err))
			continue
		}
		docs = append(docs, Document{ID: id, Fields: fields})
	}
	sortByCreation(docs)
	return docs
}

// Insert stores a new document under a generated id.
func (r *RedisDocumentRepository) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	if r.client == nil {
		return "", errNoRedisClient
	}
	payload, err := encodeFields(withoutID(fields))
	if err != nil {
		return "", err
	}
	id := r.newID()
	if err := r.client.HSet(ctx, r.hashKey(collection), id, payload).Err(); err != nil {
		return "", fmt.Errorf("redis hset %s/%s: %w", collection, id, err)
	}
	r.publish(ctx, collection)
	return id, nil
}

// Update merges fields into an existing document under WATCH.
func (r *RedisDocumentRepository) Update(ctx context.Context, collection, id string, fields Fields) error {
	if r.client == nil {
		return errNoRedisClient
	}
	patch := withoutID(fields)
	key := r.hashKey(collection)

	merge := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Bytes()
		if errors.Is(err, redis.Nil) {
			return appErrors.Clone(appErrors.ErrDocumentNotFound, "document "+collection+"/"+id+" not found")
		}
		if err != nil {
			return err
		}
		current, err := decodeFields(raw)
		if err != nil {
			return err
		}
		for k, v := range patch {
			current[k] = v
		}
		payload, err := encodeFields(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, payload)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := r.client.Watch(ctx, merge, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return appErr
			}
			return fmt.Errorf("redis update %s/%s: %w", collection, id, err)
		}
		r.publish(ctx, collection)
		return nil
	}
	return fmt.Errorf("redis update %s/%s: %w", collection, id, redis.TxFailedErr)
}

// Delete removes a document. Deleting a missing document is a no-op.
func (r *RedisDocumentRepository) Delete(ctx context.Context, collection, id string) error {
	if r.client == nil {
		return errNoRedisClient
	}
	removed, err := r.client.HDel(ctx, r.hashKey(collection), id).Result()
	if err != nil {
		return fmt.Errorf("redis hdel %s/%s: %w", collection, id, err)
	}
	if removed > 0 {
		r.publish(ctx, collection)
	}
	return nil
}

func (r *RedisDocumentRepository) publish(ctx context.Context, collection string) {
	if err := r.client.Publish(ctx, r.changesChannel(collection), collection).Err(); err != nil {
		r.logger.Warn("publish collection change failed", zap.String("collection", collection), zap.Error(err))
	}
}

// Subscribe confirms the pub/sub subscription before loading the first
// snapshot, then reloads the hash on every change message. A failed load is
// reported to onError and ends the subscription.
func (r *RedisDocumentRepository) Subscribe(collection string, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error) {
	if r.client == nil {
		return nil, errNoRedisClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, r.changesChannel(collection))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", collection, err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
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
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					if ctx.Err() == nil {
						onError(fmt.Errorf("change feed for %s closed", collection))
					}
					return
				}
				if !load() {
					return
				}
			}
		}
	}()

	return subscriptionFunc(stop), nil
}
