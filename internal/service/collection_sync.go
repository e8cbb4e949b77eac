package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dicampus-admin/internal/models"
	"github.com/noah-isme/dicampus-admin/internal/repository"
	"github.com/noah-isme/dicampus-admin/pkg/busy"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/logger"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
)

type collectionStore interface {
	Subscribe(collection string, onSnapshot repository.SnapshotFunc, onError repository.ErrorFunc) (repository.Subscription, error)
	Insert(ctx context.Context, collection string, fields repository.Fields) (string, error)
	Update(ctx context.Context, collection, id string, fields repository.Fields) error
	Delete(ctx context.Context, collection, id string) error
}

type busyIndicator interface {
	Acquire() (release func())
}

type syncRecorder interface {
	ObserveSnapshot(collection string, records int)
	ObserveSubscriptionError(collection string)
	ObserveRemoteWrite(collection, operation string, err error, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSnapshot(string, int) {}

func (nopRecorder) ObserveSubscriptionError(string) {}

func (nopRecorder) ObserveRemoteWrite(string, string, error, time.Duration) {}

// SyncStatus describes where a collection sync is in its lifecycle.
type SyncStatus string

// Sync lifecycle states.
const (
	SyncIdle    SyncStatus = "idle"
	SyncLoading SyncStatus = "loading"
	SyncReady   SyncStatus = "ready"
	SyncFailed  SyncStatus = "failed"
	SyncStopped SyncStatus = "stopped"
)

// Write operations reported to the recorder.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// SyncMessages are the user-facing texts sent to the notification sink.
type SyncMessages struct {
	LoadFailed   string
	Created      string
	CreateFailed string
	Updated      string
	UpdateFailed string
	Deleted      string
	DeleteFailed string
}

// Snapshot is what listeners observe after each applied store snapshot.
type Snapshot[T models.Record] struct {
	Collection string     `json:"collection"`
	Status     SyncStatus `json:"status"`
	Records    []T        `json:"records"`
}

// SyncDeps are the collaborators shared by every collection sync.
type SyncDeps struct {
	Store    collectionStore
	Busy     busyIndicator
	Notifier notify.Sink
	Metrics  syncRecorder
	Logger   *zap.Logger
	Clock    func() time.Time
}

// CollectionSync mirrors one store collection locally and tracks the
// operator's selected record. The mirror is replaced wholesale on every
// snapshot and never holds two records with the same id.
type CollectionSync[T models.Record] struct {
	collection string
	decode     func(repository.Document) T
	messages   SyncMessages

	store    collectionStore
	busy     busyIndicator
	notifier notify.Sink
	metrics  syncRecorder
	logger   *zap.Logger
	clock    func() time.Time

	mu           sync.RWMutex
	status       SyncStatus
	loaded       bool
	lastErr      error
	records      []T
	index        map[string]int
	selected     *T
	release      func()
	sub          repository.Subscription
	stopWatch    func() bool
	listeners    map[int]func(Snapshot[T])
	nextListener int
}

// NewCollectionSync wires a sync for collection using decode to turn store
// documents into records.
func NewCollectionSync[T models.Record](collection string, decode func(repository.Document) T, messages SyncMessages, deps SyncDeps) *CollectionSync[T] {
	if deps.Busy == nil {
		deps.Busy = busy.NewCounter()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &CollectionSync[T]{
		collection: collection,
		decode:     decode,
		messages:   messages,
		store:      deps.Store,
		busy:       deps.Busy,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger.ForCollection(deps.Logger, collection),
		clock:      deps.Clock,
		status:     SyncIdle,
		index:      make(map[string]int),
		listeners:  make(map[int]func(Snapshot[T])),
	}
}

// Collection returns the store collection name.
func (s *CollectionSync[T]) Collection() string { return s.collection }

// Start subscribes to the collection. The busy indicator stays raised until
// the first snapshot arrives or the subscription fails. Cancelling ctx stops
// the sync.
func (s *CollectionSync[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != SyncIdle {
		status := s.status
		s.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, "sync for "+s.collection+" already "+string(status))
	}
	s.status = SyncLoading
	s.release = s.busy.Acquire()
	s.mu.Unlock()

	sub, err := s.store.Subscribe(s.collection, s.applySnapshot, s.fail)
	if err != nil {
		s.fail(err)
		return appErrors.Wrap(err, appErrors.ErrSubscription.Code, appErrors.ErrSubscription.Status, "could not subscribe to "+s.collection)
	}

	s.mu.Lock()
	if s.status == SyncStopped {
		s.mu.Unlock()
		sub.Cancel()
		return nil
	}
	s.sub = sub
	s.stopWatch = context.AfterFunc(ctx, s.Stop)
	s.mu.Unlock()

	s.logger.Info("collection sync started")
	return nil
}

// Stop cancels the subscription. Snapshots delivered afterwards are ignored.
func (s *CollectionSync[T]) Stop() {
	s.mu.Lock()
	if s.status == SyncStopped {
		s.mu.Unlock()
		return
	}
	s.status = SyncStopped
	sub, release, stopWatch := s.sub, s.release, s.stopWatch
	s.sub, s.release, s.stopWatch = nil, nil, nil
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if release != nil {
		release()
	}
	if stopWatch != nil {
		stopWatch()
	}
	s.logger.Info("collection sync stopped")
}

func (s *CollectionSync[T]) applySnapshot(docs []repository.Document) {
	records := make([]T, 0, len(docs))
	index := make(map[string]int, len(docs))
	for _, doc := range docs {
		rec := s.decode(doc)
		id := rec.RecordID()
		if pos, dup := index[id]; dup {
			s.logger.Warn("duplicate document id in snapshot", zap.String("id", id))
			records[pos] = rec
			continue
		}
		index[id] = len(records)
		records = append(records, rec)
	}

	s.mu.Lock()
	if s.status == SyncStopped || s.status == SyncFailed {
		s.mu.Unlock()
		return
	}
	s.records = records
	s.index = index
	if s.selected != nil {
		if pos, ok := index[(*s.selected).RecordID()]; ok {
			fresh := records[pos]
			s.selected = &fresh
		} else {
			s.selected = nil
		}
	}
	first := !s.loaded
	if first {
		s.loaded = true
		s.status = SyncReady
		if s.release != nil {
			s.release()
			s.release = nil
		}
	}
	snap := Snapshot[T]{Collection: s.collection, Status: s.status, Records: append([]T(nil), records...)}
	listeners := make([]func(Snapshot[T]), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	s.metrics.ObserveSnapshot(s.collection, len(records))
	if first {
		s.logger.Info("collection loaded", zap.Int("records", len(records)))
	} else {
		s.logger.Debug("collection refreshed", zap.Int("records", len(records)))
	}
	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *CollectionSync[T]) fail(err error) {
	s.mu.Lock()
	if s.status == SyncStopped || s.status == SyncFailed {
		s.mu.Unlock()
		return
	}
	s.status = SyncFailed
	s.lastErr = err
	release := s.release
	s.release = nil
	s.mu.Unlock()

	if release != nil {
		release()
	}
	s.metrics.ObserveSubscriptionError(s.collection)
	s.logger.Error("collection sync failed", zap.Error(err))
	s.notifier.Notify(s.messages.LoadFailed, notify.SeverityError, 0)
}

// Records returns a copy of the mirror in delivery order.
func (s *CollectionSync[T]) Records() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]T(nil), s.records...)
}

// Find looks a record up in the mirror.
func (s *CollectionSync[T]) Find(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos, ok := s.index[id]; ok {
		return s.records[pos], true
	}
	var zero T
	return zero, false
}

// Selected returns the selected record, if any.
func (s *CollectionSync[T]) Selected() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		var zero T
		return zero, false
	}
	return *s.selected, true
}

// Select sets the selection pointer; nil clears it.
func (s *CollectionSync[T]) Select(rec *T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec == nil {
		s.selected = nil
		return
	}
	cp := *rec
	s.selected = &cp
}

// Status reports the lifecycle state.
func (s *CollectionSync[T]) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Loaded reports whether at least one snapshot has been applied.
func (s *CollectionSync[T]) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Err returns the subscription error once the sync has failed.
func (s *CollectionSync[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Listen registers fn to observe every applied snapshot. Listeners run on
// the delivering goroutine and must not block.
func (s *CollectionSync[T]) Listen(fn func(Snapshot[T])) (unsubscribe func()) {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Create inserts a new document stamped with one creation instant.
// The mirror is only updated by the following snapshot. Once issued, a
// write runs to completion even if ctx is cancelled; only its values are kept.
func (s *CollectionSync[T]) Create(ctx context.Context, fields repository.Fields) (string, error) {
	ctx = context.WithoutCancel(ctx)
	release := s.busy.Acquire()
	defer release()

	now := s.clock().UTC()
	payload := stripped(fields, repository.FieldID, repository.FieldCreatedAt, repository.FieldUpdatedAt)
	payload[repository.FieldCreatedAt] = now
	payload[repository.FieldUpdatedAt] = now

	started := time.Now()
	id, err := s.store.Insert(ctx, s.collection, payload)
	s.metrics.ObserveRemoteWrite(s.collection, OperationCreate, err, time.Since(started))
	if err != nil {
		return "", s.writeFailed(OperationCreate, "", err, s.messages.CreateFailed)
	}
	s.logger.Info("document created", zap.String("id", id))
	s.notifier.Notify(s.messages.Created, notify.SeveritySuccess, 0)
	return id, nil
}

// Update merges fields into the document and refreshes updatedAt. Absent
// keys are left untouched in the store.
func (s *CollectionSync[T]) Update(ctx context.Context, id string, fields repository.Fields) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "id is required")
	}
	ctx = context.WithoutCancel(ctx)
	release := s.busy.Acquire()
	defer release()

	payload := stripped(fields, repository.FieldID, repository.FieldCreatedAt)
	payload[repository.FieldUpdatedAt] = s.clock().UTC()

	started := time.Now()
	err := s.store.Update(ctx, s.collection, id, payload)
	s.metrics.ObserveRemoteWrite(s.collection, OperationUpdate, err, time.Since(started))
	if err != nil {
		return s.writeFailed(OperationUpdate, id, err, s.messages.UpdateFailed)
	}
	s.logger.Info("document updated", zap.String("id", id))
	s.notifier.Notify(s.messages.Updated, notify.SeveritySuccess, 0)
	return nil
}

// Delete removes the document.
func (s *CollectionSync[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return appErrors.Clone(appErrors.ErrValidation, "id is required")
	}
	ctx = context.WithoutCancel(ctx)
	release := s.busy.Acquire()
	defer release()

	started := time.Now()
	err := s.store.Delete(ctx, s.collection, id)
	s.metrics.ObserveRemoteWrite(s.collection, OperationDelete, err, time.Since(started))
	if err != nil {
		return s.writeFailed(OperationDelete, id, err, s.messages.DeleteFailed)
	}
	s.logger.Info("document deleted", zap.String("id", id))
	s.notifier.Notify(s.messages.Deleted, notify.SeveritySuccess, 0)
	return nil
}

func (s *CollectionSync[T]) writeFailed(operation, id string, err error, message string) error {
	s.logger.Error("remote write failed", zap.String("operation", operation), zap.String("id", id), zap.Error(err))
	s.notifier.Notify(message, notify.SeverityError, 0)
	return appErrors.Wrap(err, appErrors.ErrRemoteOperation.Code, appErrors.ErrRemoteOperation.Status, message)
}

func stripped(fields repository.Fields, keys ...string) repository.Fields {
	out := make(repository.Fields, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
