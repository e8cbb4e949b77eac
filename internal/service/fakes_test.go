package service

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/dicampus-admin/internal/repository"
	"github.com/noah-isme/dicampus-admin/pkg/busy"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
)

type writeCall struct {
	collection string
	id         string
	fields     repository.Fields
}

// fakeStore delivers snapshots synchronously when the test calls emit.
type fakeStore struct {
	mu           sync.Mutex
	onSnapshot   repository.SnapshotFunc
	onError      repository.ErrorFunc
	subscribeErr error
	cancelled    bool

	nextID    string
	insertErr error
	updateErr error
	deleteErr error
	inserts   []writeCall
	updates   []writeCall
	deletes   []writeCall
}

func (f *fakeStore) Subscribe(collection string, onSnapshot repository.SnapshotFunc, onError repository.ErrorFunc) (repository.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.onSnapshot = onSnapshot
	f.onError = onError
	return cancelFunc(func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}), nil
}

func (f *fakeStore) Insert(_ context.Context, collection string, fields repository.Fields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, writeCall{collection: collection, fields: fields})
	if f.insertErr != nil {
		return "", f.insertErr
	}
	if f.nextID == "" {
		return "generated", nil
	}
	return f.nextID, nil
}

func (f *fakeStore) Update(_ context.Context, collection, id string, fields repository.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, writeCall{collection: collection, id: id, fields: fields})
	return f.updateErr
}

func (f *fakeStore) Delete(_ context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, writeCall{collection: collection, id: id})
	return f.deleteErr
}

func (f *fakeStore) emit(docs ...repository.Document) {
	f.mu.Lock()
	fn := f.onSnapshot
	f.mu.Unlock()
	fn(docs)
}

func (f *fakeStore) failStream(err error) {
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()
	fn(err)
}

func (f *fakeStore) isCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

type cancelFunc func()

func (c cancelFunc) Cancel() { c() }

type sentNotification struct {
	message  string
	severity notify.Severity
}

type recordingSink struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingSink) Notify(message string, severity notify.Severity, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{message: message, severity: severity})
}

func (r *recordingSink) last() sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return sentNotification{}
	}
	return r.sent[len(r.sent)-1]
}

type testRecord struct {
	ID   string
	Name string
}

func (r testRecord) RecordID() string { return r.ID }

func decodeTestRecord(doc repository.Document) testRecord {
	return testRecord{ID: doc.ID, Name: fieldString(doc.Fields, "name")}
}

func doc(id, name string) repository.Document {
	return repository.Document{ID: id, Fields: repository.Fields{"name": name}}
}

var fixedNow = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

type harness struct {
	store   *fakeStore
	counter *busy.Counter
	sink    *recordingSink
	deps    SyncDeps
}

func newHarness() *harness {
	h := &harness{store: &fakeStore{}, counter: busy.NewCounter(), sink: &recordingSink{}}
	h.deps = SyncDeps{
		Store:    h.store,
		Busy:     h.counter,
		Notifier: h.sink,
		Clock:    func() time.Time { return fixedNow },
	}
	return h
}

var testMessages = SyncMessages{
	LoadFailed:   "could not load things",
	Created:      "created",
	CreateFailed: "create failed",
	Updated:      "updated",
	UpdateFailed: "update failed",
	Deleted:      "deleted",
	DeleteFailed: "delete failed",
}

func (h *harness) newSync() *CollectionSync[testRecord] {
	return NewCollectionSync("things", decodeTestRecord, testMessages, h.deps)
}
