package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
)

type memoryCollection struct {
	order []string
	docs  map[string]Fields
}

// MemoryDocumentRepository is an in-process collection store. Each
// subscriber has its own ordered mailbox so a slow subscriber never blocks
// writers and always sees snapshots in emission order.
type MemoryDocumentRepository struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
	subscribers map[string]map[int]*memorySubscriber
	nextSub     int
	newID       func() string
}

// NewMemoryDocumentRepository constructs an empty store.
func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{
		collections: make(map[string]*memoryCollection),
		subscribers: make(map[string]map[int]*memorySubscriber),
		newID:       uuid.NewString,
	}
}

// Subscribe delivers the current contents immediately and again after every change.
func (r *MemoryDocumentRepository) Subscribe(collection string, onSnapshot SnapshotFunc, _ ErrorFunc) (Subscription, error) {
	sub := newMemorySubscriber(onSnapshot)

	r.mu.Lock()
	r.nextSub++
	id := r.nextSub
	if r.subscribers[collection] == nil {
		r.subscribers[collection] = make(map[int]*memorySubscriber)
	}
	r.subscribers[collection][id] = sub
	sub.push(r.snapshotLocked(collection))
	r.mu.Unlock()

	go sub.run()

	return subscriptionFunc(func() {
		r.mu.Lock()
		delete(r.subscribers[collection], id)
		r.mu.Unlock()
		sub.stop()
	}), nil
}

// Insert stores a new document under a generated id.
func (r *MemoryDocumentRepository) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stored, err := normalizeFields(withoutID(fields))
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	col := r.collectionLocked(collection)
	id := r.newID()
	col.order = append(col.order, id)
	col.docs[id] = stored
	r.publishLocked(collection)
	return id, nil
}

// Update merges fields into an existing document.
func (r *MemoryDocumentRepository) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch, err := normalizeFields(withoutID(fields))
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	col := r.collectionLocked(collection)
	doc, ok := col.docs[id]
	if !ok {
		return appErrors.Clone(appErrors.ErrDocumentNotFound, "document "+collection+"/"+id+" not found")
	}
	for k, v := range patch {
		doc[k] = v
	}
	r.publishLocked(collection)
	return nil
}

// Delete removes a document. Deleting a missing document is a no-op.
func (r *MemoryDocumentRepository) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	col := r.collectionLocked(collection)
	if _, ok := col.docs[id]; !ok {
		return nil
	}
	delete(col.docs, id)
	for i, existing := range col.order {
		if existing == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	r.publishLocked(collection)
	return nil
}

func (r *MemoryDocumentRepository) collectionLocked(name string) *memoryCollection {
	col, ok := r.collections[name]
	if !ok {
		col = &memoryCollection{docs: make(map[string]Fields)}
		r.collections[name] = col
	}
	return col
}

func (r *MemoryDocumentRepository) snapshotLocked(collection string) []Document {
	col := r.collectionLocked(collection)
	docs := make([]Document, 0, len(col.order))
	for _, id := range col.order {
		docs = append(docs, Document{ID: id, Fields: cloneFields(col.docs[id])})
	}
	return docs
}

func (r *MemoryDocumentRepository) publishLocked(collection string) {
	for _, sub := range r.subscribers[collection] {
		sub.push(r.snapshotLocked(collection))
	}
}

type memorySubscriber struct {
	onSnapshot SnapshotFunc

	mu      sync.Mutex
	pending [][]Document
	signal  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newMemorySubscriber(onSnapshot SnapshotFunc) *memorySubscriber {
	return &memorySubscriber{
		onSnapshot: onSnapshot,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

func (s *memorySubscriber) push(docs []Document) {
	s.mu.Lock()
	s.pending = append(s.pending, docs)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *memorySubscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.onSnapshot(next)
		}
	}
}

func (s *memorySubscriber) stop() {
	s.once.Do(func() { close(s.done) })
}
