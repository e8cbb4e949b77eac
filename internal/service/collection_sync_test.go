package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dicampus-admin/internal/repository"
	appErrors "github.com/noah-isme/dicampus-admin/pkg/errors"
	"github.com/noah-isme/dicampus-admin/pkg/notify"
)

func TestCollectionSyncBusyUntilFirstSnapshotOnly(t *testing.T) {
	h := newHarness()
	s := h.newSync()

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, h.counter.IsBusy())
	assert.Equal(t, SyncLoading, s.Status())

	h.store.emit(doc("a", "first"))
	assert.False(t, h.counter.IsBusy())
	assert.Equal(t, SyncReady, s.Status())
	assert.True(t, s.Loaded())

	// a later snapshot must not settle someone else's operation
	h.counter.Show()
	h.store.emit(doc("a", "second"))
	assert.True(t, h.counter.IsBusy())
	assert.Equal(t, 1, h.counter.Count())
}

func TestCollectionSyncMirrorReplacedWholesale(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))

	h.store.emit(doc("a", "A"), doc("b", "B"))
	assert.Equal(t, []testRecord{{"a", "A"}, {"b", "B"}}, s.Records())

	h.store.emit(doc("b", "B2"), doc("c", "C"))
	assert.Equal(t, []testRecord{{"b", "B2"}, {"c", "C"}}, s.Records())
	_, ok := s.Find("a")
	assert.False(t, ok)

	h.store.emit()
	assert.Empty(t, s.Records())
}

func TestCollectionSyncDuplicateIDsKeepLast(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))

	h.store.emit(doc("a", "old"), doc("b", "B"), doc("a", "new"))
	assert.Equal(t, []testRecord{{"a", "new"}, {"b", "B"}}, s.Records())
}

func TestCollectionSyncClearsSelectionWhenRecordDisappears(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))

	h.store.emit(doc("a", "A"), doc("b", "B"))
	s.Select(&testRecord{ID: "b", Name: "B"})

	h.store.emit(doc("a", "A"))
	_, ok := s.Selected()
	assert.False(t, ok)
}

func TestCollectionSyncRefreshesSelectionWhenRecordRemains(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))

	h.store.emit(doc("a", "A"))
	s.Select(&testRecord{ID: "a", Name: "A"})

	h.store.emit(doc("a", "renamed"), doc("z", "Z"))
	selected, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "renamed", selected.Name)
}

func TestCollectionSyncSelectionReconciliationProperty(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))

	snapshots := [][]repository.Document{
		{doc("a", "1"), doc("b", "1")},
		{doc("b", "2")},
		{doc("a", "3"), doc("c", "3")},
		{},
		{doc("c", "5")},
	}
	for _, prior := range []string{"a", "b", "c"} {
		for _, snap := range snapshots {
			s.Select(&testRecord{ID: prior})
			h.store.emit(snap...)

			present := false
			for _, d := range snap {
				present = present || d.ID == prior
			}
			selected, ok := s.Selected()
			assert.Equal(t, present, ok)
			if ok {
				assert.Equal(t, prior, selected.ID)
				live, _ := s.Find(prior)
				assert.Equal(t, live, selected)
			}
		}
	}
}

func TestCollectionSyncSelectIsPureAssignment(t *testing.T) {
	h := newHarness()
	s := h.newSync()

	s.Select(&testRecord{ID: "not-mirrored"})
	selected, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "not-mirrored", selected.ID)

	s.Select(nil)
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestCollectionSyncStreamFailure(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))

	h.store.failStream(errors.New("permission denied"))
	assert.False(t, h.counter.IsBusy())
	assert.Equal(t, SyncFailed, s.Status())
	assert.EqualError(t, s.Err(), "permission denied")
	assert.Equal(t, sentNotification{"could not load things", notify.SeverityError}, h.sink.last())

	h.store.emit(doc("a", "late"))
	assert.Empty(t, s.Records())
}

func TestCollectionSyncFailureAfterLoadKeepsMirror(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))
	h.store.emit(doc("a", "A"))

	h.counter.Show()
	h.store.failStream(errors.New("stream reset"))
	assert.Equal(t, 1, h.counter.Count())
	assert.Len(t, s.Records(), 1)
}

func TestCollectionSyncSubscribeError(t *testing.T) {
	h := newHarness()
	h.store.subscribeErr = errors.New("unreachable")
	s := h.newSync()

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrSubscription))
	assert.False(t, h.counter.IsBusy())
	assert.Equal(t, SyncFailed, s.Status())
}

func TestCollectionSyncStartTwice(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))

	err := s.Start(context.Background())
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestCollectionSyncStopCancelsSubscription(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	assert.True(t, h.store.isCancelled())
	assert.False(t, h.counter.IsBusy())
	assert.Equal(t, SyncStopped, s.Status())

	h.store.emit(doc("a", "A"))
	assert.Empty(t, s.Records())
	s.Stop()
}

func TestCollectionSyncContextCancellationStops(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	cancel()
	assert.Eventually(t, h.store.isCancelled, time.Second, 10*time.Millisecond)
	assert.Equal(t, SyncStopped, s.Status())
}

func TestCollectionSyncListen(t *testing.T) {
	h := newHarness()
	s := h.newSync()
	var seen []Snapshot[testRecord]
	unsubscribe := s.Listen(func(snap Snapshot[testRecord]) { seen = append(seen, snap) })
	require.NoError(t, s.Start(context.Background()))

	h.store.emit(doc("a", "A"))
	unsubscribe()
	h.store.emit(doc("b", "B"))

	require.Len(t, seen, 1)
	assert.Equal(t, "things", seen[0].Collection)
	assert.Equal(t, SyncReady, seen[0].Status)
	assert.Equal(t, []testRecord{{"a", "A"}}, seen[0].Records)
}

func TestCollectionSyncCreateStampsTimestamps(t *testing.T) {
	h := newHarness()
	h.store.nextID = "new-id"
	s := h.newSync()

	id, err := s.Create(context.Background(), repository.Fields{
		"name":      "x",
		"id":        "client-id",
		"createdAt": "1999-01-01",
		"updatedAt": "1999-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)

	require.Len(t, h.store.inserts, 1)
	sent := h.store.inserts[0].fields
	assert.Equal(t, repository.Fields{"name": "x", "createdAt": fixedNow, "updatedAt": fixedNow}, sent)
	assert.False(t, h.counter.IsBusy())
	assert.Equal(t, sentNotification{"created", notify.SeveritySuccess}, h.sink.last())
	assert.Empty(t, s.Records(), "mirror is only updated by snapshots")
}

func TestCollectionSyncUpdateStampsUpdatedAtOnly(t *testing.T) {
	h := newHarness()
	s := h.newSync()

	require.NoError(t, s.Update(context.Background(), "a", repository.Fields{"name": "y", "createdAt": fixedNow, "id": "a"}))
	require.Len(t, h.store.updates, 1)
	assert.Equal(t, "a", h.store.updates[0].id)
	assert.Equal(t, repository.Fields{"name": "y", "updatedAt": fixedNow}, h.store.updates[0].fields)
	assert.Equal(t, sentNotification{"updated", notify.SeveritySuccess}, h.sink.last())
}

func TestCollectionSyncWriteFailures(t *testing.T) {
	cases := []struct {
		name    string
		arrange func(*fakeStore)
		act     func(*CollectionSync[testRecord]) error
		message string
	}{
		{
			name:    "create",
			arrange: func(f *fakeStore) { f.insertErr = errors.New("quota exceeded") },
			act: func(s *CollectionSync[testRecord]) error {
				_, err := s.Create(context.Background(), repository.Fields{"name": "x"})
				return err
			},
			message: "create failed",
		},
		{
			name:    "update",
			arrange: func(f *fakeStore) { f.updateErr = appErrors.ErrDocumentNotFound },
			act: func(s *CollectionSync[testRecord]) error {
				return s.Update(context.Background(), "missing", repository.Fields{"name": "x"})
			},
			message: "update failed",
		},
		{
			name:    "delete",
			arrange: func(f *fakeStore) { f.deleteErr = errors.New("network down") },
			act: func(s *CollectionSync[testRecord]) error {
				return s.Delete(context.Background(), "a")
			},
			message: "delete failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			tc.arrange(h.store)
			s := h.newSync()

			err := tc.act(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrRemoteOperation))
			assert.False(t, h.counter.IsBusy())
			assert.Equal(t, sentNotification{tc.message, notify.SeverityError}, h.sink.last())
		})
	}
}

func TestCollectionSyncRejectsEmptyID(t *testing.T) {
	h := newHarness()
	s := h.newSync()

	assert.True(t, errors.Is(s.Update(context.Background(), "", repository.Fields{}), appErrors.ErrValidation))
	assert.True(t, errors.Is(s.Delete(context.Background(), ""), appErrors.ErrValidation))
	assert.Empty(t, h.store.updates)
	assert.Empty(t, h.store.deletes)
}

func TestCollectionSyncDelete(t *testing.T) {
	h := newHarness()
	s := h.newSync()

	require.NoError(t, s.Delete(context.Background(), "a"))
	require.Len(t, h.store.deletes, 1)
	assert.Equal(t, "things", h.store.deletes[0].collection)
	assert.Equal(t, sentNotification{"deleted", notify.SeveritySuccess}, h.sink.last())
}
