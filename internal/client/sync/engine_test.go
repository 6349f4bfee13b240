package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync/fieldsync/internal/client/storage"
)

func setupTestStore(t *testing.T) storage.Store {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

type remoteCall struct {
	op   storage.Operation
	id   string
	data []byte
}

// fakeRemote records applied operations and can be programmed to fail
// or report divergence at a given call index.
type fakeRemote struct {
	calls      []remoteCall
	nextID     int
	failAt     int
	failErr    error
	conflictAt int
	serverData []byte
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{failAt: -1, conflictAt: -1}
}

func (f *fakeRemote) step() error {
	index := len(f.calls) - 1
	if index == f.failAt {
		if f.failErr != nil {
			return f.failErr
		}
		return errors.New("remote unavailable")
	}
	if index == f.conflictAt {
		return &ConflictError{ServerData: f.serverData}
	}
	return nil
}

func (f *fakeRemote) CreateInterview(ctx context.Context, protocolID string, data []byte) (string, error) {
	f.calls = append(f.calls, remoteCall{op: storage.OpCreate, id: protocolID, data: data})
	if err := f.step(); err != nil {
		return "", err
	}
	f.nextID++
	return fmt.Sprintf("srv-%d", f.nextID), nil
}

func (f *fakeRemote) UpdateInterview(ctx context.Context, id string, data []byte) error {
	f.calls = append(f.calls, remoteCall{op: storage.OpUpdate, id: id, data: data})
	return f.step()
}

func (f *fakeRemote) DeleteInterview(ctx context.Context, id string) error {
	f.calls = append(f.calls, remoteCall{op: storage.OpDelete, id: id})
	return f.step()
}

func seedOfflineCreate(t *testing.T, st storage.Store, tempID, protocolID string, data []byte) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, st.CreateInterview(ctx, &storage.Interview{
		ID:             tempID,
		ProtocolID:     protocolID,
		OfflineCreated: true,
		Data:           data,
	}))
	require.NoError(t, EnqueueCreate(ctx, st, tempID, protocolID, data))
}

func TestRunSyncsOfflineCreatedInterview(t *testing.T) {
	st := setupTestStore(t)
	remote := newFakeRemote()
	engine := NewEngine(st, remote, nil)
	ctx := context.Background()

	seedOfflineCreate(t, st, "offline-abc", "proto-1", []byte(`{"stage":1}`))
	require.NoError(t, EnqueueUpdate(ctx, st, "offline-abc", []byte(`{"stage":2}`)))

	result, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 2, result.Applied)
	assert.Zero(t, result.Conflicts)

	// Create went out first, then the update against the permanent id.
	require.Len(t, remote.calls, 2)
	assert.Equal(t, storage.OpCreate, remote.calls[0].op)
	assert.Equal(t, storage.OpUpdate, remote.calls[1].op)
	assert.Equal(t, "srv-1", remote.calls[1].id)

	// The temporary id is fully remapped locally.
	_, err = st.GetInterview(ctx, "offline-abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	iv, err := st.GetInterview(ctx, "srv-1")
	require.NoError(t, err)
	assert.Equal(t, storage.SyncStatusSynced, iv.SyncStatus)

	items, err := st.QueueItems(ctx, "srv-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPartialReplayLeavesRemainder(t *testing.T) {
	st := setupTestStore(t)
	remote := newFakeRemote()
	remote.failAt = 1 // create succeeds, first update fails
	engine := NewEngine(st, remote, nil)
	ctx := context.Background()

	seedOfflineCreate(t, st, "offline-abc", "proto-1", []byte(`{}`))
	require.NoError(t, EnqueueUpdate(ctx, st, "offline-abc", []byte(`{"stage":2}`)))
	require.NoError(t, EnqueueUpdate(ctx, st, "offline-abc", []byte(`{"stage":3}`)))

	result, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Applied)

	// The queue holds exactly the unapplied remainder, in order, under
	// the remapped id.
	items, err := st.QueueItems(ctx, "srv-1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	var first, second UpdatePayload
	require.NoError(t, json.Unmarshal(items[0].Payload, &first))
	require.NoError(t, json.Unmarshal(items[1].Payload, &second))
	assert.Equal(t, json.RawMessage(`{"stage":2}`), first.Data)
	assert.Equal(t, json.RawMessage(`{"stage":3}`), second.Data)

	// Retry picks up where it left off.
	remote.failAt = -1
	result, err = engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 2, result.Applied)

	items, err = st.QueueItems(ctx, "srv-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestConflictSurfacesAndNeverMerges(t *testing.T) {
	st := setupTestStore(t)
	remote := newFakeRemote()
	remote.conflictAt = 0
	remote.serverData = []byte(`{"server":true}`)
	engine := NewEngine(st, remote, nil)
	ctx := context.Background()

	require.NoError(t, st.CreateInterview(ctx, &storage.Interview{
		ID:         "srv-7",
		ProtocolID: "proto-1",
		Data:       []byte(`{"local":true}`),
	}))
	require.NoError(t, EnqueueUpdate(ctx, st, "srv-7", []byte(`{"local":true}`)))

	result, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)

	iv, err := st.GetInterview(ctx, "srv-7")
	require.NoError(t, err)
	assert.Equal(t, storage.SyncStatusConflict, iv.SyncStatus)
	// Neither snapshot was written back automatically.
	assert.Equal(t, []byte(`{"local":true}`), iv.Data)

	conflicts, err := st.UnresolvedConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Nil(t, conflicts[0].ResolvedAt)
	assert.Equal(t, []byte(`{"local":true}`), conflicts[0].LocalData)
	assert.Equal(t, []byte(`{"server":true}`), conflicts[0].ServerData)

	// A conflicted interview is skipped, not retried, until resolved.
	result, err = engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	require.Len(t, remote.calls, 1)
}

func TestConflictOnVanishedRowStillRecords(t *testing.T) {
	st := setupTestStore(t)
	remote := newFakeRemote()
	remote.conflictAt = 0
	remote.serverData = []byte(`{"server":true}`)
	engine := NewEngine(st, remote, nil)
	ctx := context.Background()

	// The interview row was deleted by another process, but its queued
	// update is still replayed and still diverges.
	require.NoError(t, EnqueueUpdate(ctx, st, "srv-7", []byte(`{"local":true}`)))

	result, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Zero(t, result.Failed)

	// An empty object stands in for the missing local snapshot.
	conflicts, err := st.UnresolvedConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "srv-7", conflicts[0].InterviewID)
	assert.Equal(t, []byte(`{}`), conflicts[0].LocalData)
	assert.Equal(t, []byte(`{"server":true}`), conflicts[0].ServerData)
}

func TestResolveConflictServerSide(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateInterview(ctx, &storage.Interview{
		ID: "srv-7", ProtocolID: "proto-1", Data: []byte(`{"local":true}`),
	}))
	c, err := Detect(ctx, st, "srv-7", []byte(`{"local":true}`), []byte(`{"server":true}`))
	require.NoError(t, err)

	require.NoError(t, Resolve(ctx, st, c.ID, SideServer))

	iv, err := st.GetInterview(ctx, "srv-7")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"server":true}`), iv.Data)
	assert.Equal(t, storage.SyncStatusSynced, iv.SyncStatus)

	// Exactly one side is ever applied; re-resolving is an error.
	assert.Error(t, Resolve(ctx, st, c.ID, SideLocal))
}

func TestResolveConflictLocalSide(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateInterview(ctx, &storage.Interview{
		ID: "srv-7", ProtocolID: "proto-1", Data: []byte(`{"local":true}`),
	}))
	c, err := Detect(ctx, st, "srv-7", []byte(`{"local":true}`), []byte(`{"server":true}`))
	require.NoError(t, err)

	require.NoError(t, Resolve(ctx, st, c.ID, SideLocal))

	iv, err := st.GetInterview(ctx, "srv-7")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"local":true}`), iv.Data)
	assert.Equal(t, storage.SyncStatusPending, iv.SyncStatus)
}

func TestEnsureStationIDIsStable(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	first, err := EnsureStationID(ctx, st)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := EnsureStationID(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
