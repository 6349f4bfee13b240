package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time check to ensure SQLite implements the Store interface
var _ Store = (*SQLite)(nil)

func setupTestStore(t *testing.T) *SQLite {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestOpen(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var version int
	err := store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Opening marks the store initialized.
	_, err = store.GetSetting(ctx, SettingInitialized)
	assert.NoError(t, err)
}

func TestOpenUnavailableLocation(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	_, err = Open("/nonexistent-dir-for-sure/sub/test.db")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestOpenIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store1, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := Open(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	var version int
	err = store2.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestInterviewCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	iv := &Interview{
		ID:             "offline-abc",
		ProtocolID:     "proto-1",
		OfflineCreated: true,
		Data:           []byte(`{"stage":1}`),
	}
	require.NoError(t, store.CreateInterview(ctx, iv))

	// Defaults applied on create.
	assert.Equal(t, SyncStatusPending, iv.SyncStatus)
	assert.False(t, iv.LastUpdated.IsZero())

	got, err := store.GetInterview(ctx, "offline-abc")
	require.NoError(t, err)
	assert.Equal(t, "proto-1", got.ProtocolID)
	assert.True(t, got.OfflineCreated)
	assert.Equal(t, []byte(`{"stage":1}`), got.Data)

	got.Data = []byte(`{"stage":2}`)
	got.SyncStatus = SyncStatusSynced
	require.NoError(t, store.UpdateInterview(ctx, got))

	got2, err := store.GetInterview(ctx, "offline-abc")
	require.NoError(t, err)
	assert.Equal(t, SyncStatusSynced, got2.SyncStatus)
	assert.Equal(t, []byte(`{"stage":2}`), got2.Data)

	_, err = store.GetInterview(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListInterviewsFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInterview(ctx, &Interview{ID: "a", ProtocolID: "p1"}))
	require.NoError(t, store.CreateInterview(ctx, &Interview{ID: "b", ProtocolID: "p2", SyncStatus: SyncStatusSynced}))
	require.NoError(t, store.CreateInterview(ctx, &Interview{ID: "c", ProtocolID: "p1"}))

	all, err := store.ListInterviews(ctx, InterviewFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending := SyncStatusPending
	got, err := store.ListInterviews(ctx, InterviewFilters{SyncStatus: &pending})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	p1 := "p1"
	got, err = store.ListInterviews(ctx, InterviewFilters{ProtocolID: &p1})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteInterviewPurgesAssociations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInterview(ctx, &Interview{ID: "iv1", ProtocolID: "p1"}))
	require.NoError(t, store.AppendQueueItem(ctx, &QueueItem{InterviewID: "iv1", Operation: OpCreate}))
	require.NoError(t, store.AppendQueueItem(ctx, &QueueItem{InterviewID: "iv1", Operation: OpUpdate}))
	require.NoError(t, store.CreateConflict(ctx, &Conflict{
		InterviewID: "iv1",
		LocalData:   []byte(`{}`),
		ServerData:  []byte(`{}`),
	}))

	require.NoError(t, store.DeleteInterview(ctx, "iv1"))

	_, err := store.GetInterview(ctx, "iv1")
	assert.ErrorIs(t, err, ErrNotFound)

	items, err := store.QueueItems(ctx, "iv1")
	require.NoError(t, err)
	assert.Empty(t, items)

	conflicts, err := store.UnresolvedConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestProtocolSupersededOnRecache(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutProtocol(ctx, &Protocol{ID: "p1", Name: "Wave 1", Data: []byte(`{"v":1}`)}))
	require.NoError(t, store.PutProtocol(ctx, &Protocol{ID: "p1", Name: "Wave 1 rev", Data: []byte(`{"v":2}`)}))

	got, err := store.GetProtocol(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Wave 1 rev", got.Name)
	assert.Equal(t, []byte(`{"v":2}`), got.Data)

	protocols, err := store.ListProtocols(ctx)
	require.NoError(t, err)
	assert.Len(t, protocols, 1)
}

func TestDeleteProtocolPurgesAssets(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutProtocol(ctx, &Protocol{ID: "p1", Name: "Wave 1", Data: []byte(`{}`)}))
	require.NoError(t, store.PutAsset(ctx, &Asset{ProtocolID: "p1", AssetID: "a1", Blob: []byte("x")}))
	require.NoError(t, store.PutAsset(ctx, &Asset{ProtocolID: "p1", AssetID: "a2", Blob: []byte("y")}))
	require.NoError(t, store.PutProtocol(ctx, &Protocol{ID: "p2", Name: "Wave 2", Data: []byte(`{}`)}))
	require.NoError(t, store.PutAsset(ctx, &Asset{ProtocolID: "p2", AssetID: "a1", Blob: []byte("z")}))

	require.NoError(t, store.DeleteProtocol(ctx, "p1"))

	count, err := store.CountAssets(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, count)

	// Assets of other protocols are untouched.
	count, err = store.CountAssets(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAssetDeduplication(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutAsset(ctx, &Asset{ProtocolID: "p1", AssetID: "a1", Blob: []byte("first")}))
	require.NoError(t, store.PutAsset(ctx, &Asset{ProtocolID: "p1", AssetID: "a1", Blob: []byte("second")}))

	count, err := store.CountAssets(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.GetAsset(ctx, "p1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "p1/a1", got.Key)
	assert.Equal(t, []byte("second"), got.Blob)

	ok, err := store.HasAsset(ctx, "p1", "a1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasAsset(ctx, "p1", "a2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueOrderingInterleaved(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Interleave enqueues for two interviews; each replay log must come
	// back in its own exact call order.
	ops := []struct {
		interviewID string
		payload     string
	}{
		{"iv1", "one"}, {"iv2", "x"}, {"iv1", "two"}, {"iv2", "y"}, {"iv1", "three"},
	}
	for _, op := range ops {
		require.NoError(t, store.AppendQueueItem(ctx, &QueueItem{
			InterviewID: op.interviewID,
			Operation:   OpUpdate,
			Payload:     []byte(op.payload),
		}))
	}

	items, err := store.QueueItems(ctx, "iv1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []byte("one"), items[0].Payload)
	assert.Equal(t, []byte("two"), items[1].Payload)
	assert.Equal(t, []byte("three"), items[2].Payload)

	items, err = store.QueueItems(ctx, "iv2")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []byte("x"), items[0].Payload)
	assert.Equal(t, []byte("y"), items[1].Payload)

	pending, err := store.PendingQueueInterviews(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"iv1", "iv2"}, pending)
}

func TestDeleteQueueItemLeavesRemainder(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := &QueueItem{InterviewID: "iv1", Operation: OpCreate}
	second := &QueueItem{InterviewID: "iv1", Operation: OpUpdate}
	require.NoError(t, store.AppendQueueItem(ctx, first))
	require.NoError(t, store.AppendQueueItem(ctx, second))

	require.NoError(t, store.DeleteQueueItem(ctx, first.ID))

	items, err := store.QueueItems(ctx, "iv1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, second.ID, items[0].ID)
}

func TestConflictLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInterview(ctx, &Interview{ID: "iv1", ProtocolID: "p1", Data: []byte(`{"local":true}`)}))

	c := &Conflict{
		InterviewID: "iv1",
		LocalData:   []byte(`{"local":true}`),
		ServerData:  []byte(`{"server":true}`),
	}
	require.NoError(t, store.CreateConflict(ctx, c))
	assert.NotZero(t, c.ID)

	unresolved, err := store.UnresolvedConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Nil(t, unresolved[0].ResolvedAt)

	require.NoError(t, store.MarkConflictResolved(ctx, c.ID, c.ServerData, SyncStatusSynced))

	unresolved, err = store.UnresolvedConflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	got, err := store.GetConflict(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)

	iv, err := store.GetInterview(ctx, "iv1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"server":true}`), iv.Data)
	assert.Equal(t, SyncStatusSynced, iv.SyncStatus)

	// Resolving twice is rejected.
	err = store.MarkConflictResolved(ctx, c.ID, c.LocalData, SyncStatusPending)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemapInterviewID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInterview(ctx, &Interview{ID: "offline-tmp", ProtocolID: "p1"}))
	require.NoError(t, store.AppendQueueItem(ctx, &QueueItem{InterviewID: "offline-tmp", Operation: OpUpdate}))
	require.NoError(t, store.CreateConflict(ctx, &Conflict{
		InterviewID: "offline-tmp", LocalData: []byte(`{}`), ServerData: []byte(`{}`),
	}))

	require.NoError(t, store.RemapInterviewID(ctx, "offline-tmp", "srv-42"))

	_, err := store.GetInterview(ctx, "offline-tmp")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetInterview(ctx, "srv-42")
	require.NoError(t, err)

	items, err := store.QueueItems(ctx, "srv-42")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	conflicts, err := store.UnresolvedConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "srv-42", conflicts[0].InterviewID)
}

func TestSettings(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetSetting(ctx, "station_id")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.PutSetting(ctx, "station_id", "st-1"))
	require.NoError(t, store.PutSetting(ctx, "station_id", "st-2"))

	value, err := store.GetSetting(ctx, "station_id")
	require.NoError(t, err)
	assert.Equal(t, "st-2", value)
}

func TestErrorLogRingBuffer(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < errorLogCeiling+1; i++ {
		require.NoError(t, store.appendErrorLog("test op", fmt.Sprintf("error %d", i), nil))
	}

	entries, err := store.ListErrorLogs(ctx)
	require.NoError(t, err)

	// Crossing the ceiling evicts the oldest batch in one go.
	assert.Len(t, entries, errorLogCeiling+1-errorLogEvictBatch)

	// Newest first; the survivors are the most recent writes.
	assert.Equal(t, fmt.Sprintf("error %d", errorLogCeiling), entries[0].Error)
	assert.Equal(t, fmt.Sprintf("error %d", errorLogEvictBatch), entries[len(entries)-1].Error)
}

func TestFailedStoreCallIsLogged(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Force a failure through the classification path.
	err := store.UpdateInterviewStatus(ctx, "does-not-exist", SyncStatusSynced)
	require.Error(t, err)

	// ErrNotFound short-circuits before logging; use a real driver error
	// instead: violate the NOT NULL constraint on protocols.name.
	_, execErr := store.db.ExecContext(ctx, `INSERT INTO protocols (id, data) VALUES ('p', x'00')`)
	require.Error(t, execErr)
	wrapped := store.fail("insert protocol", execErr)
	require.Error(t, wrapped)

	entries, listErr := store.ListErrorLogs(ctx)
	require.NoError(t, listErr)
	require.NotEmpty(t, entries)
	assert.Equal(t, "insert protocol", entries[0].Operation)
}

func TestCreateInterviewEnqueuedIsAtomic(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	iv := &Interview{
		ID:             "offline-a",
		ProtocolID:     "proto-1",
		OfflineCreated: true,
		Data:           []byte(`{}`),
	}
	item := &QueueItem{
		InterviewID: "offline-a",
		Operation:   OpCreate,
		Payload:     []byte(`{"protocolId":"proto-1","data":{}}`),
	}

	require.NoError(t, store.CreateInterviewEnqueued(ctx, iv, item))
	assert.NotZero(t, item.ID)
	assert.Equal(t, SyncStatusPending, iv.SyncStatus)

	got, err := store.GetInterview(ctx, "offline-a")
	require.NoError(t, err)
	assert.True(t, got.OfflineCreated)

	items, err := store.QueueItems(ctx, "offline-a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, OpCreate, items[0].Operation)

	// A duplicate id rolls the whole transaction back; no orphan queue
	// item appears.
	err = store.CreateInterviewEnqueued(ctx, iv, &QueueItem{
		InterviewID: "offline-a",
		Operation:   OpCreate,
	})
	require.Error(t, err)

	items, err = store.QueueItems(ctx, "offline-a")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
