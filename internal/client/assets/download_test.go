package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
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

// protocolWithAssets builds a protocol whose manifest points at the
// given server, one asset per id.
func protocolWithAssets(t *testing.T, serverURL string, assetIDs ...string) *storage.Protocol {
	t.Helper()

	items := make([]ManifestItem, 0, len(assetIDs))
	for _, id := range assetIDs {
		items = append(items, ManifestItem{
			AssetID: id,
			URL:     fmt.Sprintf("%s/%s", serverURL, id),
			Type:    "image",
		})
	}
	data, err := json.Marshal(map[string]any{"assets": items})
	require.NoError(t, err)

	return &storage.Protocol{ID: "proto-1", Name: "Wave 1", Data: data}
}

func TestDownloadCompletes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "payload-for%s", r.URL.Path)
	}))
	defer server.Close()

	store := setupTestStore(t)
	manager := NewManager(store, nil)
	protocol := protocolWithAssets(t, server.URL, "a1", "a2", "a3")

	var snapshots []Progress
	final, err := manager.DownloadProtocolAssets(context.Background(), protocol, func(p Progress) {
		snapshots = append(snapshots, p)
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 3, final.TotalAssets)
	assert.Equal(t, 3, final.DownloadedAssets)
	assert.Positive(t, final.DownloadedBytes)

	// Snapshot at start, after each asset, and at end.
	require.Len(t, snapshots, 5)
	assert.Equal(t, StatusDownloading, snapshots[0].Status)
	assert.Equal(t, 0, snapshots[0].DownloadedAssets)
	assert.Equal(t, StatusCompleted, snapshots[len(snapshots)-1].Status)

	count, err := store.CountAssets(context.Background(), "proto-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDownloadIsIdempotent(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			requests.Add(1)
		}
		fmt.Fprint(w, "blob")
	}))
	defer server.Close()

	store := setupTestStore(t)
	manager := NewManager(store, nil)
	protocol := protocolWithAssets(t, server.URL, "a1", "a2")

	_, err := manager.DownloadProtocolAssets(context.Background(), protocol, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())

	// Second run reports everything downloaded without fetching a byte.
	final, err := manager.DownloadProtocolAssets(context.Background(), protocol, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 2, final.DownloadedAssets)
	assert.Equal(t, int32(2), requests.Load())

	count, err := store.CountAssets(context.Background(), "proto-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPartialFailureCleansWholeCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/a2" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "blob")
	}))
	defer server.Close()

	store := setupTestStore(t)
	manager := NewManager(store, nil)
	protocol := protocolWithAssets(t, server.URL, "a1", "a2", "a3")

	final, err := manager.DownloadProtocolAssets(context.Background(), protocol, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusError, final.Status)
	assert.NotEmpty(t, final.Error)

	// Not one, not three: zero rows survive a failed run.
	count, err := store.CountAssets(context.Background(), "proto-1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEmptyManifestCompletesImmediately(t *testing.T) {
	store := setupTestStore(t)
	manager := NewManager(store, nil)
	protocol := &storage.Protocol{ID: "proto-1", Data: []byte(`{"assets":[]}`)}

	var snapshots []Progress
	final, err := manager.DownloadProtocolAssets(context.Background(), protocol, func(p Progress) {
		snapshots = append(snapshots, p)
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	require.Len(t, snapshots, 1)
	assert.Equal(t, StatusCompleted, snapshots[0].Status)
}

func TestPauseKeepsCommittedAssets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "blob")
	}))
	defer server.Close()

	store := setupTestStore(t)
	manager := NewManager(store, nil)
	protocol := protocolWithAssets(t, server.URL, "a1", "a2", "a3")

	// Pause after the first committed asset; the loop observes it
	// before starting the next one.
	final, err := manager.DownloadProtocolAssets(context.Background(), protocol, func(p Progress) {
		if p.DownloadedAssets == 1 && p.Status == StatusDownloading {
			manager.Pause()
		}
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, final.Status)
	assert.Equal(t, 1, final.DownloadedAssets)

	// No rollback of completed assets on pause.
	count, err := store.CountAssets(context.Background(), "proto-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Re-invocation is the resume: it skips the cached asset.
	final, err = manager.DownloadProtocolAssets(context.Background(), protocol, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 3, final.DownloadedAssets)

	count, err = store.CountAssets(context.Background(), "proto-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPauseBeforeRunStopsNextRunOnce(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fetches.Add(1)
		}
		fmt.Fprint(w, "blob")
	}))
	defer server.Close()

	store := setupTestStore(t)
	manager := NewManager(store, nil)
	protocol := protocolWithAssets(t, server.URL, "a1", "a2")

	manager.Pause()

	final, err := manager.DownloadProtocolAssets(context.Background(), protocol, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, final.Status)
	assert.Zero(t, final.DownloadedAssets)
	assert.Zero(t, fetches.Load())

	// The held pause is consumed; the next run proceeds.
	final, err = manager.DownloadProtocolAssets(context.Background(), protocol, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, 2, final.DownloadedAssets)
}

func TestByteTotalsCountSkippedAssets(t *testing.T) {
	const blob = "sixteen-byte-pay"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, blob)
	}))
	defer server.Close()

	store := setupTestStore(t)
	manager := NewManager(store, nil)
	protocol := protocolWithAssets(t, server.URL, "a1", "a2")
	want := int64(2 * len(blob))

	final, err := manager.DownloadProtocolAssets(context.Background(), protocol, nil)
	require.NoError(t, err)
	assert.Equal(t, want, final.TotalBytes)
	assert.Equal(t, want, final.DownloadedBytes)

	// Cached assets still count toward both totals on a re-run.
	final, err = manager.DownloadProtocolAssets(context.Background(), protocol, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, want, final.TotalBytes)
	assert.Equal(t, want, final.DownloadedBytes)
}

func TestResumeFailsLoudly(t *testing.T) {
	manager := NewManager(setupTestStore(t), nil)
	assert.ErrorIs(t, manager.Resume(), ErrResumeNotSupported)
}
