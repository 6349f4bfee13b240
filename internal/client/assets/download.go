package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// Status is the download state machine:
// idle -> downloading -> {completed | paused | error}.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusPaused      Status = "paused"
	StatusError       Status = "error"
)

// ErrResumeNotSupported: resuming is re-invoking DownloadProtocolAssets;
// skip-if-present makes re-invocation exactly a resume. There is no
// byte-range resume.
var ErrResumeNotSupported = errors.New("resume is not supported: re-run the download instead")

// Progress is the snapshot emitted after every asset and at start/end.
// TotalBytes is a best effort denominator taken from Content-Length
// before the run starts; assets whose size the server does not
// advertise contribute zero to it.
type Progress struct {
	ProtocolID       string `json:"protocolId"`
	TotalAssets      int    `json:"totalAssets"`
	DownloadedAssets int    `json:"downloadedAssets"`
	TotalBytes       int64  `json:"totalBytes"`
	DownloadedBytes  int64  `json:"downloadedBytes"`
	Status           Status `json:"status"`
	Error            string `json:"error,omitempty"`
}

// Manager fetches and caches the binary assets of a protocol. One
// download is in flight per Manager at a time; Pause aborts it. Every
// successfully fetched asset is committed individually, so concurrent
// downloads of the same protocol from two processes converge through
// the per-asset skip-if-present check instead of corrupting the cache.
type Manager struct {
	store  storage.Store
	client *http.Client
	log    *logrus.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	paused bool
}

// NewManager builds a download manager on top of the local store. A nil
// client falls back to a default with a generous per-asset timeout.
func NewManager(store storage.Store, client *http.Client) *Manager {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Manager{
		store:  store,
		client: client,
		log:    logrus.WithField("component", "assets"),
	}
}

// Pause aborts the in-flight fetch, if any. The download loop observes
// the pause before starting the next asset and reports StatusPaused,
// leaving already-cached assets in place. With no run in flight the
// request is held and stops the next run before its first asset.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
	if m.cancel != nil {
		m.cancel()
	}
}

// Resume fails loudly rather than silently doing nothing.
func (m *Manager) Resume() error {
	return ErrResumeNotSupported
}

// DownloadProtocolAssets sequentially downloads every manifest asset
// not already cached for the protocol. Progress is reported at start,
// after every asset and at the end.
//
// Outcomes are part of the returned Progress, not exceptions: a network
// failure on any asset deletes the protocol's entire partial asset
// cache (no half-cached protocol is ever left looking available
// offline) and reports StatusError. A paused run keeps what it already
// committed; re-invoking continues where it left off.
func (m *Manager) DownloadProtocolAssets(ctx context.Context, protocol *storage.Protocol, onProgress func(Progress)) (Progress, error) {
	items, err := ExtractManifest(protocol.ID, protocol.Data)
	if err != nil {
		return Progress{ProtocolID: protocol.ID, Status: StatusIdle}, err
	}

	report := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	progress := Progress{
		ProtocolID:  protocol.ID,
		TotalAssets: len(items),
		Status:      StatusDownloading,
	}

	if len(items) == 0 {
		progress.Status = StatusCompleted
		report(progress)
		return progress, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		m.mu.Unlock()
	}()

	// A pause requested before the run was invoked stops it before the
	// first asset.
	if m.interrupted(ctx) {
		progress.Status = StatusPaused
		report(progress)
		return progress, nil
	}

	// Size the whole manifest up front so TotalBytes is a denominator
	// for the run rather than an echo of DownloadedBytes.
	sizes := make(map[string]int64, len(items))
	for _, item := range items {
		sizes[item.AssetID] = m.assetSize(ctx, item.URL)
		progress.TotalBytes += sizes[item.AssetID]
	}

	report(progress)

	for _, item := range items {
		if m.interrupted(ctx) {
			progress.Status = StatusPaused
			report(progress)
			return progress, nil
		}

		cached, err := m.store.HasAsset(ctx, protocol.ID, item.AssetID)
		if err != nil {
			return m.failDownload(ctx, progress, report, err)
		}
		if cached {
			// Never re-download a cached asset id.
			progress.DownloadedAssets++
			progress.DownloadedBytes += sizes[item.AssetID]
			report(progress)
			continue
		}

		blob, err := m.fetch(ctx, item.URL)
		if err != nil {
			if m.interrupted(ctx) {
				progress.Status = StatusPaused
				report(progress)
				return progress, nil
			}
			return m.failDownload(ctx, progress, report, err)
		}

		if err := m.store.PutAsset(ctx, &storage.Asset{
			AssetID:    item.AssetID,
			ProtocolID: protocol.ID,
			Blob:       blob,
		}); err != nil {
			return m.failDownload(ctx, progress, report, err)
		}

		progress.DownloadedAssets++
		progress.DownloadedBytes += int64(len(blob))
		report(progress)
	}

	progress.Status = StatusCompleted
	report(progress)
	return progress, nil
}

// interrupted reports whether the run should stop, consuming any
// pending pause request so the next invocation starts fresh.
func (m *Manager) interrupted(ctx context.Context) bool {
	m.mu.Lock()
	paused := m.paused
	m.paused = false
	m.mu.Unlock()
	return paused || ctx.Err() != nil
}

// failDownload rolls back the protocol's partial asset cache and turns
// the failure into a structured result. The asset rows are the sole
// evidence a download succeeded, so none may survive a failed run.
func (m *Manager) failDownload(ctx context.Context, progress Progress, report func(Progress), cause error) (Progress, error) {
	m.log.WithError(cause).WithField("protocol_id", progress.ProtocolID).
		Warn("asset download failed, removing partial cache")

	// The triggering context may already be cancelled; cleanup must
	// still run.
	cleanupCtx := context.WithoutCancel(ctx)
	if err := m.store.DeleteAssetsByProtocol(cleanupCtx, progress.ProtocolID); err != nil {
		m.log.WithError(err).Error("failed to remove partial asset cache")
	}

	progress.Status = StatusError
	progress.Error = cause.Error()
	report(progress)
	return progress, nil
}

// assetSize asks the server for an asset's size. Best effort: servers
// that reject HEAD or advertise no length contribute zero.
func (m *Manager) assetSize(ctx context.Context, assetURL string) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, assetURL, nil)
	if err != nil {
		return 0
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return 0
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.ContentLength < 0 {
		return 0
	}
	return resp.ContentLength
}

func (m *Manager) fetch(ctx context.Context, assetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", assetURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, assetURL)
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", assetURL, err)
	}

	return blob, nil
}
