package storage

import (
	"context"
	"time"
)

// TempIDPrefix marks locally-allocated interview ids that have not yet
// been assigned a permanent id by the remote API.
const TempIDPrefix = "offline-"

// IsTempID reports whether an interview id is a temporary offline id.
func IsTempID(id string) bool {
	return len(id) >= len(TempIDPrefix) && id[:len(TempIDPrefix)] == TempIDPrefix
}

// SyncStatus represents the synchronization status of an interview.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
)

// Operation is the kind of mutation recorded in the sync queue.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Interview is one interview session held locally.
// Data is the serialized session state and is opaque to the store.
type Interview struct {
	ID             string
	ProtocolID     string
	SyncStatus     SyncStatus
	LastUpdated    time.Time
	OfflineCreated bool
	Data           []byte
}

// Protocol is a survey protocol definition cached for offline use,
// excluding its binary assets.
type Protocol struct {
	ID       string
	Name     string
	CachedAt time.Time
	Data     []byte
}

// Asset is one cached binary payload belonging to a protocol.
// Key is the composite "protocolID/assetID".
type Asset struct {
	Key        string
	AssetID    string
	ProtocolID string
	CachedAt   time.Time
	Blob       []byte
}

// QueueItem is one replayable mutation awaiting application to the
// remote system of record. Items for one interview form its replay log,
// ordered by ID.
type QueueItem struct {
	ID          int64
	InterviewID string
	Operation   Operation
	CreatedAt   time.Time
	Payload     []byte
}

// Conflict records a divergence between local and remote interview
// state. Both sides are full snapshots, never diffs. ResolvedAt is nil
// while the conflict is unresolved.
type Conflict struct {
	ID          int64
	InterviewID string
	DetectedAt  time.Time
	ResolvedAt  *time.Time
	LocalData   []byte
	ServerData  []byte
}

// ErrorLogEntry is one row of the capped on-device error log.
type ErrorLogEntry struct {
	ID        int64
	Timestamp time.Time
	Operation string
	Error     string
	Context   []byte
}

// InterviewFilters narrows ListInterviews.
type InterviewFilters struct {
	SyncStatus *SyncStatus
	ProtocolID *string
}

// Store is the local persistent store shared by every station process
// on the device. All multi-step writes go through its transaction
// mechanism; there is no other cross-process mutual exclusion.
type Store interface {
	// Interviews
	CreateInterview(ctx context.Context, iv *Interview) error
	GetInterview(ctx context.Context, id string) (*Interview, error)
	UpdateInterview(ctx context.Context, iv *Interview) error
	UpdateInterviewStatus(ctx context.Context, id string, status SyncStatus) error
	ListInterviews(ctx context.Context, filters InterviewFilters) ([]*Interview, error)
	// DeleteInterview purges the interview together with its queue
	// items and conflicts in one transaction.
	DeleteInterview(ctx context.Context, id string) error
	// CreateInterviewEnqueued writes the interview row and its first
	// queue item in one transaction, so a crash can never leave an
	// offline-created interview without its create operation queued.
	CreateInterviewEnqueued(ctx context.Context, iv *Interview, item *QueueItem) error

	// Protocols
	PutProtocol(ctx context.Context, p *Protocol) error
	GetProtocol(ctx context.Context, id string) (*Protocol, error)
	ListProtocols(ctx context.Context) ([]*Protocol, error)
	// DeleteProtocol removes the protocol and all of its cached assets
	// in one transaction.
	DeleteProtocol(ctx context.Context, id string) error

	// Assets
	PutAsset(ctx context.Context, a *Asset) error
	GetAsset(ctx context.Context, protocolID, assetID string) (*Asset, error)
	HasAsset(ctx context.Context, protocolID, assetID string) (bool, error)
	CountAssets(ctx context.Context, protocolID string) (int, error)
	DeleteAsset(ctx context.Context, protocolID, assetID string) error
	DeleteAssetsByProtocol(ctx context.Context, protocolID string) error

	// Sync queue
	AppendQueueItem(ctx context.Context, item *QueueItem) error
	QueueItems(ctx context.Context, interviewID string) ([]*QueueItem, error)
	DeleteQueueItem(ctx context.Context, id int64) error
	PendingQueueInterviews(ctx context.Context) ([]string, error)

	// Conflicts
	CreateConflict(ctx context.Context, c *Conflict) error
	GetConflict(ctx context.Context, id int64) (*Conflict, error)
	UnresolvedConflicts(ctx context.Context) ([]*Conflict, error)
	// MarkConflictResolved sets resolved_at, applies chosenData as the
	// interview's new local state and moves it to newStatus, atomically.
	MarkConflictResolved(ctx context.Context, id int64, chosenData []byte, newStatus SyncStatus) error

	// RemapInterviewID rewrites a temporary offline id to the permanent
	// server-assigned id across interviews, queue items and conflicts.
	RemapInterviewID(ctx context.Context, tempID, realID string) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error

	// Error log
	ListErrorLogs(ctx context.Context) ([]*ErrorLogEntry, error)

	Close() error
}
