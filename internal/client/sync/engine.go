package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fieldsync/fieldsync/internal/client/broadcast"
	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// Settings keys owned by the sync engine.
const (
	SettingLastSyncAt = "last_sync_at"
	SettingStationID  = "station_id"
)

// Result summarizes one Run.
type Result struct {
	Interviews int
	Applied    int
	Synced     int
	Conflicts  int
	Failed     int
	Duration   time.Duration
}

// Engine drains the sync queue against the remote API. Within one
// interview, operations apply strictly in creation order; interviews
// themselves have no required relative order.
type Engine struct {
	store       storage.Store
	remote      Remote
	coordinator *broadcast.Coordinator
	log         *logrus.Entry
}

// NewEngine builds a sync engine. The coordinator may be nil when no
// cross-process notification is wanted (e.g. one-shot tooling).
func NewEngine(st storage.Store, remote Remote, coordinator *broadcast.Coordinator) *Engine {
	return &Engine{
		store:       st,
		remote:      remote,
		coordinator: coordinator,
		log:         logrus.WithField("component", "sync"),
	}
}

// EnsureStationID returns the persistent identifier of this device,
// allocating one on first use.
func EnsureStationID(ctx context.Context, st storage.Store) (string, error) {
	id, err := st.GetSetting(ctx, SettingStationID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	id = uuid.NewString()
	if err := st.PutSetting(ctx, SettingStationID, id); err != nil {
		return "", err
	}
	return id, nil
}

// Run replays every interview's pending queue. A failure on one
// interview leaves its unapplied remainder queued and does not stop
// the others.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	interviewIDs, err := e.store.PendingQueueInterviews(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Interviews: len(interviewIDs)}
	for _, id := range interviewIDs {
		if ctx.Err() != nil {
			break
		}

		applied, conflicted, err := e.syncInterview(ctx, id)
		result.Applied += applied
		switch {
		case conflicted:
			result.Conflicts++
		case err != nil:
			result.Failed++
			e.log.WithError(err).WithField("interview_id", id).Warn("sync failed, queue left intact")
		default:
			result.Synced++
		}
	}

	if err := e.store.PutSetting(ctx, SettingLastSyncAt, time.Now().Format(time.RFC3339)); err != nil {
		e.log.WithError(err).Warn("failed to record last sync time")
	}

	result.Duration = time.Since(start)
	return result, nil
}

// syncInterview applies one interview's replay log in creation order.
// Each item is deleted only after the remote durably applied it, so an
// interrupted replay leaves the queue reflecting exactly the unapplied
// remainder.
func (e *Engine) syncInterview(ctx context.Context, interviewID string) (applied int, conflicted bool, err error) {
	// An unresolved conflict blocks replay until a side is chosen.
	if iv, err := e.store.GetInterview(ctx, interviewID); err == nil && iv.SyncStatus == storage.SyncStatusConflict {
		return 0, true, nil
	}

	items, err := e.store.QueueItems(ctx, interviewID)
	if err != nil {
		return 0, false, err
	}

	currentID := interviewID
	for _, item := range items {
		remoteID, applyErr := e.applyItem(ctx, currentID, item)

		var conflictErr *ConflictError
		if errors.As(applyErr, &conflictErr) {
			if err := e.recordConflict(ctx, currentID, conflictErr.ServerData); err != nil {
				return applied, false, err
			}
			return applied, true, nil
		}
		if applyErr != nil {
			return applied, false, applyErr
		}

		// A successful create hands out the permanent id; remap before
		// any later item applies.
		if item.Operation == storage.OpCreate && storage.IsTempID(currentID) && remoteID != "" {
			if err := e.store.RemapInterviewID(ctx, currentID, remoteID); err != nil {
				return applied, false, err
			}
			e.post(broadcast.InterviewSynced(currentID, remoteID))
			currentID = remoteID
		}

		if err := e.store.DeleteQueueItem(ctx, item.ID); err != nil {
			return applied, false, err
		}
		applied++
	}

	// The interview row is gone when the replay ended in a delete.
	if err := e.store.UpdateInterviewStatus(ctx, currentID, storage.SyncStatusSynced); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return applied, false, err
	}
	e.post(broadcast.InterviewUpdated(currentID))

	return applied, false, nil
}

func (e *Engine) applyItem(ctx context.Context, currentID string, item *storage.QueueItem) (string, error) {
	switch item.Operation {
	case storage.OpCreate:
		var payload CreatePayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return "", fmt.Errorf("malformed create payload for item %d: %w", item.ID, err)
		}
		return e.remote.CreateInterview(ctx, payload.ProtocolID, payload.Data)

	case storage.OpUpdate:
		var payload UpdatePayload
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return "", fmt.Errorf("malformed update payload for item %d: %w", item.ID, err)
		}
		return "", e.remote.UpdateInterview(ctx, currentID, payload.Data)

	case storage.OpDelete:
		return "", e.remote.DeleteInterview(ctx, currentID)

	default:
		return "", fmt.Errorf("unknown queue operation %q", item.Operation)
	}
}

func (e *Engine) recordConflict(ctx context.Context, interviewID string, serverData []byte) error {
	// The row can vanish mid-replay when another process deletes it.
	// The conflict row requires a local snapshot, so fall back to an
	// empty object rather than a nil blob.
	localData := []byte("{}")
	if iv, err := e.store.GetInterview(ctx, interviewID); err == nil && len(iv.Data) > 0 {
		localData = iv.Data
	}

	if _, err := Detect(ctx, e.store, interviewID, localData, serverData); err != nil {
		return err
	}

	e.log.WithField("interview_id", interviewID).Warn("conflict detected, awaiting resolution")
	return nil
}

func (e *Engine) post(msg broadcast.Message) {
	if e.coordinator != nil {
		e.coordinator.Post(msg)
	}
}
