package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// Side selects which snapshot wins a conflict. There is no merge.
type Side string

const (
	SideLocal  Side = "local"
	SideServer Side = "server"
)

// Detect records a divergence between local and remote interview state
// and flips the interview to conflict status. Nothing is merged or
// overwritten; the conflict stays visible until resolved.
func Detect(ctx context.Context, st storage.Store, interviewID string, localData, serverData []byte) (*storage.Conflict, error) {
	c := &storage.Conflict{
		InterviewID: interviewID,
		LocalData:   localData,
		ServerData:  serverData,
	}
	if err := st.CreateConflict(ctx, c); err != nil {
		return nil, err
	}
	// The row may already be gone; the stored conflict alone keeps the
	// divergence visible.
	if err := st.UpdateInterviewStatus(ctx, interviewID, storage.SyncStatusConflict); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return c, nil
}

// Resolve applies exactly one stored snapshot as the interview's new
// local state and marks the conflict resolved. Choosing the local side
// returns the interview to pending (its queued operations will retry);
// choosing the server side means local now matches remote, so synced.
func Resolve(ctx context.Context, st storage.Store, conflictID int64, side Side) error {
	c, err := st.GetConflict(ctx, conflictID)
	if err != nil {
		return err
	}
	if c.ResolvedAt != nil {
		return fmt.Errorf("conflict %d is already resolved", conflictID)
	}

	switch side {
	case SideLocal:
		return st.MarkConflictResolved(ctx, conflictID, c.LocalData, storage.SyncStatusPending)
	case SideServer:
		return st.MarkConflictResolved(ctx, conflictID, c.ServerData, storage.SyncStatusSynced)
	default:
		return fmt.Errorf("unknown resolution side %q", side)
	}
}
