package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fieldsync/fieldsync/internal/client/storage"
)

// CreatePayload is the payload of an OpCreate queue item.
type CreatePayload struct {
	ProtocolID string          `json:"protocolId"`
	Data       json.RawMessage `json:"data"`
}

// UpdatePayload is the payload of an OpUpdate queue item.
type UpdatePayload struct {
	Data json.RawMessage `json:"data"`
}

// EnqueueCreate appends a create operation to the interview's replay
// log. Queue items are never coalesced: every logical mutation keeps
// its own entry.
func EnqueueCreate(ctx context.Context, st storage.Store, interviewID, protocolID string, data []byte) error {
	payload, err := json.Marshal(CreatePayload{ProtocolID: protocolID, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode create payload: %w", err)
	}
	return st.AppendQueueItem(ctx, &storage.QueueItem{
		InterviewID: interviewID,
		Operation:   storage.OpCreate,
		Payload:     payload,
	})
}

// EnqueueUpdate appends an update operation to the interview's replay
// log.
func EnqueueUpdate(ctx context.Context, st storage.Store, interviewID string, data []byte) error {
	payload, err := json.Marshal(UpdatePayload{Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode update payload: %w", err)
	}
	return st.AppendQueueItem(ctx, &storage.QueueItem{
		InterviewID: interviewID,
		Operation:   storage.OpUpdate,
		Payload:     payload,
	})
}

// EnqueueDelete appends a delete operation to the interview's replay
// log.
func EnqueueDelete(ctx context.Context, st storage.Store, interviewID string) error {
	return st.AppendQueueItem(ctx, &storage.QueueItem{
		InterviewID: interviewID,
		Operation:   storage.OpDelete,
	})
}
