package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fieldsync/fieldsync/internal/client/broadcast"
	"github.com/fieldsync/fieldsync/internal/client/session"
	"github.com/fieldsync/fieldsync/internal/client/storage"
	"github.com/fieldsync/fieldsync/internal/client/sync"
	"github.com/fieldsync/fieldsync/internal/crypto"
)

// ErrProtocolNotCached is returned when an interview is started against
// a protocol that has not been cached on this device.
var ErrProtocolNotCached = errors.New("protocol is not cached locally")

// DefaultDebounceInterval is the trailing window for coalescing
// interview data writes.
const DefaultDebounceInterval = 2 * time.Second

// Orchestrator is the entry point for working with interviews offline.
// Every mutation lands in the local store and the sync queue; nothing
// here talks to the network. Reads are side-effect-free projections of
// the store.
type Orchestrator struct {
	store       storage.Store
	session     *session.Service
	coordinator *broadcast.Coordinator
	debouncer   *Debouncer
	log         *logrus.Entry
}

// New builds an orchestrator. The coordinator may be nil when no
// cross-process notification is wanted. A non-positive debounce
// interval falls back to DefaultDebounceInterval.
func New(st storage.Store, sess *session.Service, coordinator *broadcast.Coordinator, debounce time.Duration) *Orchestrator {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}

	o := &Orchestrator{
		store:       st,
		session:     sess,
		coordinator: coordinator,
		log:         logrus.WithField("component", "interview"),
	}
	o.debouncer = NewDebouncer(debounce, o.persist)
	return o
}

// Close flushes any coalesced interview writes still in flight.
func (o *Orchestrator) Close() {
	o.debouncer.Close()
}

// CacheProtocol stores a protocol definition for offline use and
// announces it to other station processes.
func (o *Orchestrator) CacheProtocol(ctx context.Context, p *storage.Protocol) error {
	if err := o.store.PutProtocol(ctx, p); err != nil {
		return err
	}
	o.post(broadcast.ProtocolCached(p.ID))
	return nil
}

// Protocols lists the protocols cached on this device.
func (o *Orchestrator) Protocols(ctx context.Context) ([]*storage.Protocol, error) {
	return o.store.ListProtocols(ctx)
}

// Create starts a new interview against a cached protocol. The
// interview gets a temporary offline id, its row and the create queue
// item are written in one transaction, and other processes are
// notified. Attributes the protocol codebook marks secure are encrypted
// before anything touches disk.
func (o *Orchestrator) Create(ctx context.Context, protocolID string, data json.RawMessage) (*storage.Interview, error) {
	protocol, err := o.store.GetProtocol(ctx, protocolID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotCached, protocolID)
	}
	if err != nil {
		return nil, err
	}

	sealed, err := o.seal(ctx, protocol, data)
	if err != nil {
		return nil, err
	}

	iv := &storage.Interview{
		ID:             storage.TempIDPrefix + uuid.NewString(),
		ProtocolID:     protocolID,
		SyncStatus:     storage.SyncStatusPending,
		OfflineCreated: true,
		Data:           sealed,
	}

	payload, err := json.Marshal(sync.CreatePayload{ProtocolID: protocolID, Data: sealed})
	if err != nil {
		return nil, fmt.Errorf("failed to encode create payload: %w", err)
	}
	item := &storage.QueueItem{
		InterviewID: iv.ID,
		Operation:   storage.OpCreate,
		Payload:     payload,
	}

	if err := o.store.CreateInterviewEnqueued(ctx, iv, item); err != nil {
		return nil, err
	}

	o.post(broadcast.InterviewUpdated(iv.ID))
	o.log.WithFields(logrus.Fields{
		"interview_id": iv.ID,
		"protocol_id":  protocolID,
	}).Info("interview created offline")

	return iv, nil
}

// Update merges patch into the interview's session state at the
// top-level attribute granularity. The resulting snapshot is queued for
// sync immediately, one queue item per call; only the store write of
// the row is coalesced through the trailing debouncer.
func (o *Orchestrator) Update(ctx context.Context, id string, patch json.RawMessage) error {
	iv, err := o.store.GetInterview(ctx, id)
	if err != nil {
		return err
	}

	protocol, err := o.store.GetProtocol(ctx, iv.ProtocolID)
	if err != nil {
		return err
	}

	sealed, err := o.seal(ctx, protocol, patch)
	if err != nil {
		return err
	}

	base := iv.Data
	if pending, ok := o.debouncer.Pending(id); ok {
		base = pending
	}

	merged, err := mergeAttributes(base, sealed)
	if err != nil {
		return err
	}

	if err := sync.EnqueueUpdate(ctx, o.store, id, merged); err != nil {
		return err
	}

	o.debouncer.Schedule(id, merged)
	return nil
}

// Delete removes the interview locally along with its queued operations
// and conflicts. Interviews already known to the server additionally
// get a delete queued so the removal propagates on the next sync.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	o.debouncer.Cancel(id)

	if err := o.store.DeleteInterview(ctx, id); err != nil {
		return err
	}

	// A temp id never reached the server; there is nothing to propagate.
	if !storage.IsTempID(id) {
		if err := sync.EnqueueDelete(ctx, o.store, id); err != nil {
			return err
		}
	}

	o.post(broadcast.InterviewUpdated(id))
	return nil
}

// Get returns the interview, secure attributes still sealed. A value
// waiting in the debounce window overlays the stored row so callers
// always read their own writes.
func (o *Orchestrator) Get(ctx context.Context, id string) (*storage.Interview, error) {
	iv, err := o.store.GetInterview(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending, ok := o.debouncer.Pending(id); ok {
		iv.Data = pending
	}
	return iv, nil
}

// List returns interviews matching the filters, secure attributes still
// sealed.
func (o *Orchestrator) List(ctx context.Context, filters storage.InterviewFilters) ([]*storage.Interview, error) {
	return o.store.ListInterviews(ctx, filters)
}

// Data returns the interview's session state with secure attributes
// decrypted. It prompts for the passphrase if the protocol has secure
// attributes and none is held.
func (o *Orchestrator) Data(ctx context.Context, id string) (map[string]json.RawMessage, error) {
	iv, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	protocol, err := o.store.GetProtocol(ctx, iv.ProtocolID)
	if err != nil {
		return nil, err
	}

	attrs, err := unmarshalAttributes(iv.Data)
	if err != nil {
		return nil, err
	}

	codebook := parseCodebook(protocol.Data)
	if !anyEncrypted(attrs, codebook) {
		return attrs, nil
	}

	passphrase, err := o.session.Passphrase(ctx)
	if err != nil {
		return nil, err
	}
	return crypto.DecryptAttributes(attrs, codebook, passphrase)
}

// seal encrypts the attributes the protocol codebook marks secure and
// returns the re-serialized object. Plain attributes pass through
// untouched, and no passphrase is requested when nothing needs sealing.
func (o *Orchestrator) seal(ctx context.Context, protocol *storage.Protocol, data json.RawMessage) (json.RawMessage, error) {
	attrs, err := unmarshalAttributes(data)
	if err != nil {
		return nil, err
	}

	codebook := parseCodebook(protocol.Data)
	if !anyEncrypted(attrs, codebook) {
		return data, nil
	}

	passphrase, err := o.session.Passphrase(ctx)
	if err != nil {
		return nil, err
	}

	sealed, err := crypto.EncryptAttributes(attrs, codebook, passphrase)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealed)
}

// persist is the debouncer's flush target. Failures land in the store's
// error log through the failed write itself; there is no caller left to
// return them to.
func (o *Orchestrator) persist(id string, data []byte) {
	ctx := context.Background()

	iv, err := o.store.GetInterview(ctx, id)
	if err != nil {
		o.log.WithError(err).WithField("interview_id", id).Warn("coalesced write dropped")
		return
	}

	iv.Data = data
	iv.SyncStatus = storage.SyncStatusPending
	if err := o.store.UpdateInterview(ctx, iv); err != nil {
		o.log.WithError(err).WithField("interview_id", id).Warn("coalesced write failed")
		return
	}

	o.post(broadcast.InterviewUpdated(id))
}

func (o *Orchestrator) post(msg broadcast.Message) {
	if o.coordinator != nil {
		o.coordinator.Post(msg)
	}
}

func unmarshalAttributes(data json.RawMessage) (map[string]json.RawMessage, error) {
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("interview data is not a JSON object: %w", err)
	}
	if attrs == nil {
		attrs = map[string]json.RawMessage{}
	}
	return attrs, nil
}

// mergeAttributes overlays patch onto base at the top-level key
// granularity. Values are replaced whole, never merged recursively.
func mergeAttributes(base, patch json.RawMessage) (json.RawMessage, error) {
	baseAttrs, err := unmarshalAttributes(base)
	if err != nil {
		return nil, err
	}
	patchAttrs, err := unmarshalAttributes(patch)
	if err != nil {
		return nil, err
	}

	for key, value := range patchAttrs {
		baseAttrs[key] = value
	}
	return json.Marshal(baseAttrs)
}
