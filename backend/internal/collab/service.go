package collab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"collabEngine/backend/internal/ot"
	"collabEngine/backend/internal/store"
)

// Service is the engine boundary the coordinator talks to. Per-session
// mutations are strictly serialized; independent sessions run in parallel.
type Service interface {
	// EnsureSession initializes the session's document if it does not exist
	// yet and returns the current state. Existing documents are never reset.
	EnsureSession(ctx context.Context, sessionID string) (store.DocumentState, error)

	// Submit transforms the operation against everything committed since its
	// base version, applies it and returns the applied form plus new state.
	Submit(ctx context.Context, sessionID string, op ot.Operation) (ot.Operation, store.DocumentState, error)

	// SubmitBatch adjusts the batch internally, integrates it against the log
	// and applies it in order. On failure the already-applied prefix stands
	// (committed operations are never rewound) and the error names the index.
	SubmitBatch(ctx context.Context, sessionID string, ops []ot.Operation) ([]ot.Operation, store.DocumentState, error)

	// Sync returns the authoritative snapshot plus every operation the client
	// at clientVersion has missed. At the current version the slice is empty.
	Sync(ctx context.Context, sessionID string, clientVersion uint64) (store.DocumentState, []ot.Operation, error)

	State(ctx context.Context, sessionID string) (store.DocumentState, error)
	CurrentVersion(ctx context.Context, sessionID string) (uint64, error)

	// SaveSnapshot persists the current content best-effort. No-op without a
	// snapshot store.
	SaveSnapshot(ctx context.Context, sessionID string) error

	// DisposeSession snapshots (best-effort) and discards the document.
	DisposeSession(ctx context.Context, sessionID string)
}

type engine struct {
	docs      *store.DocumentStore
	snapshots *store.SnapshotStore // optional
	events    *KafkaDispatcher     // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(docs *store.DocumentStore, snapshots *store.SnapshotStore, events *KafkaDispatcher) Service {
	return &engine{
		docs:      docs,
		snapshots: snapshots,
		events:    events,
		locks:     make(map[string]*sync.Mutex),
	}
}

// sessionLock returns the serialization mutex for one session. Holding it
// across transform+append keeps the log read and the apply atomic.
func (e *engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l := e.locks[sessionID]
	if l == nil {
		l = &sync.Mutex{}
		e.locks[sessionID] = l
	}
	return l
}

func (e *engine) EnsureSession(ctx context.Context, sessionID string) (store.DocumentState, error) {
	l := e.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()
	if !e.docs.Has(sessionID) {
		return e.docs.Initialize(sessionID), nil
	}
	return e.docs.GetState(sessionID)
}

func (e *engine) Submit(ctx context.Context, sessionID string, op ot.Operation) (ot.Operation, store.DocumentState, error) {
	if err := ot.Validate(op); err != nil {
		return op, store.DocumentState{}, err
	}
	stamp(&op)

	l := e.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	missed, err := e.docs.OperationsSince(sessionID, op.BaseVersion)
	if err != nil {
		return op, store.DocumentState{}, err
	}
	transformed := ot.TransformAgainst(op, missed)
	// A stale insert aimed at the end of the client's snapshot overshoots the
	// authoritative end once shifted; anchor it there instead of bouncing it.
	if len(missed) > 0 {
		docLen, lerr := e.docs.Length(sessionID)
		if lerr != nil {
			return op, store.DocumentState{}, lerr
		}
		transformed = ot.ClampStaleInsert(transformed, docLen)
	}
	state, applied, err := e.docs.Append(sessionID, transformed)
	if err != nil {
		return op, store.DocumentState{}, err
	}
	e.publish(ctx, applied)
	return applied, state, nil
}

func (e *engine) SubmitBatch(ctx context.Context, sessionID string, ops []ot.Operation) ([]ot.Operation, store.DocumentState, error) {
	for i, op := range ops {
		if err := ot.Validate(op); err != nil {
			return nil, store.DocumentState{}, fmt.Errorf("operation %d: %w", i, err)
		}
	}

	l := e.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	// The log slice each batch member integrates against is fixed before any
	// of them is appended: batch members were already adjusted against each
	// other by TransformBatch and must not be transformed against themselves.
	committed, err := e.docs.OperationsSince(sessionID, 0)
	if err != nil {
		return nil, store.DocumentState{}, err
	}

	adjusted := ot.TransformBatch(ops)
	applied := make([]ot.Operation, 0, len(adjusted))
	var state store.DocumentState
	for i, op := range adjusted {
		stamp(&op)
		op = ot.TransformAgainst(op, committed)
		// Every member after the first (and every member of a batch landing on
		// a non-empty log) has been transformed, so the end anchor applies.
		if len(committed) > 0 || i > 0 {
			docLen, lerr := e.docs.Length(sessionID)
			if lerr != nil {
				return applied, state, lerr
			}
			op = ot.ClampStaleInsert(op, docLen)
		}
		var appliedOp ot.Operation
		state, appliedOp, err = e.docs.Append(sessionID, op)
		if err != nil {
			return applied, state, fmt.Errorf("operation %d: %w", i, err)
		}
		applied = append(applied, appliedOp)
		e.publish(ctx, appliedOp)
	}
	return applied, state, nil
}

func (e *engine) Sync(ctx context.Context, sessionID string, clientVersion uint64) (store.DocumentState, []ot.Operation, error) {
	state, err := e.docs.GetState(sessionID)
	if err != nil {
		return store.DocumentState{}, nil, err
	}
	missed, err := e.docs.OperationsSince(sessionID, clientVersion)
	if err != nil {
		return store.DocumentState{}, nil, err
	}
	return state, missed, nil
}

func (e *engine) State(ctx context.Context, sessionID string) (store.DocumentState, error) {
	return e.docs.GetState(sessionID)
}

func (e *engine) CurrentVersion(ctx context.Context, sessionID string) (uint64, error) {
	state, err := e.docs.GetState(sessionID)
	if err != nil {
		return 0, err
	}
	return state.Version, nil
}

func (e *engine) SaveSnapshot(ctx context.Context, sessionID string) error {
	if e.snapshots == nil {
		return nil
	}
	state, err := e.docs.GetState(sessionID)
	if err != nil {
		return err
	}
	return e.snapshots.Save(ctx, state)
}

func (e *engine) DisposeSession(ctx context.Context, sessionID string) {
	if err := e.SaveSnapshot(ctx, sessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		log.Printf("snapshot on dispose failed (session=%s): %v", sessionID, err)
	}
	e.docs.Remove(sessionID)
	e.mu.Lock()
	delete(e.locks, sessionID)
	e.mu.Unlock()
}

// stamp fills server-assigned fields the client may omit.
func stamp(op *ot.Operation) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
}

func (e *engine) publish(ctx context.Context, op ot.Operation) {
	if e.events == nil {
		return
	}
	evt := DocOpEvent{
		EventType:   "OP_APPLIED",
		SessionID:   op.SessionID,
		OperationID: op.ID,
		UserID:      op.UserID,
		Kind:        string(op.Kind),
		Position:    op.Position,
		Content:     op.Content,
		Length:      op.Length,
		BaseVersion: op.BaseVersion,
		Version:     op.ServerSeq,
		AppliedAt:   op.Timestamp,
	}
	if err := e.events.Enqueue(ctx, evt); err != nil {
		log.Printf("op event enqueue failed (session=%s op=%s): %v", op.SessionID, op.ID, err)
	}
}
