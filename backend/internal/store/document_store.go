package store

import (
	"errors"
	"fmt"
	"sync"

	"collabEngine/backend/internal/ot"
)

var (
	ErrSessionNotFound = errors.New("SESSION_NOT_FOUND")
	ErrOutOfBounds     = errors.New("OPERATION_OUT_OF_BOUNDS")
)

// DocumentState is a point-in-time snapshot of one session's document.
// Version starts at 0 and increases by exactly 1 per committed operation.
type DocumentState struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	Version   uint64 `json:"version"`
}

// docState is the authoritative per-session document. Its mutex serializes
// every mutation for that session; the store-level lock only guards the map.
type docState struct {
	mu      sync.Mutex
	buf     *PieceTable
	version uint64
	log     []ot.Operation
}

// DocumentStore owns all in-memory document state, keyed by session id.
// Content is volatile by design; durability is the snapshot store's concern
// and is never consulted for correctness.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*docState
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*docState)}
}

// Initialize creates an empty document for the session. A second call resets
// existing state, so callers guard against double-initialization (the
// coordinator checks Has first).
func (s *DocumentStore) Initialize(sessionID string) DocumentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[sessionID] = &docState{buf: NewPieceTable("")}
	return DocumentState{SessionID: sessionID}
}

// Has reports whether the session's document exists.
func (s *DocumentStore) Has(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[sessionID] != nil
}

func (s *DocumentStore) get(sessionID string) (*docState, error) {
	s.mu.RLock()
	ds := s.docs[sessionID]
	s.mu.RUnlock()
	if ds == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return ds, nil
}

// GetState returns the current snapshot. An uninitialized session is an
// error, distinct from a real empty document at version 0.
func (s *DocumentStore) GetState(sessionID string) (DocumentState, error) {
	ds, err := s.get(sessionID)
	if err != nil {
		return DocumentState{}, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return DocumentState{SessionID: sessionID, Content: ds.buf.String(), Version: ds.version}, nil
}

// Length returns the current content length in runes.
func (s *DocumentStore) Length(sessionID string) (int, error) {
	ds, err := s.get(sessionID)
	if err != nil {
		return 0, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.buf.Len(), nil
}

// Append applies the (already transformed) operation, increments the version
// and logs the operation with serverSequence equal to the new version. Out of
// bounds positions are rejected with no mutation performed.
func (s *DocumentStore) Append(sessionID string, op ot.Operation) (DocumentState, ot.Operation, error) {
	ds, err := s.get(sessionID)
	if err != nil {
		return DocumentState{}, op, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()

	docLen := ds.buf.Len()
	switch op.Kind {
	case ot.KindInsert:
		if op.Position < 0 || op.Position > docLen {
			return DocumentState{}, op, fmt.Errorf("%w: insert at %d, content length %d", ErrOutOfBounds, op.Position, docLen)
		}
		ds.buf.Insert(op.Position, op.Content)
	case ot.KindDelete:
		if op.Position < 0 || op.Position+op.Length > docLen {
			return DocumentState{}, op, fmt.Errorf("%w: delete [%d,%d), content length %d", ErrOutOfBounds, op.Position, op.Position+op.Length, docLen)
		}
		ds.buf.Delete(op.Position, op.Length)
	default:
		return DocumentState{}, op, fmt.Errorf("%w: %q", ot.ErrUnknownKind, op.Kind)
	}

	ds.version++
	op.SessionID = sessionID
	op.ServerSeq = ds.version
	ds.log = append(ds.log, op)

	return DocumentState{SessionID: sessionID, Content: ds.buf.String(), Version: ds.version}, op, nil
}

// OperationsSince returns, in serverSequence order, every committed operation
// with serverSequence > version. A client at the current version gets nil.
func (s *DocumentStore) OperationsSince(sessionID string, version uint64) ([]ot.Operation, error) {
	ds, err := s.get(sessionID)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if version >= ds.version {
		return nil, nil
	}
	// serverSequence is dense from 1, so the slice index is the version.
	out := make([]ot.Operation, ds.version-version)
	copy(out, ds.log[version:])
	return out, nil
}

// Remove discards the session's document. Called by session disposal after
// the empty-session grace period.
func (s *DocumentStore) Remove(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, sessionID)
}
