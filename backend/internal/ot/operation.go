package ot

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

var (
	ErrUnknownKind = errors.New("UNKNOWN_OPERATION_KIND")
	ErrOutOfBounds = errors.New("POSITION_OUT_OF_BOUNDS")
	ErrBadShape    = errors.New("MALFORMED_OPERATION")
)

// Operation is a single linear-text edit. Positions are rune offsets into the
// document content. Once an operation has been appended to a session log it is
// immutable; ServerSeq equals the document version its application produced.
type Operation struct {
	ID          string    `json:"operationId"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	Kind        Kind      `json:"kind"`
	Position    int       `json:"position"`
	Content     string    `json:"content,omitempty"` // insert only
	Length      int       `json:"length,omitempty"`  // delete only
	BaseVersion uint64    `json:"baseVersion"`
	ServerSeq   uint64    `json:"serverSeq,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Validate rejects malformed operations before any transform or apply runs.
func Validate(op Operation) error {
	switch op.Kind {
	case KindInsert:
		if op.Position < 0 {
			return fmt.Errorf("%w: insert position %d", ErrBadShape, op.Position)
		}
	case KindDelete:
		if op.Position < 0 || op.Length < 0 {
			return fmt.Errorf("%w: delete position %d length %d", ErrBadShape, op.Position, op.Length)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
	return nil
}

// Span is the number of runes an insert adds. Deletes report zero.
func (op Operation) Span() int {
	if op.Kind == KindInsert {
		return len([]rune(op.Content))
	}
	return 0
}

// IsNoop reports whether the operation no longer changes content. Deletes can
// degenerate to zero length after transformation against an overlapping delete.
func (op Operation) IsNoop() bool {
	switch op.Kind {
	case KindInsert:
		return op.Content == ""
	case KindDelete:
		return op.Length == 0
	}
	return true
}

// Apply splices op into content and returns the new content. Bounds are
// checked against the rune length; no partial application happens on error.
func Apply(content string, op Operation) (string, error) {
	r := []rune(content)
	switch op.Kind {
	case KindInsert:
		if op.Position < 0 || op.Position > len(r) {
			return "", fmt.Errorf("%w: insert at %d, content length %d", ErrOutOfBounds, op.Position, len(r))
		}
		out := make([]rune, 0, len(r)+len([]rune(op.Content)))
		out = append(out, r[:op.Position]...)
		out = append(out, []rune(op.Content)...)
		out = append(out, r[op.Position:]...)
		return string(out), nil
	case KindDelete:
		if op.Position < 0 || op.Position+op.Length > len(r) {
			return "", fmt.Errorf("%w: delete [%d,%d), content length %d", ErrOutOfBounds, op.Position, op.Position+op.Length, len(r))
		}
		out := make([]rune, 0, len(r)-op.Length)
		out = append(out, r[:op.Position]...)
		out = append(out, r[op.Position+op.Length:]...)
		return string(out), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}
}
