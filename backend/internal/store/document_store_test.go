package store

import (
	"errors"
	"testing"

	"collabEngine/backend/internal/ot"
)

func TestDocumentStore_GetStateDistinguishesMissing(t *testing.T) {
	s := NewDocumentStore()
	if _, err := s.GetState("s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("GetState() error = %v, want ErrSessionNotFound", err)
	}

	s.Initialize("s1")
	state, err := s.GetState("s1")
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Content != "" || state.Version != 0 {
		t.Fatalf("fresh state = %+v, want empty content at version 0", state)
	}
}

func TestDocumentStore_AppendIncrementsVersionByOne(t *testing.T) {
	s := NewDocumentStore()
	s.Initialize("s1")

	var last uint64
	for i, text := range []string{"a", "b", "c"} {
		state, applied, err := s.Append("s1", ot.Operation{Kind: ot.KindInsert, Position: i, Content: text})
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if state.Version != last+1 {
			t.Fatalf("version = %d, want %d", state.Version, last+1)
		}
		if applied.ServerSeq != state.Version {
			t.Fatalf("serverSeq = %d, want %d", applied.ServerSeq, state.Version)
		}
		last = state.Version
	}

	state, _ := s.GetState("s1")
	if state.Content != "abc" {
		t.Fatalf("content = %q, want %q", state.Content, "abc")
	}
}

func TestDocumentStore_AppendRejectsOutOfBoundsWithoutMutation(t *testing.T) {
	s := NewDocumentStore()
	s.Initialize("s1")
	if _, _, err := s.Append("s1", ot.Operation{Kind: ot.KindInsert, Position: 0, Content: "abc"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	cases := []ot.Operation{
		{Kind: ot.KindInsert, Position: 4, Content: "x"},
		{Kind: ot.KindDelete, Position: 2, Length: 5},
		{Kind: ot.KindDelete, Position: -1, Length: 1},
	}
	for _, op := range cases {
		if _, _, err := s.Append("s1", op); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("Append(%+v) error = %v, want ErrOutOfBounds", op, err)
		}
	}

	state, _ := s.GetState("s1")
	if state.Content != "abc" || state.Version != 1 {
		t.Fatalf("state after rejections = %+v, want abc at version 1", state)
	}
}

func TestDocumentStore_OperationsSinceWindow(t *testing.T) {
	s := NewDocumentStore()
	s.Initialize("s1")
	for i := 0; i < 4; i++ {
		if _, _, err := s.Append("s1", ot.Operation{Kind: ot.KindInsert, Position: i, Content: "x"}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	ops, err := s.OperationsSince("s1", 1)
	if err != nil {
		t.Fatalf("OperationsSince() error = %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("len(ops) = %d, want 3", len(ops))
	}
	for i, op := range ops {
		if want := uint64(i + 2); op.ServerSeq != want {
			t.Fatalf("ops[%d].ServerSeq = %d, want %d", i, op.ServerSeq, want)
		}
	}

	// a client at the current version has nothing to catch up on
	ops, err = s.OperationsSince("s1", 4)
	if err != nil {
		t.Fatalf("OperationsSince() error = %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("len(ops) = %d, want 0", len(ops))
	}
}

func TestDocumentStore_Remove(t *testing.T) {
	s := NewDocumentStore()
	s.Initialize("s1")
	s.Remove("s1")
	if s.Has("s1") {
		t.Fatal("Has() = true after Remove")
	}
}

func TestDocumentStore_InitializeResets(t *testing.T) {
	s := NewDocumentStore()
	s.Initialize("s1")
	if _, _, err := s.Append("s1", ot.Operation{Kind: ot.KindInsert, Position: 0, Content: "abc"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	s.Initialize("s1")
	state, _ := s.GetState("s1")
	if state.Content != "" || state.Version != 0 {
		t.Fatalf("state after re-Initialize = %+v, want reset", state)
	}
}
