package ot

import (
	"errors"
	"testing"
)

func TestValidate_RejectsUnknownKind(t *testing.T) {
	op := Operation{ID: "1", UserID: "alice", Kind: "replace", Position: 0}
	if err := Validate(op); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("Validate() error = %v, want ErrUnknownKind", err)
	}
}

func TestValidate_RejectsNegativeFields(t *testing.T) {
	cases := []Operation{
		{Kind: KindInsert, Position: -1, Content: "x"},
		{Kind: KindDelete, Position: 0, Length: -2},
		{Kind: KindDelete, Position: -3, Length: 1},
	}
	for _, op := range cases {
		if err := Validate(op); !errors.Is(err, ErrBadShape) {
			t.Fatalf("Validate(%+v) error = %v, want ErrBadShape", op, err)
		}
	}
}

func TestApply_Insert(t *testing.T) {
	got, err := Apply("Hello world", Operation{Kind: KindInsert, Position: 5, Content: " collaborative"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if want := "Hello collaborative world"; got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}

func TestApply_Delete(t *testing.T) {
	got, err := Apply("Hello collaborative world", Operation{Kind: KindDelete, Position: 5, Length: 14})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if want := "Hello world"; got != want {
		t.Fatalf("Apply() = %q, want %q", got, want)
	}
}

func TestApply_OutOfBounds(t *testing.T) {
	if _, err := Apply("abc", Operation{Kind: KindInsert, Position: 4, Content: "x"}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("insert past end error = %v, want ErrOutOfBounds", err)
	}
	if _, err := Apply("abc", Operation{Kind: KindDelete, Position: 2, Length: 2}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("delete past end error = %v, want ErrOutOfBounds", err)
	}
}
