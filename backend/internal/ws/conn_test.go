package ws

import (
	"context"
	"testing"

	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/registry"
	"collabEngine/backend/internal/store"
)

func newTestCoordinator(t *testing.T) (*Hub, *Conn, *Conn) {
	t.Helper()
	hub := NewHub()
	reg := registry.New(registry.Config{}, nil)
	svc := collab.NewEngine(store.NewDocumentStore(), nil, nil)
	sem := collab.NewSemaphoreControl(10)

	ctx := context.Background()
	if _, err := svc.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if err := reg.Register(ctx, "u1", "s1", "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(ctx, "u2", "s1", "bob"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	alice := NewConn(nil, hub, reg, svc, sem, "s1", "u1", "alice")
	bob := NewConn(nil, hub, reg, svc, sem, "s1", "u2", "bob")
	hub.Join("s1", alice)
	hub.Join("s1", bob)
	return hub, alice, bob
}

func lastAck(t *testing.T, msgs []OutboundMessage) AckMessage {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if ack, ok := msgs[i].(AckMessage); ok {
			return ack
		}
	}
	t.Fatalf("no ack in %v", msgs)
	return AckMessage{}
}

func TestHandleOperation_AcksSenderAndBroadcastsToOthers(t *testing.T) {
	_, alice, bob := newTestCoordinator(t)

	alice.handleMessage(context.Background(), ClientMessage{
		Type:      MsgDocumentOperation,
		Operation: &OperationPayload{Kind: "insert", Position: 0, Content: "Hello", BaseVersion: 0},
	})

	ack := lastAck(t, drain(alice))
	if !ack.Success {
		t.Fatalf("ack = %+v, want success", ack)
	}
	if ack.DocumentState == nil || ack.DocumentState.Content != "Hello" || ack.DocumentState.Version != 1 {
		t.Fatalf("ack state = %+v, want Hello at version 1", ack.DocumentState)
	}
	if ack.Operation == nil || ack.Operation.ServerSeq != 1 {
		t.Fatalf("ack operation = %+v, want serverSeq 1", ack.Operation)
	}

	bobMsgs := drain(bob)
	if len(bobMsgs) != 1 {
		t.Fatalf("bob received %d messages, want 1", len(bobMsgs))
	}
	applied, ok := bobMsgs[0].(OpAppliedMessage)
	if !ok || applied.Type != MsgOpApplied {
		t.Fatalf("bob message = %+v, want %s", bobMsgs[0], MsgOpApplied)
	}
	if applied.DocumentState.Content != "Hello" {
		t.Fatalf("broadcast content = %q, want %q", applied.DocumentState.Content, "Hello")
	}
}

func TestHandleOperation_OutOfBoundsFailureCarriesState(t *testing.T) {
	_, alice, bob := newTestCoordinator(t)

	alice.handleMessage(context.Background(), ClientMessage{
		Type:      MsgDocumentOperation,
		Operation: &OperationPayload{Kind: "delete", Position: 0, Length: 10, BaseVersion: 0},
	})

	ack := lastAck(t, drain(alice))
	if ack.Success {
		t.Fatalf("ack = %+v, want failure", ack)
	}
	if ack.Error == nil || ack.Error.Code != collab.CodeInvalidOperation {
		t.Fatalf("ack error = %+v, want %s", ack.Error, collab.CodeInvalidOperation)
	}
	if ack.DocumentState == nil {
		t.Fatal("out-of-bounds failure ack should carry the authoritative state for resync")
	}

	// failures stay with the originating client
	if got := drain(bob); len(got) != 0 {
		t.Fatalf("bob received %d messages on alice's failure, want 0", len(got))
	}
}

func TestHandleMessage_UnknownTypeGetsValidationAck(t *testing.T) {
	_, alice, _ := newTestCoordinator(t)

	alice.handleMessage(context.Background(), ClientMessage{Type: "rename-document"})

	ack := lastAck(t, drain(alice))
	if ack.Success || ack.Error == nil || ack.Error.Code != collab.CodeValidationFailed {
		t.Fatalf("ack = %+v, want %s failure", ack, collab.CodeValidationFailed)
	}
}

func TestHandleSync_ReturnsMissedOperations(t *testing.T) {
	_, alice, bob := newTestCoordinator(t)

	alice.handleMessage(context.Background(), ClientMessage{
		Type:      MsgDocumentOperation,
		Operation: &OperationPayload{Kind: "insert", Position: 0, Content: "abc", BaseVersion: 0},
	})
	drain(alice)
	drain(bob)

	var zero uint64
	bob.handleMessage(context.Background(), ClientMessage{Type: MsgSyncRequest, ClientVersion: &zero})
	ack := lastAck(t, drain(bob))
	if !ack.Success || len(ack.Operations) != 1 {
		t.Fatalf("sync ack = %+v, want one missed operation", ack)
	}

	one := uint64(1)
	bob.handleMessage(context.Background(), ClientMessage{Type: MsgSyncRequest, ClientVersion: &one})
	ack = lastAck(t, drain(bob))
	if !ack.Success || len(ack.Operations) != 0 {
		t.Fatalf("sync ack at current version = %+v, want zero missed operations", ack)
	}
}

func TestHandleBatch_SingleAckForWholeBatch(t *testing.T) {
	_, alice, bob := newTestCoordinator(t)

	alice.handleMessage(context.Background(), ClientMessage{
		Type: MsgBatchOperations,
		Operations: []OperationPayload{
			{Kind: "insert", Position: 0, Content: "Hello", BaseVersion: 0},
			{Kind: "insert", Position: 5, Content: " World", BaseVersion: 0},
		},
	})

	aliceMsgs := drain(alice)
	acks := 0
	for _, m := range aliceMsgs {
		if _, ok := m.(AckMessage); ok {
			acks++
		}
	}
	if acks != 1 {
		t.Fatalf("alice received %d acks, want exactly 1", acks)
	}
	ack := lastAck(t, aliceMsgs)
	if !ack.Success || ack.DocumentState.Content != "Hello World" {
		t.Fatalf("batch ack = %+v, want %q", ack, "Hello World")
	}

	bobMsgs := drain(bob)
	if len(bobMsgs) != 1 {
		t.Fatalf("bob received %d messages, want 1", len(bobMsgs))
	}
	if _, ok := bobMsgs[0].(BatchAppliedMessage); !ok {
		t.Fatalf("bob message = %+v, want BatchAppliedMessage", bobMsgs[0])
	}
}

func TestHandleHeartbeat_Acked(t *testing.T) {
	_, alice, _ := newTestCoordinator(t)

	alice.handleMessage(context.Background(), ClientMessage{Type: MsgHeartbeat})
	ack := lastAck(t, drain(alice))
	if !ack.Success || ack.RequestType != MsgHeartbeat {
		t.Fatalf("heartbeat ack = %+v, want success", ack)
	}
}
