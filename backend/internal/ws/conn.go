package ws

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/ot"
	"collabEngine/backend/internal/registry"
)

// ConnState is the connection lifecycle: Connecting -> Authenticated ->
// Joined -> Disconnected. Disconnected is terminal; a reconnect is a fresh
// Conn plus a document-sync-request.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateJoined
	StateDisconnected
)

const submitTimeout = 200 * time.Millisecond

type Conn struct {
	ws  *websocket.Conn
	hub *Hub
	reg *registry.Registry
	svc collab.Service
	sem *collab.SemaphoreControl

	sessionID string
	userID    string
	username  string
	state     ConnState

	send chan OutboundMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, reg *registry.Registry, svc collab.Service, sem *collab.SemaphoreControl, sessionID, userID, username string) *Conn {
	return &Conn{
		ws:        ws,
		hub:       hub,
		reg:       reg,
		svc:       svc,
		sem:       sem,
		sessionID: sessionID,
		userID:    userID,
		username:  username,
		state:     StateConnecting,
		send:      make(chan OutboundMessage, 32),
	}
}

// Enqueue hands msg to the write loop. A full buffer drops the message
// rather than blocking the caller; clients recover through sync.
func (c *Conn) Enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer close(c.send)
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (user=%s session=%s): %v", c.userID, c.sessionID, err)
			return
		}
		c.handleMessage(ctx, msg)
	}
}

// handleMessage is the single dispatch point for the typed inbound union.
// Engine errors become failure acks to this client only; they never reach
// other members and never end the loop.
func (c *Conn) handleMessage(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case MsgDocumentOperation:
		c.handleOperation(ctx, msg)
	case MsgBatchOperations:
		c.handleBatch(ctx, msg)
	case MsgSyncRequest:
		c.handleSync(ctx, msg)
	case MsgHeartbeat:
		c.handleHeartbeat(ctx)
	case MsgCursor, MsgSelection:
		c.handlePresenceUpdate(ctx, msg)
	case MsgSaveDocument:
		c.handleSave(ctx)
	default:
		c.fail(msg.Type, &collab.EngineError{Code: collab.CodeValidationFailed, Message: "unknown message type"})
	}
}

func (c *Conn) toOperation(p OperationPayload) ot.Operation {
	return ot.Operation{
		SessionID:   c.sessionID,
		UserID:      c.userID,
		Kind:        ot.Kind(p.Kind),
		Position:    p.Position,
		Content:     p.Content,
		Length:      p.Length,
		BaseVersion: p.BaseVersion,
	}
}

func (c *Conn) handleOperation(ctx context.Context, msg ClientMessage) {
	if msg.Operation == nil {
		c.fail(MsgDocumentOperation, &collab.EngineError{Code: collab.CodeValidationFailed, Message: "missing operation"})
		return
	}
	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if err := c.sem.Acquire(submitCtx); err != nil {
		c.fail(MsgDocumentOperation, collab.Classify(err))
		return
	}
	defer c.sem.Release()

	applied, state, err := c.svc.Submit(submitCtx, c.sessionID, c.toOperation(*msg.Operation))
	if err != nil {
		c.fail(MsgDocumentOperation, collab.Classify(err))
		return
	}
	c.Enqueue(AckMessage{Type: MsgAck, RequestType: MsgDocumentOperation, Success: true, DocumentState: &state, Operation: &applied})
	c.hub.Broadcast(c.sessionID, c, OpAppliedMessage{Type: MsgOpApplied, Operation: applied, DocumentState: state})
}

func (c *Conn) handleBatch(ctx context.Context, msg ClientMessage) {
	if len(msg.Operations) == 0 {
		c.fail(MsgBatchOperations, &collab.EngineError{Code: collab.CodeValidationFailed, Message: "empty batch"})
		return
	}
	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	if err := c.sem.Acquire(submitCtx); err != nil {
		c.fail(MsgBatchOperations, collab.Classify(err))
		return
	}
	defer c.sem.Release()

	ops := make([]ot.Operation, len(msg.Operations))
	for i, p := range msg.Operations {
		ops[i] = c.toOperation(p)
	}
	applied, state, err := c.svc.SubmitBatch(submitCtx, c.sessionID, ops)
	if err != nil {
		c.fail(MsgBatchOperations, collab.Classify(err))
		return
	}
	c.Enqueue(AckMessage{Type: MsgAck, RequestType: MsgBatchOperations, Success: true, DocumentState: &state, Operations: applied})
	c.hub.Broadcast(c.sessionID, c, BatchAppliedMessage{Type: MsgBatchApplied, Operations: applied, DocumentState: state})
}

func (c *Conn) handleSync(ctx context.Context, msg ClientMessage) {
	var clientVersion uint64
	if msg.ClientVersion != nil {
		clientVersion = *msg.ClientVersion
	}
	state, missed, err := c.svc.Sync(ctx, c.sessionID, clientVersion)
	if err != nil {
		c.fail(MsgSyncRequest, collab.Classify(err))
		return
	}
	c.Enqueue(AckMessage{Type: MsgAck, RequestType: MsgSyncRequest, Success: true, DocumentState: &state, Operations: missed})
}

func (c *Conn) handleHeartbeat(ctx context.Context) {
	if _, err := c.reg.Heartbeat(ctx, c.userID); err != nil {
		c.fail(MsgHeartbeat, collab.Classify(err))
		return
	}
	c.Enqueue(AckMessage{Type: MsgAck, RequestType: MsgHeartbeat, Success: true})
}

func (c *Conn) handlePresenceUpdate(ctx context.Context, msg ClientMessage) {
	if err := c.reg.UpdateCursor(ctx, c.userID, msg.Cursor, msg.Selection); err != nil {
		c.fail(msg.Type, collab.Classify(err))
		return
	}
	out := CursorMessage{Type: MsgCursorUpdate, UserID: c.userID, Cursor: msg.Cursor}
	if msg.Type == MsgSelection {
		out = CursorMessage{Type: MsgSelectionUpdate, UserID: c.userID, Selection: msg.Selection}
	}
	c.hub.Broadcast(c.sessionID, c, out)
}

func (c *Conn) handleSave(ctx context.Context) {
	if err := c.svc.SaveSnapshot(ctx, c.sessionID); err != nil {
		c.fail(MsgSaveDocument, collab.Classify(err))
		return
	}
	c.Enqueue(AckMessage{Type: MsgAck, RequestType: MsgSaveDocument, Success: true})
}

// fail sends the single failure acknowledgment for a request. Out-of-bounds
// rejections carry the current authoritative state so the client can resync.
func (c *Conn) fail(requestType string, ee *collab.EngineError) {
	ack := AckMessage{
		Type:        MsgAck,
		RequestType: requestType,
		Success:     false,
		Error:       &ErrorPayload{Code: ee.Code, Message: ee.Error()},
	}
	if ee.Code == collab.CodeInvalidOperation {
		if state, err := c.svc.State(context.Background(), c.sessionID); err == nil {
			ack.DocumentState = &state
		}
	}
	if ee.Code == collab.CodeInternal {
		log.Printf("internal error (user=%s session=%s): %v", c.userID, c.sessionID, ee.Err)
	}
	c.Enqueue(ack)
}
