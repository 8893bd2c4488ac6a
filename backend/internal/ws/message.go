package ws

import (
	"encoding/json"

	"collabEngine/backend/internal/ot"
	"collabEngine/backend/internal/registry"
	"collabEngine/backend/internal/store"
)

// Inbound message types. Everything a client sends is one ClientMessage
// shape dispatched by a single switch in Conn.handleMessage.
const (
	MsgDocumentOperation = "document-operation"
	MsgBatchOperations   = "batch-operations"
	MsgSyncRequest       = "document-sync-request"
	MsgHeartbeat         = "heartbeat"
	MsgCursor            = "cursor"
	MsgSelection         = "selection"
	MsgSaveDocument      = "save-document"
)

// Outbound message types.
const (
	MsgAck             = "ack"
	MsgSessionState    = "session-state"
	MsgUserJoined      = "user-joined"
	MsgUserLeft        = "user-left"
	MsgOpApplied       = "document-operation-applied"
	MsgBatchApplied    = "batch-operations-applied"
	MsgUserStatus      = "user-status-change"
	MsgCursorUpdate    = "cursor-update"
	MsgSelectionUpdate = "selection-update"
)

type OperationPayload struct {
	Kind        string `json:"kind"`
	Position    int    `json:"position"`
	Content     string `json:"content,omitempty"`
	Length      int    `json:"length,omitempty"`
	BaseVersion uint64 `json:"baseVersion"`
}

type ClientMessage struct {
	Type          string             `json:"type"`
	Operation     *OperationPayload  `json:"operation,omitempty"`
	Operations    []OperationPayload `json:"operations,omitempty"`
	ClientVersion *uint64            `json:"clientVersion,omitempty"`
	Cursor        json.RawMessage    `json:"cursor,omitempty"`
	Selection     json.RawMessage    `json:"selection,omitempty"`
}

// OutboundMessage is anything the write loop can serialize to the client.
type OutboundMessage interface {
	MessageType() string
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AckMessage is the single acknowledgment every inbound mutation request
// receives, success or failure. An out-of-bounds failure carries the current
// authoritative state so the client can resync.
type AckMessage struct {
	Type          string               `json:"type"` // always "ack"
	RequestType   string               `json:"requestType"`
	Success       bool                 `json:"success"`
	DocumentState *store.DocumentState `json:"documentState,omitempty"`
	Operation     *ot.Operation        `json:"operation,omitempty"`
	Operations    []ot.Operation       `json:"operations,omitempty"`
	Error         *ErrorPayload        `json:"error,omitempty"`
}

// SessionStateMessage is delivered once on join: presence list, document
// snapshot and (for reconnects that supplied a clientVersion) the missed log.
type SessionStateMessage struct {
	Type      string                  `json:"type"` // "session-state"
	Users     []registry.UserPresence `json:"users"`
	Document  store.DocumentState     `json:"document"`
	MissedOps []ot.Operation          `json:"missedOperations,omitempty"`
}

type UserJoinedMessage struct {
	Type string                `json:"type"` // "user-joined"
	User registry.UserPresence `json:"user"`
}

type UserLeftMessage struct {
	Type   string `json:"type"` // "user-left"
	UserID string `json:"userId"`
}

type OpAppliedMessage struct {
	Type          string              `json:"type"` // "document-operation-applied"
	Operation     ot.Operation        `json:"operation"`
	DocumentState store.DocumentState `json:"documentState"`
}

type BatchAppliedMessage struct {
	Type          string              `json:"type"` // "batch-operations-applied"
	Operations    []ot.Operation      `json:"operations"`
	DocumentState store.DocumentState `json:"documentState"`
}

type StatusChangeMessage struct {
	Type   string          `json:"type"` // "user-status-change"
	UserID string          `json:"userId"`
	Status registry.Status `json:"status"`
}

type CursorMessage struct {
	Type      string          `json:"type"` // "cursor-update" / "selection-update"
	UserID    string          `json:"userId"`
	Cursor    json.RawMessage `json:"cursor,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

func (m AckMessage) MessageType() string          { return m.Type }
func (m SessionStateMessage) MessageType() string { return m.Type }
func (m UserJoinedMessage) MessageType() string   { return m.Type }
func (m UserLeftMessage) MessageType() string     { return m.Type }
func (m OpAppliedMessage) MessageType() string    { return m.Type }
func (m BatchAppliedMessage) MessageType() string { return m.Type }
func (m StatusChangeMessage) MessageType() string { return m.Type }
func (m CursorMessage) MessageType() string       { return m.Type }
