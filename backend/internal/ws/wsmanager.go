package ws

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"collabEngine/backend/internal/collab"
	"collabEngine/backend/internal/ot"
	"collabEngine/backend/internal/registry"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	hub *Hub
	reg *registry.Registry
	svc collab.Service
	sem *collab.SemaphoreControl
}

func NewManager(hub *Hub, reg *registry.Registry, svc collab.Service, sem *collab.SemaphoreControl) *Manager {
	return &Manager{hub: hub, reg: reg, svc: svc, sem: sem}
}

// WebSocketConnect drives a connection through its whole lifecycle:
// Connecting (identity check) -> Authenticated (registered) -> Joined
// (snapshot delivered, room membership) -> Disconnected on read-loop exit.
// An identity failure refuses the connection immediately, no retry.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetString("userId")
	username := c.GetString("username")
	sessionID := c.Query("sessionId")
	if userID == "" || username == "" || sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    collab.CodeAuthFailed,
			"message": "userId, sessionId and username are required",
		})
		return
	}

	ctx := c.Request.Context()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, m.reg, m.svc, m.sem, sessionID, userID, username)

	// Refusals below write their single failure ack synchronously; the write
	// loop only starts once the connection is accepted, so there is no send
	// channel left open (and no goroutine left behind) on the early returns.
	if err := m.reg.Register(ctx, userID, sessionID, username); err != nil {
		ee := collab.Classify(err)
		_ = conn.WriteJSON(AckMessage{Type: MsgAck, RequestType: "connect", Success: false,
			Error: &ErrorPayload{Code: ee.Code, Message: ee.Error()}})
		wsConn.state = StateDisconnected
		return
	}
	wsConn.state = StateAuthenticated

	state, err := m.svc.EnsureSession(ctx, sessionID)
	if err != nil {
		ee := collab.Classify(err)
		_ = conn.WriteJSON(AckMessage{Type: MsgAck, RequestType: "connect", Success: false,
			Error: &ErrorPayload{Code: ee.Code, Message: ee.Error()}})
		m.reg.Unregister(ctx, userID, sessionID)
		wsConn.state = StateDisconnected
		return
	}

	go wsConn.writeLoop()

	// Late joiners that tell us their last known version get the delta along
	// with the snapshot. A sync failure degrades to snapshot-only.
	var missed []ot.Operation
	if raw := c.Query("clientVersion"); raw != "" {
		if v, perr := strconv.ParseUint(raw, 10, 64); perr == nil {
			var serr error
			if _, missed, serr = m.svc.Sync(ctx, sessionID, v); serr != nil {
				log.Printf("late-join sync failed (user=%s session=%s): %v", userID, sessionID, serr)
			}
		}
	}

	m.hub.Join(sessionID, wsConn)
	wsConn.state = StateJoined
	wsConn.Enqueue(SessionStateMessage{
		Type:      MsgSessionState,
		Users:     m.reg.Presence(sessionID),
		Document:  state,
		MissedOps: missed,
	})
	m.hub.Broadcast(sessionID, wsConn, UserJoinedMessage{
		Type: MsgUserJoined,
		User: registry.UserPresence{UserID: userID, Username: username, SessionID: sessionID, Status: registry.StatusActive},
	})

	wsConn.readLoop(ctx)

	// The request context is gone once the read loop exits; teardown gets its
	// own. user-left goes out only when this was the user's last connection.
	wsConn.state = StateDisconnected
	m.hub.Leave(sessionID, wsConn)
	if m.reg.Unregister(context.Background(), userID, sessionID) {
		m.hub.Broadcast(sessionID, nil, UserLeftMessage{Type: MsgUserLeft, UserID: userID})
	}
}
