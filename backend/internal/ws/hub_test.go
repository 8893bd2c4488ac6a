package ws

import "testing"

func testConn() *Conn {
	return NewConn(nil, nil, nil, nil, nil, "s1", "u1", "alice")
}

func drain(c *Conn) []OutboundMessage {
	var out []OutboundMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_BroadcastExcludesOriginator(t *testing.T) {
	h := NewHub()
	origin := testConn()
	other := testConn()
	h.Join("s1", origin)
	h.Join("s1", other)

	h.Broadcast("s1", origin, UserLeftMessage{Type: MsgUserLeft, UserID: "u2"})

	if got := drain(origin); len(got) != 0 {
		t.Fatalf("originator received %d messages, want 0", len(got))
	}
	got := drain(other)
	if len(got) != 1 {
		t.Fatalf("other received %d messages, want 1", len(got))
	}
	if got[0].MessageType() != MsgUserLeft {
		t.Fatalf("message type = %q, want %q", got[0].MessageType(), MsgUserLeft)
	}
}

func TestHub_BroadcastToEveryone(t *testing.T) {
	h := NewHub()
	a := testConn()
	b := testConn()
	h.Join("s1", a)
	h.Join("s1", b)

	h.Broadcast("s1", nil, StatusChangeMessage{Type: MsgUserStatus, UserID: "u1", Status: "idle"})

	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Fatal("both connections should receive the broadcast")
	}
}

func TestHub_LeaveRemovesEmptyRoom(t *testing.T) {
	h := NewHub()
	c := testConn()
	h.Join("s1", c)
	h.Leave("s1", c)

	h.Broadcast("s1", nil, UserLeftMessage{Type: MsgUserLeft, UserID: "u1"})
	if got := drain(c); len(got) != 0 {
		t.Fatalf("left connection received %d messages, want 0", len(got))
	}
}

func TestHub_SessionsAreIsolated(t *testing.T) {
	h := NewHub()
	a := testConn()
	b := testConn()
	h.Join("s1", a)
	h.Join("s2", b)

	h.Broadcast("s1", nil, UserJoinedMessage{Type: MsgUserJoined})

	if len(drain(a)) != 1 {
		t.Fatal("s1 member should receive the broadcast")
	}
	if len(drain(b)) != 0 {
		t.Fatal("s2 member should not receive an s1 broadcast")
	}
}
