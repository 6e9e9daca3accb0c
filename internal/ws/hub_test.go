package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/SamWang8891/clippy/internal/session"
)

func newFakeClient(sessionID, userID string, buf int) *Client {
	return &Client{
		send:      make(chan []byte, buf),
		sessionID: sessionID,
		userID:    userID,
	}
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case payload, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed while waiting for event")
		}
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return e
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHub_RegisterOnline(t *testing.T) {
	reg := session.NewRegistry(6)
	hub := NewHub(reg, time.Second)

	if hub.Online("nosuch") != 0 {
		t.Errorf("Online() for unknown session = %d, want 0", hub.Online("nosuch"))
	}

	c1 := newFakeClient("abc123", "u1", 4)
	c2 := newFakeClient("abc123", "u2", 4)
	hub.Register(c1)
	hub.Register(c2)

	if hub.Online("abc123") != 2 {
		t.Errorf("Online() = %d, want 2", hub.Online("abc123"))
	}

	hub.Unregister(c1)
	if hub.Online("abc123") != 1 {
		t.Errorf("Online() after unregister = %d, want 1", hub.Online("abc123"))
	}
}

func TestHub_RegisterSupersedesPrevious(t *testing.T) {
	reg := session.NewRegistry(6)
	hub := NewHub(reg, time.Second)

	old := newFakeClient("abc123", "u1", 4)
	hub.Register(old)
	fresh := newFakeClient("abc123", "u1", 4)
	hub.Register(fresh)

	// 旧连接被关闭，在线数不变
	if _, ok := <-old.send; ok {
		t.Error("superseded client's send channel not closed")
	}
	if hub.Online("abc123") != 1 {
		t.Errorf("Online() = %d, want 1", hub.Online("abc123"))
	}

	// 旧连接退出时的 Unregister 不得影响新连接
	hub.Unregister(old)
	if hub.Online("abc123") != 1 {
		t.Errorf("Online() after stale unregister = %d, want 1", hub.Online("abc123"))
	}

	hub.Broadcast("abc123", UserLeft("ghost"), "")
	if e := recvEvent(t, fresh); e.Type != EventUserLeft {
		t.Errorf("event type = %q, want %q", e.Type, EventUserLeft)
	}
}

func TestHub_BroadcastExcludes(t *testing.T) {
	reg := session.NewRegistry(6)
	hub := NewHub(reg, time.Second)

	actor := newFakeClient("abc123", "actor", 4)
	other := newFakeClient("abc123", "other", 4)
	hub.Register(actor)
	hub.Register(other)

	hub.Broadcast("abc123", JoinPermissionChanged(false), "actor")

	if e := recvEvent(t, other); e.Type != EventJoinPermissionChanged {
		t.Errorf("event type = %q, want %q", e.Type, EventJoinPermissionChanged)
	}
	select {
	case payload := <-actor.send:
		t.Errorf("excluded actor received event: %s", payload)
	default:
	}
}

func TestHub_BroadcastDropsSlowClient(t *testing.T) {
	reg := session.NewRegistry(6)
	hub := NewHub(reg, time.Hour)

	slow := newFakeClient("abc123", "slow", 1)
	slow.send <- []byte("backlog") // 缓冲打满
	ok := newFakeClient("abc123", "ok", 4)
	hub.Register(slow)
	hub.Register(ok)

	hub.Broadcast("abc123", UserLeft("ghost"), "")

	if hub.Online("abc123") != 1 {
		t.Errorf("Online() = %d, want 1 after slow client dropped", hub.Online("abc123"))
	}
	if e := recvEvent(t, ok); e.Type != EventUserLeft {
		t.Errorf("healthy client event type = %q, want %q", e.Type, EventUserLeft)
	}
	// 慢客户端的通道被关闭（先排掉积压消息）
	<-slow.send
	if _, open := <-slow.send; open {
		t.Error("slow client's send channel not closed")
	}
}

func TestHub_GraceRemovalPromotesHost(t *testing.T) {
	reg := session.NewRegistry(6)
	hub := NewHub(reg, 10*time.Millisecond)

	sess, host := reg.Create("Alice")
	_, bob, err := reg.Join(sess.ID, "Bob")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	hostClient := newFakeClient(sess.ID, host.ID, 4)
	bobClient := newFakeClient(sess.ID, bob.ID, 4)
	hub.Register(hostClient)
	hub.Register(bobClient)

	hub.Unregister(hostClient)

	left := recvEvent(t, bobClient)
	if left.Type != EventUserLeft || left.UserID != host.ID {
		t.Errorf("first event = %+v, want user_left for %q", left, host.ID)
	}
	transferred := recvEvent(t, bobClient)
	if transferred.Type != EventHostTransferred || transferred.NewHostID != bob.ID {
		t.Errorf("second event = %+v, want host_transferred to %q", transferred, bob.ID)
	}

	snap := sess.Snapshot()
	if len(snap.Users) != 1 || snap.HostID != bob.ID {
		t.Errorf("snapshot after grace = %+v, want only %q as host", snap, bob.ID)
	}
}

func TestHub_ReconnectWithinGraceCancelsRemoval(t *testing.T) {
	reg := session.NewRegistry(6)
	hub := NewHub(reg, 50*time.Millisecond)

	sess, host := reg.Create("Alice")
	c1 := newFakeClient(sess.ID, host.ID, 4)
	hub.Register(c1)
	hub.Unregister(c1)

	// 宽限期内重连
	c2 := newFakeClient(sess.ID, host.ID, 4)
	hub.Register(c2)

	time.Sleep(120 * time.Millisecond)

	snap := sess.Snapshot()
	if len(snap.Users) != 1 {
		t.Fatalf("users = %d, want member kept after reconnect", len(snap.Users))
	}
	select {
	case payload := <-c2.send:
		t.Errorf("unexpected event after reconnect: %s", payload)
	default:
	}
}

func TestHub_CloseSession(t *testing.T) {
	reg := session.NewRegistry(6)
	hub := NewHub(reg, time.Second)

	c1 := newFakeClient("abc123", "u1", 4)
	c2 := newFakeClient("abc123", "u2", 4)
	hub.Register(c1)
	hub.Register(c2)

	hub.CloseSession("abc123")

	if hub.Online("abc123") != 0 {
		t.Errorf("Online() = %d, want 0 after CloseSession", hub.Online("abc123"))
	}
	for _, c := range []*Client{c1, c2} {
		if _, open := <-c.send; open {
			t.Errorf("client %s send channel not closed", c.userID)
		}
	}
}
