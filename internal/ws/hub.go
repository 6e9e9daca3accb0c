package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SamWang8891/clippy/internal/metrics"
	"github.com/SamWang8891/clippy/internal/session"
)

// Hub 维护 (session, user) 到活跃连接的映射并负责事件扇出。
// 同一个 (session, user) 至多一条活跃连接，新连接顶替旧连接
// （reconnect-replace）。Hub 从不修改会话状态，断线经过宽限期
// 后才回调注册表摘除成员。
type Hub struct {
	reg   *session.Registry
	grace time.Duration

	mu       sync.Mutex
	sessions map[string]map[string]*Client
	pending  map[string]map[string]*time.Timer
}

func NewHub(reg *session.Registry, grace time.Duration) *Hub {
	return &Hub{
		reg:      reg,
		grace:    grace,
		sessions: make(map[string]map[string]*Client),
		pending:  make(map[string]map[string]*time.Timer),
	}
}

// Register 登记一条新连接。同一用户的旧连接被关闭，挂起的
// 宽限期移除被取消，客户端自动重连因此不会产生加入/离开抖动。
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if timers := h.pending[c.sessionID]; timers != nil {
		if t := timers[c.userID]; t != nil {
			t.Stop()
			delete(timers, c.userID)
		}
	}
	clients := h.sessions[c.sessionID]
	if clients == nil {
		clients = make(map[string]*Client)
		h.sessions[c.sessionID] = clients
	}
	if prev := clients[c.userID]; prev != nil {
		h.closeClientLocked(prev)
	}
	clients[c.userID] = c
	metrics.WsConnections.Inc()
	h.mu.Unlock()
}

// Unregister 在连接关闭（读泵退出、心跳超时）时调用。只有仍是
// 当前连接的客户端才会触发宽限期计时；被顶替的旧连接在这里
// 不产生任何副作用。
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	clients := h.sessions[c.sessionID]
	if clients == nil || clients[c.userID] != c {
		h.mu.Unlock()
		return
	}
	delete(clients, c.userID)
	if len(clients) == 0 {
		delete(h.sessions, c.sessionID)
	}
	h.closeClientLocked(c)
	h.scheduleRemovalLocked(c.sessionID, c.userID)
	h.mu.Unlock()
}

// closeClientLocked 关闭客户端的发送通道，调用方必须持有 h.mu。
func (h *Hub) closeClientLocked(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	metrics.WsConnections.Dec()
}

func (h *Hub) scheduleRemovalLocked(sessionID, userID string) {
	timers := h.pending[sessionID]
	if timers == nil {
		timers = make(map[string]*time.Timer)
		h.pending[sessionID] = timers
	}
	if t := timers[userID]; t != nil {
		t.Stop()
	}
	timers[userID] = time.AfterFunc(h.grace, func() {
		h.removeAfterGrace(sessionID, userID)
	})
}

// removeAfterGrace 在宽限期结束后把掉线成员从会话里摘除，
// 并向剩余成员广播 user_left；如果走了的是 host，还会广播
// 提升产生的 host_transferred。
func (h *Hub) removeAfterGrace(sessionID, userID string) {
	h.mu.Lock()
	if timers := h.pending[sessionID]; timers != nil {
		delete(timers, userID)
		if len(timers) == 0 {
			delete(h.pending, sessionID)
		}
	}
	if clients := h.sessions[sessionID]; clients != nil && clients[userID] != nil {
		// 宽限期内重连成功
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	sess, err := h.reg.Get(sessionID)
	if err != nil {
		return
	}
	removed, promoted, empty := sess.RemoveUser(userID)
	if removed.ID == "" {
		return
	}
	log.Info().Str("session_id", sessionID).Str("user_id", userID).Bool("empty", empty).Msg("member removed after disconnect grace")
	h.Broadcast(sessionID, UserLeft(userID), "")
	if promoted != nil {
		h.Broadcast(sessionID, HostTransferred(promoted.ID), "")
	}
	// 空会话留给清扫任务处理，以便短暂的整页重载也能恢复
}

// Broadcast 把事件序列化一次后投递给会话的所有连接（可选排除
// 一个用户）。投递绝不阻塞：发送缓冲打满的慢连接被立即关闭，
// 其余接收者不受影响。
func (h *Hub) Broadcast(sessionID string, e Event, excludeUserID string) {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("marshal event")
		return
	}
	metrics.EventsTotal.WithLabelValues(string(e.Type)).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, c := range h.sessions[sessionID] {
		if excludeUserID != "" && userID == excludeUserID {
			continue
		}
		select {
		case c.send <- payload:
		default:
			log.Warn().Str("session_id", sessionID).Str("user_id", userID).Msg("slow websocket client dropped")
			delete(h.sessions[sessionID], userID)
			h.closeClientLocked(c)
			h.scheduleRemovalLocked(sessionID, userID)
		}
	}
}

// CloseSession 关闭会话的全部连接并取消挂起的宽限期计时，
// 用于显式销毁与超时回收。
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	for _, c := range h.sessions[sessionID] {
		h.closeClientLocked(c)
	}
	delete(h.sessions, sessionID)
	for _, t := range h.pending[sessionID] {
		t.Stop()
	}
	delete(h.pending, sessionID)
	h.mu.Unlock()
}

// Online 返回会话当前的连接数，供 REST 接口与指标复用。
func (h *Hub) Online(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}
