package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SamWang8891/clippy/internal/config"
	"github.com/SamWang8891/clippy/internal/session"
)

// Client 是一条已登记的 WebSocket 连接。send 由 Hub 关闭，
// conn 由读写泵负责收尾。
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	sessionID string
	userID    string

	heartbeat time.Duration
	readWait  time.Duration

	// closed 由 hub.mu 保护
	closed bool
}

type inboundMessage struct {
	Type string `json:"type"`
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[o] = struct{}{}
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// Serve 处理 /ws/:session_id/:user_id：校验成员资格后升级连接
// 并登记到 Hub。
func Serve(h *Hub, reg *session.Registry, cfg config.Config) gin.HandlerFunc {
	upgrader := newUpgrader(cfg.AllowedOrigins)
	return func(c *gin.Context) {
		sess, err := reg.Get(c.Param("session_id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		userID := c.Param("user_id")
		if err := sess.EnsureMember(userID); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "user not in session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:       h,
			conn:      conn,
			send:      make(chan []byte, 256),
			sessionID: sess.ID,
			userID:    userID,
			heartbeat: cfg.HeartbeatInterval,
			readWait:  cfg.HeartbeatInterval * time.Duration(cfg.HeartbeatTimeoutMult),
		}
		h.Register(client)
		sess.Touch()

		go client.writePump()
		client.readPump(sess)
	}
}

// readPump 消费入站帧。客户端必须在每个心跳周期内发一次
// {"type":"ping"}；连续两个周期收不到任何帧即视为断线。
func (c *Client) readPump(sess *session.Session) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.readWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readWait))
		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		if in.Type == "ping" {
			sess.Touch()
			select {
			case c.send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}

// writePump 串行写出事件并周期性发协议层 ping。
func (c *Client) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			if err := w.Close(); err != nil {
				log.Debug().Err(err).Str("session_id", c.sessionID).Str("user_id", c.userID).Msg("websocket write")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
