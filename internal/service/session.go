package service

import (
	"github.com/rs/zerolog/log"

	"github.com/SamWang8891/clippy/internal/blob"
	"github.com/SamWang8891/clippy/internal/session"
	"github.com/SamWang8891/clippy/internal/ws"
)

// SessionService 封装会话生命周期相关的业务逻辑：校验、修改
// 注册表状态，成功后恰好发出一次对应广播。广播一律发生在
// 内存变更提交之后，单个连接的投递失败不会回滚变更。
type SessionService struct {
	reg   *session.Registry
	hub   *ws.Hub
	blobs *blob.Store
}

func NewSessionService(reg *session.Registry, hub *ws.Hub, blobs *blob.Store) *SessionService {
	return &SessionService{reg: reg, hub: hub, blobs: blobs}
}

// JoinResult 是创建/加入会话后返回给客户端的身份数据。
type JoinResult struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	IsHost    bool   `json:"is_host"`
}

// Create 新建会话，创建者即 host。
func (s *SessionService) Create(userName string) *JoinResult {
	sess, host := s.reg.Create(userName)
	log.Info().Str("session_id", sess.ID).Str("user_id", host.ID).Msg("session created")
	return &JoinResult{SessionID: sess.ID, UserID: host.ID, UserName: host.Name, IsHost: true}
}

// Join 加入已有会话，向其他成员广播 user_joined。
func (s *SessionService) Join(sessionID, userName string) (*JoinResult, error) {
	sess, u, err := s.reg.Join(sessionID, userName)
	if err != nil {
		return nil, err
	}
	s.hub.Broadcast(sess.ID, ws.UserJoined(u), u.ID)
	return &JoinResult{SessionID: sess.ID, UserID: u.ID, UserName: u.Name, IsHost: false}, nil
}

// Get 返回会话的一致性快照。
func (s *SessionService) Get(sessionID string) (session.Snapshot, error) {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// TransferHost 移交 host 权限并广播 host_transferred。
func (s *SessionService) TransferHost(sessionID, currentHostID, newHostID string) error {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return err
	}
	if err := sess.TransferHost(currentHostID, newHostID); err != nil {
		return err
	}
	s.hub.Broadcast(sess.ID, ws.HostTransferred(newHostID), currentHostID)
	return nil
}

// ToggleJoin 开关加入权限并广播 join_permission_changed。
func (s *SessionService) ToggleJoin(sessionID, userID string, allow bool) error {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return err
	}
	if err := sess.SetAllowJoin(userID, allow); err != nil {
		return err
	}
	s.hub.Broadcast(sess.ID, ws.JoinPermissionChanged(allow), userID)
	return nil
}

// Destroy 由 host 显式销毁会话。
func (s *SessionService) Destroy(sessionID, userID string) error {
	sess, err := s.reg.Get(sessionID)
	if err != nil {
		return err
	}
	if err := sess.EnsureHost(userID); err != nil {
		return err
	}
	if err := destroySession(s.reg, s.hub, s.blobs, sess.ID, "host_action"); err != nil {
		// 会话已经摘除，blob 留给启动清理兜底
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("reclaim session blobs")
	}
	log.Info().Str("session_id", sess.ID).Str("user_id", userID).Msg("session destroyed by host")
	return nil
}

// destroySession 是显式销毁与超时回收共用的销毁序列：
// 先向所有成员（包括操作者）广播 session_destroyed，再关闭
// 全部连接、从注册表摘除，最后回收 blob。返回的错误只关乎
// blob 回收，注册表摘除总是完成。
func destroySession(reg *session.Registry, hub *ws.Hub, blobs *blob.Store, sessionID, reason string) error {
	hub.Broadcast(sessionID, ws.SessionDestroyed(reason), "")
	hub.CloseSession(sessionID)
	reg.Remove(sessionID)
	return blobs.RemoveSession(sessionID)
}
