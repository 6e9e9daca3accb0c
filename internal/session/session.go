package session

import (
	"sync"
	"time"
)

// User 表示会话内的一个成员。一个会话同一时刻恰好有一个 host。
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`

	joinedAt time.Time
}

// Snapshot 是某一时刻会话状态的一致性快照，供 REST 接口输出。
type Snapshot struct {
	SessionID string  `json:"session_id"`
	Users     []User  `json:"users"`
	Blocks    []Block `json:"blocks"`
	AllowJoin bool    `json:"allow_join"`
	HostID    string  `json:"host_id"`
}

// Session 持有一个协作会话的全部可变状态：成员、block 账本、
// 加入开关与活跃时钟。所有修改都在 s.mu 临界区内串行执行，
// 不同会话之间完全并行。
type Session struct {
	ID string

	mu           sync.Mutex
	users        []*User
	blocks       []Block
	nextBlockID  uint64
	allowJoin    bool
	createdAt    time.Time
	lastActivity time.Time
	emptySince   time.Time
}

func newSession(id string, host User) *Session {
	now := time.Now()
	host.IsHost = true
	host.joinedAt = now
	return &Session{
		ID:           id,
		users:        []*User{&host},
		nextBlockID:  1,
		allowJoin:    true,
		createdAt:    now,
		lastActivity: now,
	}
}

// Touch 刷新活跃时间戳，阻止会话被超时回收。
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) touchLocked() {
	s.lastActivity = time.Now()
}

// Snapshot 在会话锁内拷贝出一份观察视图。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID: s.ID,
		Users:     make([]User, 0, len(s.users)),
		Blocks:    make([]Block, len(s.blocks)),
		AllowJoin: s.allowJoin,
	}
	for _, u := range s.users {
		snap.Users = append(snap.Users, *u)
		if u.IsHost {
			snap.HostID = u.ID
		}
	}
	copy(snap.Blocks, s.blocks)
	return snap
}

// join 在 allowJoin 开启时追加一个新成员，重名自动加 (2) 后缀。
func (s *Session) join(u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.allowJoin {
		return User{}, ErrJoinDisabled
	}
	u.Name = s.uniqueNameLocked(u.Name)
	u.joinedAt = time.Now()
	s.users = append(s.users, &u)
	s.emptySince = time.Time{}
	s.touchLocked()
	return u, nil
}

func (s *Session) userLocked(id string) *User {
	for _, u := range s.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// EnsureMember 校验 userID 是当前成员。
func (s *Session) EnsureMember(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userLocked(userID) == nil {
		return ErrNotMember
	}
	return nil
}

// EnsureHost 校验 userID 是当前 host。
func (s *Session) EnsureHost(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userLocked(userID)
	if u == nil || !u.IsHost {
		return ErrNotHost
	}
	return nil
}

// TransferHost 把 host 权限移交给另一个成员，两个 is_host
// 标志在同一个临界区内翻转。
func (s *Session) TransferHost(requesterID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.userLocked(requesterID)
	if req == nil || !req.IsHost {
		return ErrNotHost
	}
	target := s.userLocked(targetID)
	if target == nil {
		return ErrUserNotFound
	}
	req.IsHost = false
	target.IsHost = true
	s.touchLocked()
	return nil
}

// SetAllowJoin 由 host 开关加入权限。
func (s *Session) SetAllowJoin(requesterID string, allow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.userLocked(requesterID)
	if req == nil || !req.IsHost {
		return ErrNotHost
	}
	s.allowJoin = allow
	s.touchLocked()
	return nil
}

// RemoveUser 移除一个成员。如果被移除的是 host，按加入时间
// 提升最早加入的剩余成员（再按 ID 字典序兜底，保证确定性）。
// 最后一个成员离开时只记录空置时间，交给清扫任务回收。
func (s *Session) RemoveUser(userID string) (removed User, promoted *User, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, u := range s.users {
		if u.ID == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return User{}, nil, len(s.users) == 0
	}
	gone := s.users[idx]
	removed = *gone
	s.users = append(s.users[:idx], s.users[idx+1:]...)
	s.touchLocked()
	if len(s.users) == 0 {
		s.emptySince = time.Now()
		return removed, nil, true
	}
	if gone.IsHost {
		next := s.users[0]
		for _, u := range s.users[1:] {
			if u.joinedAt.Before(next.joinedAt) ||
				(u.joinedAt.Equal(next.joinedAt) && u.ID < next.ID) {
				next = u
			}
		}
		next.IsHost = true
		cp := *next
		promoted = &cp
	}
	return removed, promoted, false
}

// IdleFor 报告会话是否已经闲置超过 d。
func (s *Session) IdleFor(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) > d
}

// EmptyFor 报告会话是否已经无成员超过 d。
func (s *Session) EmptyFor(d time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.emptySince.IsZero() && time.Since(s.emptySince) > d
}
