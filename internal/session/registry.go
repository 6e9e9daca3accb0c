package session

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/SamWang8891/clippy/internal/metrics"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Registry 是进程内唯一的会话表。全局锁只保护 map 结构本身
// （插入、删除、查找），持锁时间严格短于任何会话内临界区；
// 会话状态的修改走各自的会话锁。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idLength int
}

func NewRegistry(idLength int) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		idLength: idLength,
	}
}

// Create 生成一个未占用的会话 ID（冲突重试），创建者即 host，
// 默认允许加入。
func (r *Registry) Create(userName string) (*Session, User) {
	host := User{ID: uuid.NewString(), Name: strings.TrimSpace(userName)}
	if host.Name == "" {
		host.Name = randomName()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var id string
	for {
		id = r.generateID()
		if _, taken := r.sessions[id]; !taken {
			break
		}
	}
	sess := newSession(id, host)
	r.sessions[id] = sess
	metrics.SessionsActive.Inc()
	host.IsHost = true
	return sess, host
}

func (r *Registry) generateID() string {
	b := make([]byte, r.idLength)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}

// Get 按 ID 查找会话，ID 不区分大小写。
func (r *Registry) Get(id string) (*Session, error) {
	id = strings.ToLower(id)
	r.mu.RLock()
	sess := r.sessions[id]
	r.mu.RUnlock()
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Join 向已有会话追加一个新成员并刷新活跃时间。
func (r *Registry) Join(id, userName string) (*Session, User, error) {
	sess, err := r.Get(id)
	if err != nil {
		return nil, User{}, err
	}
	u, err := sess.join(User{ID: uuid.NewString(), Name: userName})
	if err != nil {
		return nil, User{}, err
	}
	return sess, u, nil
}

// Remove 把会话从注册表中摘除，幂等。
func (r *Registry) Remove(id string) {
	id = strings.ToLower(id)
	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		metrics.SessionsActive.Dec()
	}
	r.mu.Unlock()
}

// Sessions 返回当前全部会话，供清扫任务遍历。
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len 返回当前会话数。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
