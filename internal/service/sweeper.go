package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SamWang8891/clippy/internal/blob"
	"github.com/SamWang8891/clippy/internal/config"
	"github.com/SamWang8891/clippy/internal/metrics"
	"github.com/SamWang8891/clippy/internal/session"
	"github.com/SamWang8891/clippy/internal/ws"
)

// Sweeper 周期性销毁超时会话：闲置超过阈值，或空置超过宽限期。
// 走和显式销毁相同的销毁序列，因此与用户操作并发执行是安全的，
// 扫描本身幂等。blob 回收失败的会话记入 orphans，下个周期重试。
type Sweeper struct {
	reg   *session.Registry
	hub   *ws.Hub
	blobs *blob.Store

	interval    time.Duration
	idleTimeout time.Duration
	emptyGrace  time.Duration

	mu      sync.Mutex
	orphans map[string]struct{}
}

func NewSweeper(reg *session.Registry, hub *ws.Hub, blobs *blob.Store, cfg config.Config) *Sweeper {
	return &Sweeper{
		reg:         reg,
		hub:         hub,
		blobs:       blobs,
		interval:    cfg.SweepInterval,
		idleTimeout: cfg.SessionTimeout,
		emptyGrace:  cfg.EmptyGrace,
		orphans:     make(map[string]struct{}),
	}
}

// Run 以固定周期执行清扫，直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep 执行一轮清扫。
func (s *Sweeper) Sweep() {
	s.retryOrphans()
	for _, sess := range s.reg.Sessions() {
		if !sess.IdleFor(s.idleTimeout) && !sess.EmptyFor(s.emptyGrace) {
			continue
		}
		log.Info().Str("session_id", sess.ID).Msg("evicting idle session")
		metrics.SessionsEvictedTotal.Inc()
		if err := destroySession(s.reg, s.hub, s.blobs, sess.ID, "timeout"); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("reclaim session blobs, will retry")
			s.mu.Lock()
			s.orphans[sess.ID] = struct{}{}
			s.mu.Unlock()
		}
	}
}

func (s *Sweeper) retryOrphans() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.orphans))
	for id := range s.orphans {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		if err := s.blobs.RemoveSession(id); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("retry blob reclamation")
			continue
		}
		s.mu.Lock()
		delete(s.orphans, id)
		s.mu.Unlock()
	}
}
