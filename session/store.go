package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/chaos-io/cutout/rembg"
	"github.com/chaos-io/cutout/util"
)

// Store keeps live sessions in memory. Sessions idle longer than the TTL are
// dropped by Sweep; nothing outlives the process.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Controller

	remover rembg.Remover
	policy  Policy
	ttl     time.Duration
	now     func() time.Time
	cron    *cron.Cron
}

func NewStore(remover rembg.Remover, policy Policy, ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Controller),
		remover:  remover,
		policy:   policy,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *Store) Create() *Controller {
	id := ksuid.New().String()
	c := NewController(New(id, s.policy), s.remover)
	c.now = s.now
	c.lastUsed = s.now()

	s.mu.Lock()
	s.sessions[id] = c
	s.mu.Unlock()

	util.Logger.Info("session created", zap.String("session", id))
	return c
}

func (s *Store) Get(id string) (*Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return c, nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops sessions idle since before now-ttl and returns how many went.
// Sessions with a removal in flight are kept.
func (s *Store) Sweep(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.sessions {
		if c.Snapshot().Phase == PhaseProcessing || !c.LastUsed().Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		removed++
		util.Logger.Info("session expired", zap.String("session", id))
	}
	return removed
}

// Start schedules Sweep with a cron spec such as "@every 1m".
func (s *Store) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if n := s.Sweep(s.now()); n > 0 {
			util.Logger.Debug("sessions swept", zap.Int("removed", n), zap.Int("live", s.Len()))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish.
func (s *Store) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
