package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"modbot/internal/bus"
)

// PlatformStatus is the connection state of one platform.
type PlatformStatus struct {
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	User      string    `json:"user,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	Since     time.Time `json:"since"`
}

// Status follows ready and error events of each tracked platform.
type Status struct {
	mu        sync.RWMutex
	platforms map[string]*PlatformStatus
}

func NewStatus() *Status {
	return &Status{platforms: make(map[string]*PlatformStatus)}
}

// Track registers platform as disconnected until its bus reports ready.
func (s *Status) Track(platform string, b *bus.Bus) {
	s.mu.Lock()
	s.platforms[platform] = &PlatformStatus{Name: platform, Since: time.Now()}
	s.mu.Unlock()

	b.On(bus.KindReady, func(_ context.Context, ev bus.Event) error {
		r, _ := ev.(bus.ReadyEvent)
		s.update(platform, func(p *PlatformStatus) {
			p.Connected = true
			p.User = r.User
			p.LastError = ""
		})
		return nil
	})
	b.On(bus.KindError, func(_ context.Context, ev bus.Event) error {
		e, _ := ev.(bus.ErrorEvent)
		s.update(platform, func(p *PlatformStatus) {
			p.Connected = false
			if e.Err != nil {
				p.LastError = e.Err.Error()
			}
		})
		return nil
	})
}

func (s *Status) update(platform string, fn func(*PlatformStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.platforms[platform]
	if !ok {
		return
	}
	fn(p)
	p.Since = time.Now()
}

// Snapshot returns the platforms sorted by name.
func (s *Status) Snapshot() []PlatformStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PlatformStatus, 0, len(s.platforms))
	for _, p := range s.platforms {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
