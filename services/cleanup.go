// services/cleanup.go - Stale session sweeper
package services

import (
	"log"
	"time"
)

// CleanupService periodically removes lobby sessions whose host
// connection disappeared without a disconnect event (e.g. process-level
// network failures). Active games are left to the host-disconnect path.
type CleanupService struct {
	sessions *SessionRegistry
	conns    *ConnectionRegistry
	ttl      time.Duration
	interval time.Duration
	stop     chan struct{}
}

func NewCleanupService(sessions *SessionRegistry, conns *ConnectionRegistry, ttl, interval time.Duration) *CleanupService {
	return &CleanupService{
		sessions: sessions,
		conns:    conns,
		ttl:      ttl,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (s *CleanupService) Start() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweep loop.
func (s *CleanupService) Stop() {
	close(s.stop)
}

func (s *CleanupService) sweep() {
	removed := 0
	for _, session := range s.sessions.All() {
		session.Lock()
		code := session.RoomCode
		hostConn := session.HostConnectionID
		stale := session.State == StateLobby && time.Since(session.CreatedAt) > s.ttl
		session.Unlock()

		if !stale || s.conns.Lookup(hostConn) != nil {
			continue
		}
		s.sessions.Remove(code)
		removed++
	}
	if removed > 0 {
		log.Printf("🧹 Cleaned up %d stale lobby sessions", removed)
	}
}
