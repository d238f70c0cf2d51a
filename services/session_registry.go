// services/session_registry.go - Owner of the live GameSession map
package services

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
)

// roomCodeAlphabet excludes visually ambiguous characters (0/O, 1/I).
const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 6
	roomCodeMaxTries = 10
)

// SessionRegistry owns every live GameSession, keyed by room code.
// Constructed once at startup and injected; tests build fresh instances.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*GameSession
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*GameSession)}
}

// Create registers a session under its room code. A code that is already
// taken is a no-op; callers pre-check uniqueness via GenerateRoomCode.
func (r *SessionRegistry) Create(roomCode string, session *GameSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[roomCode]; exists {
		return
	}
	r.sessions[roomCode] = session
}

func (r *SessionRegistry) Get(roomCode string) *GameSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[roomCode]
}

func (r *SessionRegistry) Remove(roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, roomCode)
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot of the live sessions, for debug and cleanup.
func (r *SessionRegistry) All() []*GameSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*GameSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// SetState atomically moves the session to the given state.
func (r *SessionRegistry) SetState(roomCode string, state GameState) {
	session := r.Get(roomCode)
	if session == nil {
		return
	}
	session.Lock()
	session.State = state
	session.IsWaitingForHost = state == StateWaitingForHost
	session.Unlock()
}

// ResetAnswerState clears every player's per-question scratch state.
func (r *SessionRegistry) ResetAnswerState(roomCode string) {
	session := r.Get(roomCode)
	if session == nil {
		return
	}
	session.Lock()
	for _, p := range session.Players {
		p.ResetAnswerState()
	}
	session.Unlock()
}

// LeaderboardEntry is one ranked row of a leaderboard view.
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	PlayerID       string  `json:"player_id"`
	Name           string  `json:"name"`
	Score          int     `json:"score"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalAnswers   int     `json:"total_answers"`
	Accuracy       float64 `json:"accuracy"`
	Connected      bool    `json:"connected"`
}

// SnapshotLeaderboard returns the players ranked by score descending,
// ties broken by join order.
func (r *SessionRegistry) SnapshotLeaderboard(roomCode string) []LeaderboardEntry {
	session := r.Get(roomCode)
	if session == nil {
		return nil
	}
	session.Lock()
	defer session.Unlock()
	return RankPlayers(session.Players)
}

// RankPlayers builds a ranked leaderboard view over the given players.
// Caller must hold the session lock when passing live session players.
func RankPlayers(players []*SessionPlayer) []LeaderboardEntry {
	ordered := make([]*SessionPlayer, len(players))
	copy(ordered, players)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Score > ordered[j].Score
	})

	entries := make([]LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		accuracy := 0.0
		if p.TotalAnswers > 0 {
			accuracy = float64(p.CorrectAnswers) / float64(p.TotalAnswers)
		}
		entries = append(entries, LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       p.ID,
			Name:           p.Name,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			TotalAnswers:   p.TotalAnswers,
			Accuracy:       accuracy,
			Connected:      p.Connected,
		})
	}
	return entries
}

// GenerateRoomCode draws codes from the unambiguous alphabet until one
// passes the inUse check, giving up after a bounded number of attempts.
func GenerateRoomCode(inUse func(code string) bool) (string, error) {
	for attempt := 0; attempt < roomCodeMaxTries; attempt++ {
		code := randomRoomCode()
		if inUse != nil && inUse(code) {
			continue
		}
		return code, nil
	}
	return "", fmt.Errorf("could not generate a unique room code after %d attempts", roomCodeMaxTries)
}

func randomRoomCode() string {
	b := make([]byte, roomCodeLength)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = roomCodeAlphabet[int(b[i])%len(roomCodeAlphabet)]
	}
	return string(b)
}
