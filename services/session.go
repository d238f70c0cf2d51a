// services/session.go - In-memory game session runtime model
package services

import (
	"strings"
	"sync"
	"time"
)

// GameState is the lifecycle state of a live session.
type GameState string

const (
	StateLobby          GameState = "lobby"
	StateInProgress     GameState = "in_progress"
	StateWaitingForHost GameState = "waiting_for_host"
	StateCompleted      GameState = "completed"
	StateAborted        GameState = "aborted"
)

// QuestionType is a closed variant; correctness evaluation dispatches on it.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
)

// SnapshotAnswer is one answer option frozen for a live session.
type SnapshotAnswer struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// SnapshotQuestion is a question frozen at room creation. Answers are
// loaded from the store when the question goes live; nil means not yet
// fetched, an empty non-nil slice means the question has none configured.
type SnapshotQuestion struct {
	ID        uint
	Text      string
	Type      QuestionType
	TimeLimit int // seconds
	MaxPoints int
	ImageURL  string
	Answers   []SnapshotAnswer
}

// CorrectAnswerIDs returns the ids of the correct options.
func (q *SnapshotQuestion) CorrectAnswerIDs() []uint {
	ids := make([]uint, 0, len(q.Answers))
	for _, a := range q.Answers {
		if a.IsCorrect {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// SessionPlayer is the runtime view of one joined player. Scratch state
// (HasAnswered, SelectedAnswerIDs, LastCorrect, LastPoints) is meaningful
// only while CurrentQuestionIndex matches the session's index.
type SessionPlayer struct {
	ID           string // stable identity, survives reconnects
	RecordID     uint   // persistence row
	Name         string
	ConnectionID string
	Connected    bool

	Score          int
	CorrectAnswers int
	TotalAnswers   int
	AvgResponseMS  float64

	HasAnswered          bool
	CurrentQuestionIndex int
	SelectedAnswerIDs    []uint
	LastCorrect          bool
	LastPoints           int
}

// ResetAnswerState clears the per-question scratch state.
func (p *SessionPlayer) ResetAnswerState() {
	p.HasAnswered = false
	p.SelectedAnswerIDs = nil
	p.LastCorrect = false
	p.LastPoints = 0
}

// RecordResponse folds one response time into the running average.
func (p *SessionPlayer) RecordResponse(response time.Duration) {
	ms := float64(response.Milliseconds())
	if p.TotalAnswers <= 1 {
		p.AvgResponseMS = ms
		return
	}
	n := float64(p.TotalAnswers)
	p.AvgResponseMS = (p.AvgResponseMS*(n-1) + ms) / n
}

// GameSession is the authoritative in-memory state of one room. All
// mutable fields are guarded by mu; RPCs and timer callbacks racing on
// the same room serialize through it.
type GameSession struct {
	mu sync.Mutex

	RoomCode  string
	GameID    uint
	GameTitle string
	RecordID  uint // persisted session row

	HostUserID       string
	HostConnectionID string

	Questions []SnapshotQuestion
	Players   []*SessionPlayer

	CurrentQuestionIndex int // -1 before the first question
	QuestionStartTime    time.Time
	QuestionEndTime      time.Time

	State                 GameState
	IsWaitingForHost      bool
	FinalLeaderboardReady bool
	AutoShowResults       bool

	// Fetched once at creation and cached for the session's lifetime.
	BackgroundImage string
	AudioURLs       map[string]string

	CreatedAt time.Time
}

func (s *GameSession) Lock()   { s.mu.Lock() }
func (s *GameSession) Unlock() { s.mu.Unlock() }

// FindPlayer returns the player with the given stable id, or nil.
// Caller must hold the session lock.
func (s *GameSession) FindPlayer(playerID string) *SessionPlayer {
	for _, p := range s.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// FindPlayerByName returns the player with the given display name
// (case-insensitive), or nil. Caller must hold the session lock.
func (s *GameSession) FindPlayerByName(name string) *SessionPlayer {
	for _, p := range s.Players {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// CurrentQuestion returns the active question, or nil when the session
// has not started or has run past the last question. Caller must hold
// the session lock.
func (s *GameSession) CurrentQuestion() *SnapshotQuestion {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	return &s.Questions[s.CurrentQuestionIndex]
}

// TotalPlaytime is the sum of all question time limits in seconds.
func (s *GameSession) TotalPlaytime() int {
	total := 0
	for _, q := range s.Questions {
		total += q.TimeLimit
	}
	return total
}
