// services/player_directory.go - Join decisions, correctness, scoring
package services

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"quizlive/models"
)

// JoinOutcome classifies a join attempt against the session's roster.
type JoinOutcome int

const (
	JoinNewPlayer JoinOutcome = iota
	JoinReconnect
	JoinNameTaken
)

// PlayerDirectory is a stateless helper over session player lists. It
// holds the store only to create persistence-backed player records.
type PlayerDirectory struct {
	store Store
}

func NewPlayerDirectory(store Store) *PlayerDirectory {
	return &PlayerDirectory{store: store}
}

// DecideJoin applies the join/reconnect protocol: a matching display
// name with no claimed id is a collision; a matching name whose claimed
// id matches the existing player is a reconnection; anything else is a
// new player (still subject to the lobby-only gate). Caller must hold
// the session lock.
func (d *PlayerDirectory) DecideJoin(session *GameSession, displayName, claimedPlayerID string) (JoinOutcome, *SessionPlayer) {
	existing := session.FindPlayerByName(displayName)
	if existing == nil {
		return JoinNewPlayer, nil
	}
	if claimedPlayerID != "" && claimedPlayerID == existing.ID {
		return JoinReconnect, existing
	}
	return JoinNameTaken, nil
}

// CreatePlayer builds a new runtime player backed by a persisted record.
// Called without the session lock held; the store round trip is awaited
// before the player is attached to the session.
func (d *PlayerDirectory) CreatePlayer(session *GameSession, displayName, connectionID string) (*SessionPlayer, error) {
	record := &models.SessionPlayerRecord{
		SessionID: session.RecordID,
		PlayerID:  uuid.NewString(),
		Name:      displayName,
		JoinedAt:  time.Now(),
	}
	if err := d.store.AddPlayerToSession(record); err != nil {
		return nil, fmt.Errorf("failed to persist player record: %w", err)
	}

	return &SessionPlayer{
		ID:                   record.PlayerID,
		RecordID:             record.ID,
		Name:                 displayName,
		ConnectionID:         connectionID,
		Connected:            true,
		CurrentQuestionIndex: -1,
	}, nil
}

// IsCorrect evaluates a selection against a question, dispatching on the
// question type. Multi-answer questions are all-or-nothing: the selected
// set must equal the correct set exactly.
func IsCorrect(question *SnapshotQuestion, selected []uint) bool {
	correct := question.CorrectAnswerIDs()
	if len(selected) == 0 || len(correct) == 0 {
		return false
	}

	switch question.Type {
	case QuestionMultipleChoice:
		if len(selected) != len(correct) {
			return false
		}
		correctSet := make(map[uint]struct{}, len(correct))
		for _, id := range correct {
			correctSet[id] = struct{}{}
		}
		seen := make(map[uint]struct{}, len(selected))
		for _, id := range selected {
			if _, dup := seen[id]; dup {
				return false
			}
			seen[id] = struct{}{}
			if _, ok := correctSet[id]; !ok {
				return false
			}
		}
		return true
	default:
		// single choice and true/false: one selected id in the correct set
		for _, id := range correct {
			if selected[0] == id {
				return true
			}
		}
		return false
	}
}

// ScorePoints applies the linear time-decay reward: full points at an
// instant answer, zero at the time limit, clamped to [0, maxPoints].
func ScorePoints(maxPoints int, response time.Duration, timeLimitSeconds int) int {
	if maxPoints <= 0 || timeLimitSeconds <= 0 {
		return 0
	}
	responseSeconds := response.Seconds()
	if responseSeconds < 0 {
		responseSeconds = 0
	}
	limit := float64(timeLimitSeconds)
	if responseSeconds > limit {
		responseSeconds = limit
	}
	points := int(math.Round(float64(maxPoints) - responseSeconds/limit*float64(maxPoints)))
	if points < 0 {
		points = 0
	}
	if points > maxPoints {
		points = maxPoints
	}
	return points
}

// RankOf returns the 1-based leaderboard rank of a player, or 0 when the
// player is not on the board.
func RankOf(entries []LeaderboardEntry, playerID string) int {
	for _, e := range entries {
		if e.PlayerID == playerID {
			return e.Rank
		}
	}
	return 0
}
