// models/session.go - Persisted session, player and analytics rows
package models

import (
	"time"
)

// SessionRecord is the persisted trace of one live room. The in-memory
// session is authoritative while the room runs; this row is synced best
// effort at session end.
type SessionRecord struct {
	ID            uint       `json:"id" gorm:"primaryKey"`
	RoomCode      string     `json:"room_code" gorm:"not null;size:10;index"`
	GameID        uint       `json:"game_id" gorm:"not null;index"`
	Game          *Game      `json:"game,omitempty" gorm:"foreignKey:GameID"`
	HostID        string     `json:"host_id" gorm:"size:100;index"`
	Status        string     `json:"status" gorm:"default:'active';size:20;index"` // active, completed, aborted
	QuestionCount int        `json:"question_count" gorm:"default:0"`
	StartedAt     *time.Time `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Players []SessionPlayerRecord `json:"players,omitempty" gorm:"foreignKey:SessionID"`
}

// SessionPlayerRecord is one player's persisted result row.
type SessionPlayerRecord struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	SessionID      uint      `json:"session_id" gorm:"not null;index"`
	PlayerID       string    `json:"player_id" gorm:"not null;size:100;index"` // stable in-game identity
	Name           string    `json:"name" gorm:"size:100"`
	Score          int       `json:"score" gorm:"default:0"`
	CorrectAnswers int       `json:"correct_answers" gorm:"default:0"`
	TotalAnswers   int       `json:"total_answers" gorm:"default:0"`
	AvgResponseMS  float64   `json:"avg_response_ms" gorm:"default:0"`
	Rank           int       `json:"rank" gorm:"default:0"`
	JoinedAt       time.Time `json:"joined_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SessionAnalytics is an aggregate row written fire-and-forget when a
// session ends or aborts.
type SessionAnalytics struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SessionID       uint      `json:"session_id" gorm:"index"`
	RoomCode        string    `json:"room_code" gorm:"size:10;index"`
	GameID          uint      `json:"game_id" gorm:"index"`
	Status          string    `json:"status" gorm:"size:20;index"` // completed, aborted
	PlayerCount     int       `json:"player_count" gorm:"default:0"`
	QuestionCount   int       `json:"question_count" gorm:"default:0"`
	QuestionsPlayed int       `json:"questions_played" gorm:"default:0"`
	AvgScore        float64   `json:"avg_score" gorm:"default:0"`
	TopScore        int       `json:"top_score" gorm:"default:0"`
	WinnerName      string    `json:"winner_name" gorm:"size:100"`
	DurationSec     int       `json:"duration_sec" gorm:"default:0"`
	CreatedAt       time.Time `json:"created_at"`
}
