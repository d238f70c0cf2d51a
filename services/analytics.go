// services/analytics.go - Fire-and-forget session analytics
package services

import (
	"log"
	"time"

	"gorm.io/gorm"

	"quizlive/models"
)

// SessionSummary carries the session fields the analytics row needs.
// Callers capture it under the session lock; the analytics writer never
// touches the live session again.
type SessionSummary struct {
	SessionID       uint
	RoomCode        string
	GameID          uint
	QuestionCount   int
	QuestionsPlayed int
	CreatedAt       time.Time
}

// summaryLocked builds the analytics view of a session. Caller must
// hold the session lock.
func summaryLocked(session *GameSession) SessionSummary {
	played := session.CurrentQuestionIndex + 1
	if played > len(session.Questions) {
		played = len(session.Questions)
	}
	if played < 0 {
		played = 0
	}
	return SessionSummary{
		SessionID:       session.RecordID,
		RoomCode:        session.RoomCode,
		GameID:          session.GameID,
		QuestionCount:   len(session.Questions),
		QuestionsPlayed: played,
		CreatedAt:       session.CreatedAt,
	}
}

// Analytics records an aggregate row when a session ends or aborts. It
// is fire-and-forget: failures are logged, never surfaced to players.
type Analytics interface {
	CreateSessionAnalytics(summary SessionSummary, players []*SessionPlayer, status string)
}

// GormAnalytics writes analytics rows asynchronously.
type GormAnalytics struct {
	db *gorm.DB
}

func NewGormAnalytics(db *gorm.DB) *GormAnalytics {
	return &GormAnalytics{db: db}
}

func (a *GormAnalytics) CreateSessionAnalytics(summary SessionSummary, players []*SessionPlayer, status string) {
	row := buildAnalyticsRow(summary, players, status)
	go func() {
		if err := a.db.Create(&row).Error; err != nil {
			log.Printf("⚠️ Failed to persist analytics for room %s: %v", row.RoomCode, err)
			return
		}
		log.Printf("📊 Recorded %s analytics for room %s (%d players)", status, row.RoomCode, row.PlayerCount)
	}()
}

func buildAnalyticsRow(summary SessionSummary, players []*SessionPlayer, status string) models.SessionAnalytics {
	totalScore := 0
	topScore := 0
	winner := ""
	for _, p := range players {
		totalScore += p.Score
		if p.Score > topScore {
			topScore = p.Score
			winner = p.Name
		}
	}
	avgScore := 0.0
	if len(players) > 0 {
		avgScore = float64(totalScore) / float64(len(players))
	}

	return models.SessionAnalytics{
		SessionID:       summary.SessionID,
		RoomCode:        summary.RoomCode,
		GameID:          summary.GameID,
		Status:          status,
		PlayerCount:     len(players),
		QuestionCount:   summary.QuestionCount,
		QuestionsPlayed: summary.QuestionsPlayed,
		AvgScore:        avgScore,
		TopScore:        topScore,
		WinnerName:      winner,
		DurationSec:     int(time.Since(summary.CreatedAt).Seconds()),
	}
}
