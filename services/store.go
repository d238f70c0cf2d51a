// services/store.go - Persistence collaborator
package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"quizlive/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary consumed by the session engine.
type Store interface {
	GetGameByID(gameID uint) (*models.Game, error)
	GetQuestionsByGameID(gameID uint) ([]models.Question, error)
	GetAnswersByQuestionID(questionID uint) ([]models.Answer, error)
	CreateSession(record *models.SessionRecord) error
	AddPlayerToSession(record *models.SessionPlayerRecord) error
	UpdatePlayer(record *models.SessionPlayerRecord) error
	EndSession(sessionID uint, status string) error
	RoomCodeInUse(roomCode string) (bool, error)
}

// GormStore implements Store over the application database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetGameByID(gameID uint) (*models.Game, error) {
	var game models.Game
	if err := s.db.First(&game, gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load game %d: %w", gameID, err)
	}
	return &game, nil
}

func (s *GormStore) GetQuestionsByGameID(gameID uint) ([]models.Question, error) {
	var questions []models.Question
	if err := s.db.Where("game_id = ?", gameID).Order("position ASC, id ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to load questions for game %d: %w", gameID, err)
	}
	return questions, nil
}

func (s *GormStore) GetAnswersByQuestionID(questionID uint) ([]models.Answer, error) {
	var answers []models.Answer
	if err := s.db.Where("question_id = ?", questionID).Order("position ASC, id ASC").Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to load answers for question %d: %w", questionID, err)
	}
	return answers, nil
}

func (s *GormStore) CreateSession(record *models.SessionRecord) error {
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}
	return nil
}

func (s *GormStore) AddPlayerToSession(record *models.SessionPlayerRecord) error {
	if err := s.db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to create session player record: %w", err)
	}
	return nil
}

func (s *GormStore) UpdatePlayer(record *models.SessionPlayerRecord) error {
	result := s.db.Model(&models.SessionPlayerRecord{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"score":           record.Score,
			"correct_answers": record.CorrectAnswers,
			"total_answers":   record.TotalAnswers,
			"avg_response_ms": record.AvgResponseMS,
			"rank":            record.Rank,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update player record %d: %w", record.ID, result.Error)
	}
	return nil
}

func (s *GormStore) EndSession(sessionID uint, status string) error {
	now := time.Now()
	result := s.db.Model(&models.SessionRecord{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":   status,
			"ended_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to end session %d: %w", sessionID, result.Error)
	}
	return nil
}

// RoomCodeInUse reports whether an active session row already claims the
// code; the registry check alone misses rows from a prior process.
func (s *GormStore) RoomCodeInUse(roomCode string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.SessionRecord{}).
		Where("room_code = ? AND status = ?", roomCode, "active").
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check room code %s: %w", roomCode, err)
	}
	return count > 0, nil
}
