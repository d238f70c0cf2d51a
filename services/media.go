// services/media.go - Background image and audio collaborator
package services

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"quizlive/models"
)

// MediaStore resolves the media a session caches at room creation.
type MediaStore interface {
	GetBackgroundImage(gameID uint) (string, error)
	GetAudioURLs() (map[string]string, error)
}

// GormMedia resolves backgrounds from the game row and audio tracks from
// an env-configured asset base.
type GormMedia struct {
	db *gorm.DB
}

func NewGormMedia(db *gorm.DB) *GormMedia {
	return &GormMedia{db: db}
}

func (m *GormMedia) GetBackgroundImage(gameID uint) (string, error) {
	var game models.Game
	if err := m.db.Select("background_image").First(&game, gameID).Error; err != nil {
		return "", fmt.Errorf("failed to load background for game %d: %w", gameID, err)
	}
	return game.BackgroundImage, nil
}

func (m *GormMedia) GetAudioURLs() (map[string]string, error) {
	base := os.Getenv("AUDIO_BASE_URL")
	if base == "" {
		base = "/audio"
	}
	return map[string]string{
		"lobby":    base + "/lobby.mp3",
		"question": base + "/question.mp3",
		"results":  base + "/results.mp3",
	}, nil
}
