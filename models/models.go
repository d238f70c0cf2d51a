// models/models.go - Quiz authoring models
package models

import (
	"time"
)

// Game is a pre-authored quiz that rooms are opened from.
type Game struct {
	ID              uint       `json:"id" gorm:"primaryKey"`
	OwnerID         string     `json:"owner_id" gorm:"not null;size:100;index"`
	Title           string     `json:"title" gorm:"not null;size:200"`
	Description     string     `json:"description" gorm:"type:text"`
	BackgroundImage string     `json:"background_image" gorm:"size:500"`
	IsPublic        bool       `json:"is_public" gorm:"default:false"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Questions       []Question `json:"questions,omitempty" gorm:"foreignKey:GameID"`
}

// Question is one authored question of a game.
type Question struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	GameID    uint      `json:"game_id" gorm:"not null;index"`
	Game      *Game     `json:"game,omitempty" gorm:"foreignKey:GameID"`
	Text      string    `json:"text" gorm:"not null;type:text"`
	Type      string    `json:"type" gorm:"not null;size:20;default:'single_choice'"` // single_choice, multiple_choice, true_false
	TimeLimit int       `json:"time_limit" gorm:"default:20"` // seconds
	MaxPoints int       `json:"max_points" gorm:"default:1000"`
	Position  int       `json:"position" gorm:"default:0"`
	ImageURL  string    `json:"image_url" gorm:"size:500"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Answers   []Answer  `json:"answers,omitempty" gorm:"foreignKey:QuestionID"`
}

// Answer is one answer option of a question.
type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	QuestionID uint      `json:"question_id" gorm:"not null;index"`
	Text       string    `json:"text" gorm:"not null;size:500"`
	IsCorrect  bool      `json:"is_correct" gorm:"default:false"`
	Position   int       `json:"position" gorm:"default:0"`
	CreatedAt  time.Time `json:"created_at"`
}
