// handlers/quiz.go - Quiz authoring CRUD boundary
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"quizlive/database"
	"quizlive/middleware"
	"quizlive/models"
)

// CreateGame creates a new quiz owned by the caller.
func CreateGame(c *fiber.Ctx) error {
	var req struct {
		Title           string `json:"title"`
		Description     string `json:"description"`
		BackgroundImage string `json:"background_image"`
		IsPublic        bool   `json:"is_public"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Title == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Title is required"})
	}

	game := models.Game{
		OwnerID:         middleware.Identity(c),
		Title:           req.Title,
		Description:     req.Description,
		BackgroundImage: req.BackgroundImage,
		IsPublic:        req.IsPublic,
	}
	if err := database.GetDB().Create(&game).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to create game"})
	}
	return c.Status(201).JSON(game)
}

// GetGames lists the caller's quizzes.
func GetGames(c *fiber.Ctx) error {
	var games []models.Game
	if err := database.GetDB().Where("owner_id = ?", middleware.Identity(c)).
		Order("updated_at DESC").Find(&games).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to load games"})
	}
	return c.JSON(games)
}

// GetGame returns one quiz with its questions and answers.
func GetGame(c *fiber.Ctx) error {
	var game models.Game
	if err := database.GetDB().Preload("Questions.Answers").Preload("Questions").
		First(&game, c.Params("id")).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Game not found"})
	}
	if !game.IsPublic && game.OwnerID != middleware.Identity(c) {
		return c.Status(403).JSON(fiber.Map{"error": "Not authorized to view this game"})
	}
	return c.JSON(game)
}

// UpdateGame updates a quiz's metadata.
func UpdateGame(c *fiber.Ctx) error {
	game, ok := ownedGame(c)
	if !ok {
		return nil
	}

	var req struct {
		Title           *string `json:"title"`
		Description     *string `json:"description"`
		BackgroundImage *string `json:"background_image"`
		IsPublic        *bool   `json:"is_public"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.BackgroundImage != nil {
		updates["background_image"] = *req.BackgroundImage
	}
	if req.IsPublic != nil {
		updates["is_public"] = *req.IsPublic
	}

	if len(updates) > 0 {
		if err := database.GetDB().Model(game).Updates(updates).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to update game"})
		}
	}
	return c.JSON(game)
}

// DeleteGame removes a quiz and its questions and answers.
func DeleteGame(c *fiber.Ctx) error {
	game, ok := ownedGame(c)
	if !ok {
		return nil
	}

	db := database.GetDB()
	db.Where("question_id IN (SELECT id FROM questions WHERE game_id = ?)", game.ID).Delete(&models.Answer{})
	db.Where("game_id = ?", game.ID).Delete(&models.Question{})
	if err := db.Delete(game).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to delete game"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// CreateQuestion adds a question to an owned quiz.
func CreateQuestion(c *fiber.Ctx) error {
	game, ok := ownedGame(c)
	if !ok {
		return nil
	}

	var req struct {
		Text      string `json:"text"`
		Type      string `json:"type"`
		TimeLimit int    `json:"time_limit"`
		MaxPoints int    `json:"max_points"`
		Position  int    `json:"position"`
		ImageURL  string `json:"image_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Text == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Question text is required"})
	}
	if req.Type == "" {
		req.Type = "single_choice"
	}
	switch req.Type {
	case "single_choice", "multiple_choice", "true_false":
	default:
		return c.Status(400).JSON(fiber.Map{"error": "Unknown question type"})
	}
	if req.TimeLimit <= 0 {
		req.TimeLimit = 20
	}
	if req.MaxPoints <= 0 {
		req.MaxPoints = 1000
	}

	question := models.Question{
		GameID:    game.ID,
		Text:      req.Text,
		Type:      req.Type,
		TimeLimit: req.TimeLimit,
		MaxPoints: req.MaxPoints,
		Position:  req.Position,
		ImageURL:  req.ImageURL,
	}
	if err := database.GetDB().Create(&question).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to create question"})
	}
	return c.Status(201).JSON(question)
}

// DeleteQuestion removes a question and its answers.
func DeleteQuestion(c *fiber.Ctx) error {
	question, ok := ownedQuestion(c)
	if !ok {
		return nil
	}

	db := database.GetDB()
	db.Where("question_id = ?", question.ID).Delete(&models.Answer{})
	if err := db.Delete(question).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to delete question"})
	}
	return c.JSON(fiber.Map{"success": true})
}

// CreateAnswer adds an answer option to an owned question.
func CreateAnswer(c *fiber.Ctx) error {
	question, ok := ownedQuestion(c)
	if !ok {
		return nil
	}

	var req struct {
		Text      string `json:"text"`
		IsCorrect bool   `json:"is_correct"`
		Position  int    `json:"position"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Text == "" {
		return c.Status(400).JSON(fiber.Map{"error": "Answer text is required"})
	}

	answer := models.Answer{
		QuestionID: question.ID,
		Text:       req.Text,
		IsCorrect:  req.IsCorrect,
		Position:   req.Position,
	}
	if err := database.GetDB().Create(&answer).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to create answer"})
	}
	return c.Status(201).JSON(answer)
}

// DeleteAnswer removes one answer option.
func DeleteAnswer(c *fiber.Ctx) error {
	var answer models.Answer
	db := database.GetDB()
	if err := db.First(&answer, c.Params("id")).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Answer not found"})
	}

	var question models.Question
	if err := db.First(&question, answer.QuestionID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Question not found"})
	}
	var game models.Game
	if err := db.First(&game, question.GameID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Game not found"})
	}
	if game.OwnerID != middleware.Identity(c) {
		return c.Status(403).JSON(fiber.Map{"error": "Not authorized"})
	}

	if err := db.Delete(&answer).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to delete answer"})
	}
	return c.JSON(fiber.Map{"success": true})
}

func ownedGame(c *fiber.Ctx) (*models.Game, bool) {
	var game models.Game
	if err := database.GetDB().First(&game, c.Params("id")).Error; err != nil {
		c.Status(404).JSON(fiber.Map{"error": "Game not found"})
		return nil, false
	}
	if game.OwnerID != middleware.Identity(c) {
		c.Status(403).JSON(fiber.Map{"error": "Not authorized"})
		return nil, false
	}
	return &game, true
}

func ownedQuestion(c *fiber.Ctx) (*models.Question, bool) {
	var question models.Question
	db := database.GetDB()
	if err := db.First(&question, c.Params("id")).Error; err != nil {
		c.Status(404).JSON(fiber.Map{"error": "Question not found"})
		return nil, false
	}
	var game models.Game
	if err := db.First(&game, question.GameID).Error; err != nil {
		c.Status(404).JSON(fiber.Map{"error": "Game not found"})
		return nil, false
	}
	if game.OwnerID != middleware.Identity(c) {
		c.Status(403).JSON(fiber.Map{"error": "Not authorized"})
		return nil, false
	}
	return &question, true
}
