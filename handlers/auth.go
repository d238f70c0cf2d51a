// handlers/auth.go - Identity boundary: guest, register, login
package handlers

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"quizlive/database"
	"quizlive/models"
)

const tokenTTL = 7 * 24 * time.Hour

// GuestLogin creates a throwaway account so guests can host and join.
func GuestLogin(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = "Guest-" + uuid.NewString()[:8]
	}

	user := models.User{
		PublicID:  uuid.NewString(),
		Username:  username + "#" + uuid.NewString()[:6],
		Password:  uuid.NewString(), // unusable; guests authenticate by token only
		IsGuest:   true,
		LastLogin: time.Now(),
	}
	if err := database.GetDB().Create(&user).Error; err != nil {
		log.Printf("❌ Guest creation failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "Failed to create guest account"})
	}

	token, err := issueToken(&user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to issue token"})
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Register creates a permanent account.
func Register(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 8 {
		return c.Status(400).JSON(fiber.Map{"error": "Username and a password of at least 8 characters are required"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to create account"})
	}

	user := models.User{
		PublicID:  uuid.NewString(),
		Username:  req.Username,
		Password:  string(hash),
		LastLogin: time.Now(),
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	if err := database.GetDB().Create(&user).Error; err != nil {
		return c.Status(409).JSON(fiber.Map{"error": "Username or email already taken"})
	}

	token, err := issueToken(&user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to issue token"})
	}

	return c.Status(201).JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// Login checks credentials and issues a token.
func Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var user models.User
	if err := database.GetDB().Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error; err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "Invalid username or password"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "Invalid username or password"})
	}

	user.LastLogin = time.Now()
	database.GetDB().Model(&user).Update("last_login", user.LastLogin)

	token, err := issueToken(&user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to issue token"})
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

func issueToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":      user.PublicID,
		"user_id":  user.ID,
		"username": user.Username,
		"is_guest": user.IsGuest,
		"exp":      time.Now().Add(tokenTTL).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET")))
}
