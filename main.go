// ~/Documents/CODING/quizlive/main.go
package main

import (
	"log"
	"os"
	"time"

	"quizlive/database"
	"quizlive/handlers"
	"quizlive/middleware"
	"quizlive/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Validate critical environment variables
	validateEnvironment()

	// Initialize database
	database.InitDB()
	db := database.GetDB()

	// Wire the live session engine
	sessions := services.NewSessionRegistry()
	connections := services.NewConnectionRegistry()
	store := services.NewGormStore(db)
	directory := services.NewPlayerDirectory(store)
	messenger := services.NewMessenger()
	analytics := services.NewGormAnalytics(db)
	media := services.NewGormMedia(db)

	orchestrator := services.NewOrchestrator(
		sessions,
		connections,
		directory,
		messenger,
		store,
		analytics,
		media,
		services.DefaultOrchestratorConfig(),
	)

	// Sweep abandoned lobbies in the background
	cleanup := services.NewCleanupService(sessions, connections, 30*time.Minute, 5*time.Minute)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    4 * 1024 * 1024, // 4MB
		ReadTimeout:  10 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	// CORS configuration
	corsOrigins := os.Getenv("CORS_ORIGINS")
	if corsOrigins == "" {
		corsOrigins = "http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	// Apply rate limiting to all routes
	app.Use(middleware.FiberRateLimitMiddleware())

	// API Routes
	api := app.Group("/api")

	// Auth routes with stricter rate limiting
	authGroup := api.Group("/auth")
	authGroup.Use(middleware.FiberAuthRateLimitMiddleware())
	authGroup.Post("/guest", handlers.GuestLogin)
	authGroup.Post("/login", handlers.Login)
	authGroup.Post("/register", handlers.Register)

	// Quiz authoring routes (require authentication)
	gameGroup := api.Group("/games")
	gameGroup.Use(middleware.AuthMiddleware)
	gameGroup.Post("/", handlers.CreateGame)
	gameGroup.Get("/", handlers.GetGames)
	gameGroup.Get("/:id", handlers.GetGame)
	gameGroup.Put("/:id", handlers.UpdateGame)
	gameGroup.Delete("/:id", handlers.DeleteGame)
	gameGroup.Post("/:id/questions", handlers.CreateQuestion)

	questionGroup := api.Group("/questions")
	questionGroup.Use(middleware.AuthMiddleware)
	questionGroup.Delete("/:id", handlers.DeleteQuestion)
	questionGroup.Post("/:id/answers", handlers.CreateAnswer)

	answerGroup := api.Group("/answers")
	answerGroup.Use(middleware.AuthMiddleware)
	answerGroup.Delete("/:id", handlers.DeleteAnswer)

	// Debug endpoints for troubleshooting live rooms (remove in production)
	debug := &handlers.DebugHandlers{Sessions: sessions, Connections: connections}
	api.Get("/debug/rooms", debug.ListRooms)
	api.Get("/debug/rooms/:code", debug.GetRoom)

	// WebSocket endpoint for live game sessions
	hub := handlers.NewSocketHub(orchestrator, messenger)
	app.Use("/ws", hub.Upgrade)
	app.Get("/ws", hub.Handler())

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":       "healthy",
			"timestamp":    time.Now().Unix(),
			"active_rooms": sessions.Count(),
			"version":      "1.0.0",
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Printf("🚀 HTTP server starting on port %s", port)
	log.Printf("📊 Environment: %s", getEnv("APP_ENV", "development"))
	log.Printf("🔐 JWT Secret configured: %v", os.Getenv("JWT_SECRET") != "")
	log.Printf("🌐 WebSocket available at ws://localhost:%s/ws", port)

	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Failed to start HTTP server:", err)
	}
}

// validateEnvironment checks for required environment variables
func validateEnvironment() {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("FATAL: JWT_SECRET environment variable must be set. Generate one with: openssl rand -base64 64")
	}
	if len(jwtSecret) < 32 {
		log.Fatal("FATAL: JWT_SECRET must be at least 32 characters long")
	}

	appEnv := os.Getenv("APP_ENV")
	if appEnv == "production" {
		corsOrigins := os.Getenv("CORS_ORIGINS")
		if corsOrigins == "" || corsOrigins == "http://localhost:3000" {
			log.Println("WARNING: CORS_ORIGINS not properly configured for production")
		}
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Don't expose internal errors in production
	if os.Getenv("APP_ENV") == "production" && code == 500 {
		message = "An error occurred. Please try again later."
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
