// database/migrate.go - Database Migration Runner
package database

import (
	"log"

	"quizlive/models"
)

// RunMigrations runs all database migrations
func RunMigrations() {
	db := GetDB()
	log.Println("🔄 Running database migrations...")

	if err := db.AutoMigrate(
		&models.User{},
		&models.Game{},
		&models.Question{},
		&models.Answer{},
		&models.SessionRecord{},
		&models.SessionPlayerRecord{},
		&models.SessionAnalytics{},
	); err != nil {
		log.Fatalf("❌ Failed to run migrations: %v", err)
	}

	createIndexes()

	log.Println("✅ All migrations completed successfully")
}

func createIndexes() {
	db := GetDB()

	db.Exec("CREATE INDEX IF NOT EXISTS idx_games_owner ON games(owner_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_questions_game_position ON questions(game_id, position)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_answers_question ON answers(question_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_session_records_room_status ON session_records(room_code, status)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_session_players_session ON session_player_records(session_id)")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_session_analytics_game ON session_analytics(game_id)")
}
