// handlers/debug.go - Active room inspection endpoints
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"quizlive/services"
)

// DebugHandlers exposes live session state for operations tooling.
type DebugHandlers struct {
	Sessions    *services.SessionRegistry
	Connections *services.ConnectionRegistry
}

// ListRooms returns a summary of every active room.
func (d *DebugHandlers) ListRooms(c *fiber.Ctx) error {
	rooms := []fiber.Map{}
	for _, session := range d.Sessions.All() {
		session.Lock()
		rooms = append(rooms, fiber.Map{
			"room_code":      session.RoomCode,
			"game_id":        session.GameID,
			"state":          string(session.State),
			"player_count":   len(session.Players),
			"question_index": session.CurrentQuestionIndex,
			"question_count": len(session.Questions),
			"created_at":     session.CreatedAt,
		})
		session.Unlock()
	}
	return c.JSON(fiber.Map{
		"room_count":       len(rooms),
		"connection_count": d.Connections.Count(),
		"rooms":            rooms,
	})
}

// GetRoom returns full detail for one room, including the live roster.
func (d *DebugHandlers) GetRoom(c *fiber.Ctx) error {
	session := d.Sessions.Get(c.Params("code"))
	if session == nil {
		return c.Status(404).JSON(fiber.Map{"error": "Room not found"})
	}

	session.Lock()
	players := make([]fiber.Map, 0, len(session.Players))
	for _, p := range session.Players {
		players = append(players, fiber.Map{
			"player_id":       p.ID,
			"name":            p.Name,
			"score":           p.Score,
			"correct_answers": p.CorrectAnswers,
			"total_answers":   p.TotalAnswers,
			"connected":       p.Connected,
			"has_answered":    p.HasAnswered,
		})
	}
	detail := fiber.Map{
		"room_code":               session.RoomCode,
		"game_id":                 session.GameID,
		"state":                   string(session.State),
		"is_waiting_for_host":     session.IsWaitingForHost,
		"final_leaderboard_ready": session.FinalLeaderboardReady,
		"question_index":          session.CurrentQuestionIndex,
		"question_count":          len(session.Questions),
		"players":                 players,
		"created_at":              session.CreatedAt,
	}
	session.Unlock()

	return c.JSON(detail)
}
