// services/validation.go - Pure gate checks for session operations
package services

import "quizlive/models"

// ValidationResult is the outcome of a gate check. Failures are values,
// never panics or errors.
type ValidationResult struct {
	Valid  bool
	Reason string
}

func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func Invalid(reason string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}

// CanCreateRoom gates room creation on quiz existence and ownership.
func CanCreateRoom(game *models.Game, requesterID string) ValidationResult {
	if game == nil {
		return Invalid("Game not found")
	}
	if game.OwnerID != requesterID {
		return Invalid("Only the quiz owner can host this game")
	}
	return Valid()
}

// CanStartGame gates game start on lobby state, player count and
// question count.
func CanStartGame(session *GameSession) ValidationResult {
	if session == nil {
		return Invalid("Room not found")
	}
	if session.State != StateLobby {
		return Invalid("Game has already started")
	}
	if len(session.Players) == 0 {
		return Invalid("Cannot start a game with no players")
	}
	if len(session.Questions) == 0 {
		return Invalid("Cannot start a game with no questions")
	}
	return Valid()
}

// CanJoin gates new joins on lobby state; reconnections bypass this.
func CanJoin(session *GameSession) ValidationResult {
	if session == nil {
		return Invalid("Room not found")
	}
	if session.State != StateLobby {
		return Invalid("Game has already started")
	}
	return Valid()
}

// CanKick gates player removal on the requester being the bound host.
func CanKick(session *GameSession, requester *ConnectionInfo) ValidationResult {
	if session == nil {
		return Invalid("Room not found")
	}
	if requester == nil || !requester.IsHost || requester.RoomCode != session.RoomCode {
		return Invalid("Only the host can kick players")
	}
	return Valid()
}

// CanProceed gates host progression operations.
func CanProceed(session *GameSession, requester *ConnectionInfo) ValidationResult {
	if session == nil {
		return Invalid("Room not found")
	}
	if requester == nil || !requester.IsHost || requester.RoomCode != session.RoomCode {
		return Invalid("Only the host can control the game")
	}
	return Valid()
}
