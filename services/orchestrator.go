// services/orchestrator.go - Session orchestration hub
//
// Every public operation follows the same pattern: resolve the caller's
// connection/session context, validate, mutate the registries, push the
// results, then schedule the next timer. Unexpected faults are caught at
// the operation boundary and surfaced as a generic error event.
package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"quizlive/models"
)

// OrchestratorConfig tunes the timer chain. Tests shrink the delays.
type OrchestratorConfig struct {
	StartDelay        time.Duration // grace period before the first question
	CompletionPadding time.Duration // slack past the question timer before forcing completion
	SkipDelay         time.Duration // retry delay when a question has no answers configured
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		StartDelay:        3 * time.Second,
		CompletionPadding: 2 * time.Second,
		SkipDelay:         time.Second,
	}
}

// Orchestrator coordinates the full question lifecycle for every room.
type Orchestrator struct {
	sessions  *SessionRegistry
	conns     *ConnectionRegistry
	directory *PlayerDirectory
	messenger *Messenger
	store     Store
	analytics Analytics
	media     MediaStore
	cfg       OrchestratorConfig

	now func() time.Time
}

func NewOrchestrator(
	sessions *SessionRegistry,
	conns *ConnectionRegistry,
	directory *PlayerDirectory,
	messenger *Messenger,
	store Store,
	analytics Analytics,
	media MediaStore,
	cfg OrchestratorConfig,
) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		conns:     conns,
		directory: directory,
		messenger: messenger,
		store:     store,
		analytics: analytics,
		media:     media,
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateRoom opens a new lobby from a pre-authored quiz. Only the quiz
// owner may host it; the questions are snapshotted at creation so later
// edits never affect a running room.
func (o *Orchestrator) CreateRoom(connectionID, identity string, gameID uint, autoShowResults bool) {
	defer o.guard(connectionID, "Failed to create room")

	game, err := o.store.GetGameByID(gameID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			o.fail(connectionID, "Game not found")
			return
		}
		log.Printf("❌ [CREATE_ROOM] Loading game %d: %v", gameID, err)
		o.fail(connectionID, "Failed to create room")
		return
	}

	if v := CanCreateRoom(game, identity); !v.Valid {
		o.fail(connectionID, v.Reason)
		return
	}

	questions, err := o.store.GetQuestionsByGameID(gameID)
	if err != nil {
		log.Printf("❌ [CREATE_ROOM] Loading questions for game %d: %v", gameID, err)
		o.fail(connectionID, "Failed to create room")
		return
	}

	roomCode, err := GenerateRoomCode(func(code string) bool {
		if o.sessions.Get(code) != nil {
			return true
		}
		used, err := o.store.RoomCodeInUse(code)
		if err != nil {
			log.Printf("⚠️ [CREATE_ROOM] Room code check failed: %v", err)
			return false
		}
		return used
	})
	if err != nil {
		log.Printf("❌ [CREATE_ROOM] %v", err)
		o.fail(connectionID, "Failed to create room")
		return
	}

	background, err := o.media.GetBackgroundImage(gameID)
	if err != nil {
		log.Printf("⚠️ [CREATE_ROOM] Background lookup for game %d: %v", gameID, err)
	}
	audio, err := o.media.GetAudioURLs()
	if err != nil {
		log.Printf("⚠️ [CREATE_ROOM] Audio lookup: %v", err)
	}

	record := &models.SessionRecord{
		RoomCode:      roomCode,
		GameID:        gameID,
		HostID:        identity,
		Status:        "active",
		QuestionCount: len(questions),
	}
	if err := o.store.CreateSession(record); err != nil {
		log.Printf("❌ [CREATE_ROOM] %v", err)
		o.fail(connectionID, "Failed to create room")
		return
	}

	session := &GameSession{
		RoomCode:             roomCode,
		GameID:               gameID,
		GameTitle:            game.Title,
		RecordID:             record.ID,
		HostUserID:           identity,
		HostConnectionID:     connectionID,
		Questions:            snapshotQuestions(questions),
		CurrentQuestionIndex: -1,
		State:                StateLobby,
		AutoShowResults:      autoShowResults,
		BackgroundImage:      background,
		AudioURLs:            audio,
		CreatedAt:            o.now(),
	}

	o.sessions.Create(roomCode, session)
	o.conns.Bind(connectionID, roomCode, identity, true, "")

	log.Printf("✅ [CREATE_ROOM] Room %s created for game %d (%d questions)", roomCode, gameID, len(questions))

	o.messenger.ToConnection(connectionID, "roomCreated", map[string]interface{}{
		"room_code":      roomCode,
		"game_id":        gameID,
		"game_title":     game.Title,
		"question_count": len(session.Questions),
		"total_playtime": session.TotalPlaytime(),
		"background":     background,
		"audio":          audio,
	})
}

// JoinGame admits a new player into a lobby or reconnects a returning
// one. A display name already used by another identity is rejected.
func (o *Orchestrator) JoinGame(connectionID, roomCode, userName, claimedPlayerID string) {
	defer o.guard(connectionID, "Failed to join game")

	roomCode = strings.ToUpper(strings.TrimSpace(roomCode))
	userName = strings.TrimSpace(userName)
	if userName == "" {
		o.fail(connectionID, "Name is required")
		return
	}

	session := o.sessions.Get(roomCode)
	if session == nil {
		o.fail(connectionID, "Room not found")
		return
	}

	session.Lock()
	outcome, existing := o.directory.DecideJoin(session, userName, claimedPlayerID)

	switch outcome {
	case JoinNameTaken:
		session.Unlock()
		o.fail(connectionID, "Name already used")

	case JoinReconnect:
		o.reconnectLocked(session, existing, connectionID)

	default:
		if v := CanJoin(session); !v.Valid {
			session.Unlock()
			o.fail(connectionID, v.Reason)
			return
		}
		session.Unlock()

		// Awaited store call issued without the session lock held.
		player, err := o.directory.CreatePlayer(session, userName, connectionID)
		if err != nil {
			log.Printf("❌ [JOIN] %v", err)
			o.fail(connectionID, "Failed to join game")
			return
		}

		session.Lock()
		// Re-validate: the room may have started or the name may have
		// been claimed while the store call was in flight.
		if o.sessions.Get(roomCode) != session {
			session.Unlock()
			o.fail(connectionID, "Room not found")
			return
		}
		if v := CanJoin(session); !v.Valid {
			session.Unlock()
			o.fail(connectionID, v.Reason)
			return
		}
		if session.FindPlayerByName(userName) != nil {
			session.Unlock()
			o.fail(connectionID, "Name already used")
			return
		}
		session.Players = append(session.Players, player)
		roster := rosterOf(session)
		background := session.BackgroundImage
		audio := session.AudioURLs
		title := session.GameTitle
		session.Unlock()

		o.conns.Bind(connectionID, roomCode, player.ID, false, userName)

		log.Printf("🎮 Player %s (%s) joined room %s", userName, player.ID, roomCode)

		o.messenger.ToConnection(connectionID, "joinedGame", map[string]interface{}{
			"player_id":  player.ID,
			"room_code":  roomCode,
			"game_title": title,
			"players":    roster,
			"background": background,
			"audio":      audio,
		})
		o.broadcastRoom(roomCode, "playerJoined", map[string]interface{}{
			"player_id":    player.ID,
			"name":         userName,
			"player_count": len(roster),
			"reconnected":  false,
		})
		o.pushLobbyInfo(roomCode)
	}
}

// reconnectLocked rebinds a returning player and pushes the full state
// snapshot so the client resumes without replay. Takes the session lock
// held and releases it.
func (o *Orchestrator) reconnectLocked(session *GameSession, player *SessionPlayer, connectionID string) {
	roomCode := session.RoomCode
	player.ConnectionID = connectionID
	player.Connected = true

	answeredCurrent := player.HasAnswered && player.CurrentQuestionIndex == session.CurrentQuestionIndex
	selections := append([]uint(nil), player.SelectedAnswerIDs...)
	leaderboard := RankPlayers(session.Players)

	snapshot := map[string]interface{}{
		"player_id":              player.ID,
		"room_code":              roomCode,
		"game_title":             session.GameTitle,
		"state":                  session.State,
		"score":                  player.Score,
		"rank":                   RankOf(leaderboard, player.ID),
		"current_question_index": session.CurrentQuestionIndex,
		"has_answered":           answeredCurrent,
		"selected_answer_ids":    selections,
		"question_started_at":    session.QuestionStartTime.UnixMilli(),
		"question_ends_at":       session.QuestionEndTime.UnixMilli(),
		"players":                rosterOf(session),
		"background":             session.BackgroundImage,
		"audio":                  session.AudioURLs,
	}
	if q := session.CurrentQuestion(); q != nil && session.State == StateInProgress {
		snapshot["question"] = questionView(q, session.CurrentQuestionIndex, len(session.Questions), session.QuestionEndTime, false)
	}
	name := player.Name
	playerID := player.ID
	count := len(session.Players)
	session.Unlock()

	o.conns.Bind(connectionID, roomCode, playerID, false, name)

	log.Printf("🔁 Player %s (%s) reconnected to room %s", name, playerID, roomCode)

	o.messenger.ToConnection(connectionID, "reconnectState", snapshot)
	o.broadcastRoom(roomCode, "playerJoined", map[string]interface{}{
		"player_id":    playerID,
		"name":         name,
		"player_count": count,
		"reconnected":  true,
	})
}

// StartGame moves a lobby into play and schedules the first question.
func (o *Orchestrator) StartGame(connectionID, roomCode string) {
	defer o.guard(connectionID, "Failed to start game")

	info := o.conns.Lookup(connectionID)
	if info == nil || !info.IsHost || info.RoomCode != roomCode {
		o.fail(connectionID, "Only the host can start the game")
		return
	}

	session := o.sessions.Get(roomCode)
	if session == nil {
		o.fail(connectionID, "Room not found")
		return
	}

	session.Lock()
	if v := CanStartGame(session); !v.Valid {
		session.Unlock()
		o.fail(connectionID, v.Reason)
		return
	}
	session.State = StateInProgress
	for _, p := range session.Players {
		p.ResetAnswerState()
	}
	questionCount := len(session.Questions)
	session.Unlock()

	log.Printf("🎮 Room %s started (%d questions)", roomCode, questionCount)

	o.broadcastRoom(roomCode, "gameStarted", map[string]interface{}{
		"question_count": questionCount,
		"starts_in_ms":   o.cfg.StartDelay.Milliseconds(),
	})

	o.messenger.RunAfter(o.cfg.StartDelay, func() {
		o.advanceQuestion(roomCode, -1)
	})
}

// SubmitAnswer handles the single-answer shape: for single-choice and
// true/false questions the first submission finalizes and scores; for
// multi-answer questions each call accumulates one selection.
func (o *Orchestrator) SubmitAnswer(connectionID string, answerID uint) {
	defer o.guard(connectionID, "Failed to submit answer")

	session, player, index, question, ok := o.resolveSubmission(connectionID)
	if !ok {
		return
	}
	// resolveSubmission returns with the session locked on success.

	if question.Type == QuestionMultipleChoice {
		if !containsID(player.SelectedAnswerIDs, answerID) {
			player.SelectedAnswerIDs = append(player.SelectedAnswerIDs, answerID)
		}
		player.CurrentQuestionIndex = index
		selected := append([]uint(nil), player.SelectedAnswerIDs...)
		session.Unlock()

		o.messenger.ToConnection(connectionID, "answerSubmitted", map[string]interface{}{
			"question_index": index,
			"answer_ids":     selected,
			"finalized":      false,
		})
		return
	}

	player.SelectedAnswerIDs = []uint{answerID}
	o.scoreSubmissionLocked(session, player, question, index)
	o.afterSubmissionLocked(session, player, index, "answerSubmitted")
}

// SubmitMultipleAnswers finalizes a multi-answer selection set: the
// accumulated ids plus any supplied here are frozen and scored.
func (o *Orchestrator) SubmitMultipleAnswers(connectionID string, answerIDs []uint) {
	defer o.guard(connectionID, "Failed to submit answers")

	session, player, index, question, ok := o.resolveSubmission(connectionID)
	if !ok {
		return
	}

	if question.Type != QuestionMultipleChoice {
		session.Unlock()
		o.fail(connectionID, "Question does not accept multiple answers")
		return
	}

	for _, id := range answerIDs {
		if !containsID(player.SelectedAnswerIDs, id) {
			player.SelectedAnswerIDs = append(player.SelectedAnswerIDs, id)
		}
	}
	o.scoreSubmissionLocked(session, player, question, index)
	o.afterSubmissionLocked(session, player, index, "multipleAnswersSubmitted")
}

// resolveSubmission resolves the caller's player and active question and
// applies the already-finalized gate. On success the session lock is
// held by the caller.
func (o *Orchestrator) resolveSubmission(connectionID string) (*GameSession, *SessionPlayer, int, *SnapshotQuestion, bool) {
	info := o.conns.Lookup(connectionID)
	if info == nil || info.RoomCode == "" {
		o.fail(connectionID, "Not in a room")
		return nil, nil, 0, nil, false
	}

	session := o.sessions.Get(info.RoomCode)
	if session == nil {
		o.fail(connectionID, "Room not found")
		return nil, nil, 0, nil, false
	}

	session.Lock()
	if session.State != StateInProgress {
		session.Unlock()
		o.fail(connectionID, "No active question")
		return nil, nil, 0, nil, false
	}
	question := session.CurrentQuestion()
	if question == nil {
		session.Unlock()
		o.fail(connectionID, "No active question")
		return nil, nil, 0, nil, false
	}
	player := session.FindPlayer(info.UserID)
	if player == nil {
		session.Unlock()
		o.fail(connectionID, "You are not playing in this game")
		return nil, nil, 0, nil, false
	}

	index := session.CurrentQuestionIndex
	if player.HasAnswered && player.CurrentQuestionIndex == index {
		session.Unlock()
		o.fail(connectionID, "Answer already submitted")
		return nil, nil, 0, nil, false
	}
	if player.CurrentQuestionIndex != index {
		// Stale scratch from an earlier question.
		player.ResetAnswerState()
		player.CurrentQuestionIndex = index
	}
	return session, player, index, question, true
}

// scoreSubmissionLocked freezes the selection, evaluates correctness and
// applies the time-decay reward. Caller holds the session lock.
func (o *Orchestrator) scoreSubmissionLocked(session *GameSession, player *SessionPlayer, question *SnapshotQuestion, index int) {
	player.HasAnswered = true
	player.CurrentQuestionIndex = index
	player.TotalAnswers++

	response := o.now().Sub(session.QuestionStartTime)
	player.RecordResponse(response)

	if IsCorrect(question, player.SelectedAnswerIDs) {
		player.CorrectAnswers++
		player.LastCorrect = true
		player.LastPoints = ScorePoints(question.MaxPoints, response, question.TimeLimit)
		player.Score += player.LastPoints
	} else {
		player.LastCorrect = false
		player.LastPoints = 0
	}
}

// afterSubmissionLocked pushes the acknowledgement and host progress
// update, then completes the question early if everyone has answered.
// Takes the session lock held and releases it.
func (o *Orchestrator) afterSubmissionLocked(session *GameSession, player *SessionPlayer, index int, ackEvent string) {
	roomCode := session.RoomCode
	hostConn := session.HostConnectionID
	connID := player.ConnectionID
	selected := append([]uint(nil), player.SelectedAnswerIDs...)
	answered, total := answeredCountLocked(session, index)
	playerID, name := player.ID, player.Name
	session.Unlock()

	o.messenger.ToConnection(connID, ackEvent, map[string]interface{}{
		"question_index": index,
		"answer_ids":     selected,
		"finalized":      true,
	})
	o.messenger.ToConnection(hostConn, "answerSubmitted", map[string]interface{}{
		"player_id":      playerID,
		"name":           name,
		"question_index": index,
		"answered_count": answered,
		"player_count":   total,
	})

	if answered == total && total > 0 {
		log.Printf("✅ All %d players answered Q%d in room %s", total, index+1, roomCode)
		o.completeQuestion(roomCode, index)
	}
}

// ProceedToNextQuestion is the host's progression control. Past the last
// question it arms the final-leaderboard reveal instead of auto-ending.
func (o *Orchestrator) ProceedToNextQuestion(connectionID, roomCode string) {
	defer o.guard(connectionID, "Failed to proceed")

	session := o.sessions.Get(roomCode)
	if v := CanProceed(session, o.conns.Lookup(connectionID)); !v.Valid {
		o.fail(connectionID, v.Reason)
		return
	}

	session.Lock()
	if session.State != StateWaitingForHost {
		session.Unlock()
		o.fail(connectionID, "Cannot proceed right now")
		return
	}
	if session.FinalLeaderboardReady {
		session.Unlock()
		o.endGame(roomCode)
		return
	}
	if session.CurrentQuestionIndex+1 >= len(session.Questions) {
		session.FinalLeaderboardReady = true
		leaderboard := RankPlayers(session.Players)
		hostConn := session.HostConnectionID
		session.Unlock()

		o.messenger.ToConnection(hostConn, "finalLeaderboardReady", map[string]interface{}{
			"leaderboard": leaderboard,
		})
		return
	}
	fromIndex := session.CurrentQuestionIndex
	session.Unlock()

	o.broadcastRoom(roomCode, "proceedingToNextQuestion", map[string]interface{}{
		"next_index": fromIndex + 1,
	})
	o.advanceQuestion(roomCode, fromIndex)
}

// ShowFinalLeaderboard ends the game on host request. The reveal is
// only reachable from the between-questions pause; a live question must
// run out or be answered first.
func (o *Orchestrator) ShowFinalLeaderboard(connectionID, roomCode string) {
	defer o.guard(connectionID, "Failed to show final leaderboard")

	session := o.sessions.Get(roomCode)
	if v := CanProceed(session, o.conns.Lookup(connectionID)); !v.Valid {
		o.fail(connectionID, v.Reason)
		return
	}

	session.Lock()
	if session.State != StateWaitingForHost {
		session.Unlock()
		o.fail(connectionID, "Cannot show the final leaderboard right now")
		return
	}
	session.Unlock()

	o.endGame(roomCode)
}

// KickPlayer removes a player from the roster and the broadcast group.
func (o *Orchestrator) KickPlayer(connectionID, roomCode, playerID string) {
	defer o.guard(connectionID, "Failed to kick player")

	session := o.sessions.Get(roomCode)
	if v := CanKick(session, o.conns.Lookup(connectionID)); !v.Valid {
		o.fail(connectionID, v.Reason)
		return
	}

	session.Lock()
	player := session.FindPlayer(playerID)
	if player == nil {
		session.Unlock()
		o.fail(connectionID, "Player not found")
		return
	}
	removePlayer(session, playerID)
	targetConn := player.ConnectionID
	name := player.Name
	session.Unlock()

	log.Printf("🚪 Player %s kicked from room %s", name, roomCode)

	o.messenger.ToConnection(targetConn, "kickedFromGame", map[string]interface{}{
		"reason": "Removed by the host",
	})
	o.conns.UnbindPlayer(targetConn, name)

	o.broadcastRoom(roomCode, "playerLeft", map[string]interface{}{
		"player_id": playerID,
		"name":      name,
		"kicked":    true,
	})
	o.pushLobbyInfo(roomCode)
}

// HandleDisconnect reacts to connection loss. A host disconnect tears
// the session down; a player disconnect in the lobby removes the player,
// mid-game it only marks them disconnected so reconnection can restore.
func (o *Orchestrator) HandleDisconnect(connectionID string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Disconnect handling panicked for %s: %v", connectionID, r)
		}
	}()

	info := o.conns.Lookup(connectionID)
	if info == nil {
		return
	}

	if info.IsHost {
		o.handleHostDisconnect(info)
		return
	}

	session := o.sessions.Get(info.RoomCode)
	if session == nil {
		o.conns.Unbind(connectionID)
		return
	}

	session.Lock()
	player := session.FindPlayer(info.UserID)
	inLobby := session.State == StateLobby
	if player != nil {
		if inLobby {
			removePlayer(session, player.ID)
		} else {
			player.Connected = false
			player.ConnectionID = ""
		}
	}
	session.Unlock()

	if player == nil {
		o.conns.Unbind(connectionID)
		return
	}

	if inLobby {
		// Gone for good; release the name for other joiners.
		o.conns.UnbindPlayer(connectionID, info.DisplayName)
		o.broadcastRoom(info.RoomCode, "playerLeft", map[string]interface{}{
			"player_id": player.ID,
			"name":      player.Name,
			"kicked":    false,
		})
		o.pushLobbyInfo(info.RoomCode)
		return
	}

	// Keep the name reservation so the player can reconnect.
	o.conns.Unbind(connectionID)
	o.broadcastRoom(info.RoomCode, "playerDisconnected", map[string]interface{}{
		"player_id": player.ID,
		"name":      player.Name,
	})
}

func (o *Orchestrator) handleHostDisconnect(info *ConnectionInfo) {
	roomCode := info.RoomCode
	o.conns.Unbind(info.ConnectionID)

	session := o.sessions.Get(roomCode)
	if session == nil {
		return
	}

	session.Lock()
	previousState := session.State
	session.State = StateAborted
	players := append([]*SessionPlayer(nil), session.Players...)
	recordID := session.RecordID
	summary := summaryLocked(session)
	session.Unlock()

	log.Printf("🔌 Host disconnected from room %s (state was %s)", roomCode, previousState)

	o.broadcastRoom(roomCode, "hostDisconnected", map[string]interface{}{
		"message": "The host has left the game",
	})

	wasActive := previousState == StateInProgress || previousState == StateWaitingForHost
	if wasActive {
		o.analytics.CreateSessionAnalytics(summary, players, "aborted")
	}
	go func() {
		if err := o.store.EndSession(recordID, "aborted"); err != nil {
			log.Printf("⚠️ Failed to mark session %d aborted: %v", recordID, err)
		}
	}()

	o.teardownRoom(roomCode)
}

// advanceQuestion moves the room from the question index the caller
// observed to the next one. Fired by the start timer, host proceed, and
// the zero-answer skip retry. A removed room, or a session another
// advance already moved past from, makes it a no-op; without the index
// check two racing host proceeds would advance twice.
func (o *Orchestrator) advanceQuestion(roomCode string, from int) {
	defer o.guardTimer(roomCode, "advance")

	session := o.sessions.Get(roomCode)
	if session == nil {
		return
	}

	session.Lock()
	if session.State != StateInProgress && session.State != StateWaitingForHost {
		session.Unlock()
		return
	}
	if session.CurrentQuestionIndex != from {
		session.Unlock()
		return
	}
	next := from + 1
	if next >= len(session.Questions) {
		session.Unlock()
		o.endGame(roomCode)
		return
	}
	session.CurrentQuestionIndex = next
	session.State = StateInProgress
	session.IsWaitingForHost = false
	for _, p := range session.Players {
		p.ResetAnswerState()
	}
	needFetch := session.Questions[next].Answers == nil
	questionID := session.Questions[next].ID
	session.Unlock()

	if needFetch {
		answers, err := o.store.GetAnswersByQuestionID(questionID)
		if err != nil {
			log.Printf("⚠️ Loading answers for question %d in room %s: %v", questionID, roomCode, err)
		}
		snapshot := snapshotAnswers(answers)

		session.Lock()
		if o.sessions.Get(roomCode) != session || session.CurrentQuestionIndex != next {
			session.Unlock()
			return
		}
		session.Questions[next].Answers = snapshot
		session.Unlock()
	}

	session.Lock()
	if session.CurrentQuestionIndex != next || session.State != StateInProgress {
		session.Unlock()
		return
	}
	question := &session.Questions[next]

	if len(question.Answers) == 0 {
		session.Unlock()
		log.Printf("⚠️ Question %d in room %s has no answers configured, skipping", next+1, roomCode)
		o.broadcastRoom(roomCode, "proceedingToNextQuestion", map[string]interface{}{
			"next_index":    next + 1,
			"skipped_index": next,
			"reason":        "question has no answers",
		})
		o.messenger.RunAfter(o.cfg.SkipDelay, func() {
			o.advanceQuestion(roomCode, next)
		})
		return
	}

	now := o.now()
	session.QuestionStartTime = now
	session.QuestionEndTime = now.Add(time.Duration(question.TimeLimit) * time.Second)

	total := len(session.Questions)
	endsAt := session.QuestionEndTime
	playerView := questionView(question, next, total, endsAt, false)
	hostView := questionView(question, next, total, endsAt, true)
	hostConn := session.HostConnectionID
	timeLimit := question.TimeLimit
	session.Unlock()

	log.Printf("➡️ Room %s on Q%d/%d (%ds)", roomCode, next+1, total, timeLimit)

	o.messenger.ToConnections(o.playerConnections(roomCode), "newQuestion", playerView)
	o.messenger.ToConnection(hostConn, "hostNewQuestion", hostView)

	o.messenger.RunAfter(time.Duration(timeLimit)*time.Second+o.cfg.CompletionPadding, func() {
		o.completeQuestion(roomCode, next)
	})
}

// completeQuestion freezes the current question and publishes results.
// Both the timer and the all-answered path land here; the index/state
// re-check makes the second arrival a no-op.
func (o *Orchestrator) completeQuestion(roomCode string, index int) {
	defer o.guardTimer(roomCode, "complete")

	session := o.sessions.Get(roomCode)
	if session == nil {
		return
	}

	session.Lock()
	if session.CurrentQuestionIndex != index || session.State != StateInProgress {
		session.Unlock()
		return
	}
	session.State = StateWaitingForHost
	session.IsWaitingForHost = true

	question := &session.Questions[index]
	correctIDs := question.CorrectAnswerIDs()

	answerCounts := make(map[uint]int, len(question.Answers))
	for _, a := range question.Answers {
		answerCounts[a.ID] = 0
	}
	playerRows := make([]map[string]interface{}, 0, len(session.Players))
	for _, p := range session.Players {
		answered := p.HasAnswered && p.CurrentQuestionIndex == index
		if p.CurrentQuestionIndex == index {
			for _, id := range p.SelectedAnswerIDs {
				answerCounts[id]++
			}
		}
		playerRows = append(playerRows, map[string]interface{}{
			"player_id": p.ID,
			"name":      p.Name,
			"answered":  answered,
			"correct":   answered && p.LastCorrect,
			"points":    p.LastPoints,
			"score":     p.Score,
		})
	}

	leaderboard := RankPlayers(session.Players)
	hostConn := session.HostConnectionID
	autoShow := session.AutoShowResults

	type individualResult struct {
		connID  string
		payload map[string]interface{}
	}
	individual := make([]individualResult, 0, len(session.Players))
	for _, p := range session.Players {
		if !p.Connected || p.ConnectionID == "" {
			continue
		}
		answered := p.HasAnswered && p.CurrentQuestionIndex == index
		individual = append(individual, individualResult{
			connID: p.ConnectionID,
			payload: map[string]interface{}{
				"question_index":     index,
				"answered":           answered,
				"correct":            answered && p.LastCorrect,
				"points":             p.LastPoints,
				"score":              p.Score,
				"rank":               RankOf(leaderboard, p.ID),
				"correct_answer_ids": correctIDs,
			},
		})
	}
	session.Unlock()

	log.Printf("⏰ Q%d completed in room %s", index+1, roomCode)

	o.broadcastRoom(roomCode, "questionTimeEnded", map[string]interface{}{
		"question_index":     index,
		"correct_answer_ids": correctIDs,
	})
	o.messenger.ToConnection(hostConn, "questionResults", map[string]interface{}{
		"question_index": index,
		"answer_counts":  answerCounts,
		"players":        playerRows,
		"leaderboard":    leaderboard,
	})
	if autoShow {
		for _, r := range individual {
			o.messenger.ToConnection(r.connID, "playerQuestionResult", r.payload)
		}
	}
}

// endGame publishes the final results, syncs player stats back to the
// store, records analytics and removes the session from the registry.
func (o *Orchestrator) endGame(roomCode string) {
	session := o.sessions.Get(roomCode)
	if session == nil {
		return
	}

	session.Lock()
	if session.State == StateCompleted || session.State == StateAborted {
		session.Unlock()
		return
	}
	session.State = StateCompleted
	leaderboard := RankPlayers(session.Players)
	players := append([]*SessionPlayer(nil), session.Players...)
	recordID := session.RecordID
	hostConn := session.HostConnectionID
	summary := summaryLocked(session)
	session.Unlock()

	topThree := leaderboard
	if len(topThree) > 3 {
		topThree = topThree[:3]
	}
	winner := map[string]interface{}{}
	if len(leaderboard) > 0 {
		winner = map[string]interface{}{
			"player_id": leaderboard[0].PlayerID,
			"name":      leaderboard[0].Name,
			"score":     leaderboard[0].Score,
		}
	}

	log.Printf("🏁 Game complete in room %s (%d players)", roomCode, len(players))

	o.broadcastRoom(roomCode, "gameCompleted", map[string]interface{}{
		"leaderboard": leaderboard,
		"winner":      winner,
		"top_three":   topThree,
	})

	for _, p := range players {
		if !p.Connected || p.ConnectionID == "" || p.ConnectionID == hostConn {
			continue
		}
		o.messenger.ToConnection(p.ConnectionID, "finalResults", map[string]interface{}{
			"rank":            RankOf(leaderboard, p.ID),
			"score":           p.Score,
			"correct_answers": p.CorrectAnswers,
			"total_answers":   p.TotalAnswers,
			"player_count":    len(players),
			"winner":          winner,
		})
	}

	// Persistence after broadcasts, isolated from them.
	go o.syncResults(recordID, players, leaderboard)
	o.analytics.CreateSessionAnalytics(summary, players, "completed")

	o.teardownRoom(roomCode)
}

func (o *Orchestrator) syncResults(recordID uint, players []*SessionPlayer, leaderboard []LeaderboardEntry) {
	for _, p := range players {
		record := &models.SessionPlayerRecord{
			ID:             p.RecordID,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			TotalAnswers:   p.TotalAnswers,
			AvgResponseMS:  p.AvgResponseMS,
			Rank:           RankOf(leaderboard, p.ID),
		}
		if err := o.store.UpdatePlayer(record); err != nil {
			log.Printf("⚠️ Failed to sync player %s: %v", p.ID, err)
		}
	}
	if err := o.store.EndSession(recordID, "completed"); err != nil {
		log.Printf("⚠️ Failed to end session %d: %v", recordID, err)
	}
}

func (o *Orchestrator) teardownRoom(roomCode string) {
	o.conns.ReleaseRoom(roomCode)
	o.sessions.Remove(roomCode)
}

// pushLobbyInfo broadcasts the current roster to the whole room.
func (o *Orchestrator) pushLobbyInfo(roomCode string) {
	session := o.sessions.Get(roomCode)
	if session == nil {
		return
	}
	session.Lock()
	payload := map[string]interface{}{
		"room_code":      roomCode,
		"game_title":     session.GameTitle,
		"players":        rosterOf(session),
		"player_count":   len(session.Players),
		"question_count": len(session.Questions),
		"state":          session.State,
	}
	session.Unlock()

	o.broadcastRoom(roomCode, "lobbyInfo", payload)
}

func (o *Orchestrator) broadcastRoom(roomCode, event string, payload interface{}) {
	o.messenger.ToConnections(o.conns.ConnectionsInRoom(roomCode), event, payload)
}

// playerConnections returns the room's connections minus the host.
func (o *Orchestrator) playerConnections(roomCode string) []string {
	all := o.conns.ConnectionsInRoom(roomCode)
	out := make([]string, 0, len(all))
	for _, id := range all {
		if info := o.conns.Lookup(id); info != nil && !info.IsHost {
			out = append(out, id)
		}
	}
	return out
}

// fail surfaces a validation failure as a user-facing error event.
func (o *Orchestrator) fail(connectionID, reason string) {
	o.messenger.ToConnection(connectionID, "error", map[string]interface{}{
		"message": reason,
	})
}

// guard is the per-operation fault boundary: unexpected panics are
// logged with context and reported to the caller as a generic message,
// never allowed to crash the orchestrator or other rooms.
func (o *Orchestrator) guard(connectionID, message string) {
	if r := recover(); r != nil {
		log.Printf("❌ %s (connection %s): panic: %v", message, connectionID, r)
		o.fail(connectionID, message)
	}
}

func (o *Orchestrator) guardTimer(roomCode, phase string) {
	if r := recover(); r != nil {
		log.Printf("❌ Timer %s panicked for room %s: %v", phase, roomCode, r)
	}
}

func answeredCountLocked(session *GameSession, index int) (answered, total int) {
	for _, p := range session.Players {
		if !p.Connected {
			continue
		}
		total++
		if p.HasAnswered && p.CurrentQuestionIndex == index {
			answered++
		}
	}
	return answered, total
}

func removePlayer(session *GameSession, playerID string) {
	for i, p := range session.Players {
		if p.ID == playerID {
			session.Players = append(session.Players[:i], session.Players[i+1:]...)
			return
		}
	}
}

func rosterOf(session *GameSession) []map[string]interface{} {
	roster := make([]map[string]interface{}, 0, len(session.Players))
	for _, p := range session.Players {
		roster = append(roster, map[string]interface{}{
			"player_id": p.ID,
			"name":      p.Name,
			"score":     p.Score,
			"connected": p.Connected,
		})
	}
	return roster
}

func questionView(q *SnapshotQuestion, index, total int, endsAt time.Time, withCorrectness bool) map[string]interface{} {
	answers := make([]map[string]interface{}, 0, len(q.Answers))
	for _, a := range q.Answers {
		row := map[string]interface{}{
			"id":   a.ID,
			"text": a.Text,
		}
		if withCorrectness {
			row["is_correct"] = a.IsCorrect
		}
		answers = append(answers, row)
	}
	return map[string]interface{}{
		"question_index":  index,
		"total_questions": total,
		"id":              q.ID,
		"text":            q.Text,
		"type":            q.Type,
		"time_limit":      q.TimeLimit,
		"max_points":      q.MaxPoints,
		"image_url":       q.ImageURL,
		"ends_at":         endsAt.UnixMilli(),
		"answers":         answers,
	}
}

func snapshotQuestions(questions []models.Question) []SnapshotQuestion {
	out := make([]SnapshotQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, SnapshotQuestion{
			ID:        q.ID,
			Text:      q.Text,
			Type:      QuestionType(q.Type),
			TimeLimit: q.TimeLimit,
			MaxPoints: q.MaxPoints,
			ImageURL:  q.ImageURL,
		})
	}
	return out
}

func snapshotAnswers(answers []models.Answer) []SnapshotAnswer {
	out := make([]SnapshotAnswer, 0, len(answers))
	for _, a := range answers {
		out = append(out, SnapshotAnswer{
			ID:        a.ID,
			Text:      a.Text,
			IsCorrect: a.IsCorrect,
		})
	}
	return out
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
