package services

import (
	"sync"
	"testing"
	"time"

	"quizlive/models"
)

// fakeStore is an in-memory Store seeded with one quiz fixture.
type fakeStore struct {
	mu        sync.Mutex
	games     map[uint]*models.Game
	questions map[uint][]models.Question
	answers   map[uint][]models.Answer
	players   []*models.SessionPlayerRecord
	ended     map[uint]string
	nextID    uint
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		games:     make(map[uint]*models.Game),
		questions: make(map[uint][]models.Question),
		answers:   make(map[uint][]models.Answer),
		ended:     make(map[uint]string),
		nextID:    1000,
	}
}

func (s *fakeStore) GetGameByID(gameID uint) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	return game, nil
}

func (s *fakeStore) GetQuestionsByGameID(gameID uint) ([]models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions[gameID], nil
}

func (s *fakeStore) GetAnswersByQuestionID(questionID uint) ([]models.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers[questionID], nil
}

func (s *fakeStore) CreateSession(record *models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record.ID = s.nextID
	return nil
}

func (s *fakeStore) AddPlayerToSession(record *models.SessionPlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record.ID = s.nextID
	s.players = append(s.players, record)
	return nil
}

func (s *fakeStore) UpdatePlayer(record *models.SessionPlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.ID == record.ID {
			p.Score = record.Score
			p.CorrectAnswers = record.CorrectAnswers
			p.TotalAnswers = record.TotalAnswers
			p.Rank = record.Rank
		}
	}
	return nil
}

func (s *fakeStore) EndSession(sessionID uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended[sessionID] = status
	return nil
}

func (s *fakeStore) RoomCodeInUse(string) (bool, error) { return false, nil }

func (s *fakeStore) endedStatus(sessionID uint) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.ended[sessionID]
	return status, ok
}

type fakeAnalytics struct {
	mu        sync.Mutex
	statuses  []string
	summaries []SessionSummary
}

func (a *fakeAnalytics) CreateSessionAnalytics(summary SessionSummary, _ []*SessionPlayer, status string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses = append(a.statuses, status)
	a.summaries = append(a.summaries, summary)
}

func (a *fakeAnalytics) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.statuses...)
}

func (a *fakeAnalytics) lastSummary() (SessionSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.summaries) == 0 {
		return SessionSummary{}, false
	}
	return a.summaries[len(a.summaries)-1], true
}

type fakeMedia struct{}

func (fakeMedia) GetBackgroundImage(uint) (string, error) { return "/img/bg.png", nil }
func (fakeMedia) GetAudioURLs() (map[string]string, error) {
	return map[string]string{"lobby": "/audio/lobby.mp3"}, nil
}

// Fixture ids: game 1 owned by host-id, Q1 single choice (201 correct),
// Q2 multi-answer (301 and 302 correct).
const (
	fixtureGameID  = uint(1)
	fixtureOwnerID = "host-id"

	q1ID      = uint(101)
	q2ID      = uint(102)
	q1Correct = uint(201)
	q1Wrong   = uint(202)
	q2FirstOK = uint(301)
	q2OtherOK = uint(302)
	q2Wrong   = uint(303)
)

type testRig struct {
	t         *testing.T
	orch      *Orchestrator
	sessions  *SessionRegistry
	conns     *ConnectionRegistry
	messenger *Messenger
	store     *fakeStore
	analytics *fakeAnalytics
	senders   map[string]*stubSender
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	store := newFakeStore()
	store.games[fixtureGameID] = &models.Game{
		ID:      fixtureGameID,
		OwnerID: fixtureOwnerID,
		Title:   "Capital Cities",
	}
	store.questions[fixtureGameID] = []models.Question{
		{ID: q1ID, GameID: fixtureGameID, Text: "Capital of France?", Type: "single_choice", TimeLimit: 20, MaxPoints: 1000, Position: 1},
		{ID: q2ID, GameID: fixtureGameID, Text: "Which are in Europe?", Type: "multiple_choice", TimeLimit: 20, MaxPoints: 1000, Position: 2},
	}
	store.answers[q1ID] = []models.Answer{
		{ID: q1Correct, QuestionID: q1ID, Text: "Paris", IsCorrect: true},
		{ID: q1Wrong, QuestionID: q1ID, Text: "Lyon"},
	}
	store.answers[q2ID] = []models.Answer{
		{ID: q2FirstOK, QuestionID: q2ID, Text: "France", IsCorrect: true},
		{ID: q2OtherOK, QuestionID: q2ID, Text: "Spain", IsCorrect: true},
		{ID: q2Wrong, QuestionID: q2ID, Text: "Japan"},
	}

	sessions := NewSessionRegistry()
	conns := NewConnectionRegistry()
	messenger := NewMessenger()
	analytics := &fakeAnalytics{}

	orch := NewOrchestrator(
		sessions,
		conns,
		NewPlayerDirectory(store),
		messenger,
		store,
		analytics,
		fakeMedia{},
		OrchestratorConfig{StartDelay: time.Millisecond, CompletionPadding: time.Second, SkipDelay: time.Millisecond},
	)
	frozen := time.Now()
	orch.now = func() time.Time { return frozen }

	return &testRig{
		t:         t,
		orch:      orch,
		sessions:  sessions,
		conns:     conns,
		messenger: messenger,
		store:     store,
		analytics: analytics,
		senders:   make(map[string]*stubSender),
	}
}

func (r *testRig) connect(connID string) *stubSender {
	sender := &stubSender{}
	r.senders[connID] = sender
	r.messenger.Register(connID, sender)
	return sender
}

func findMessage(sender *stubSender, eventType string) (Message, bool) {
	msgs := sender.received()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == eventType {
			return msgs[i], true
		}
	}
	return Message{}, false
}

func waitForMessage(t *testing.T, sender *stubSender, eventType string) Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := findMessage(sender, eventType); ok {
			return msg
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never received %s", eventType)
	return Message{}
}

func payloadOf(t *testing.T, msg Message) map[string]interface{} {
	t.Helper()
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("payload of %s is not a map: %T", msg.Type, msg.Payload)
	}
	return payload
}

// createRoom runs the host flow and returns the assigned room code.
func (r *testRig) createRoom(hostConn string) string {
	r.t.Helper()
	r.orch.CreateRoom(hostConn, fixtureOwnerID, fixtureGameID, true)
	msg, ok := findMessage(r.senders[hostConn], "roomCreated")
	if !ok {
		r.t.Fatal("room was not created")
	}
	return payloadOf(r.t, msg)["room_code"].(string)
}

// join runs the player flow and returns the assigned player id.
func (r *testRig) join(connID, roomCode, name string) string {
	r.t.Helper()
	r.orch.JoinGame(connID, roomCode, name, "")
	msg, ok := findMessage(r.senders[connID], "joinedGame")
	if !ok {
		r.t.Fatalf("%s did not receive joinedGame", name)
	}
	return payloadOf(r.t, msg)["player_id"].(string)
}

func TestCreateRoom(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")

	roomCode := rig.createRoom("host-conn")
	if len(roomCode) != 6 {
		t.Errorf("expected a 6-character room code, got %q", roomCode)
	}

	session := rig.sessions.Get(roomCode)
	if session == nil {
		t.Fatal("session was not registered")
	}
	if session.State != StateLobby {
		t.Errorf("expected lobby state, got %s", session.State)
	}
	if session.CurrentQuestionIndex != -1 {
		t.Errorf("expected question index -1 before start, got %d", session.CurrentQuestionIndex)
	}
	if len(session.Questions) != 2 {
		t.Errorf("expected 2 snapshotted questions, got %d", len(session.Questions))
	}

	msg, _ := findMessage(rig.senders["host-conn"], "roomCreated")
	payload := payloadOf(t, msg)
	if payload["question_count"] != 2 {
		t.Errorf("expected question_count 2, got %v", payload["question_count"])
	}
	if payload["total_playtime"] != 40 {
		t.Errorf("expected total_playtime 40, got %v", payload["total_playtime"])
	}
}

func TestCreateRoomRejectsNonOwner(t *testing.T) {
	rig := newTestRig(t)
	sender := rig.connect("conn-1")

	rig.orch.CreateRoom("conn-1", "not-the-owner", fixtureGameID, false)

	msg, ok := findMessage(sender, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Only the quiz owner can host this game" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}
}

func TestCreateRoomUnknownGame(t *testing.T) {
	rig := newTestRig(t)
	sender := rig.connect("conn-1")

	rig.orch.CreateRoom("conn-1", fixtureOwnerID, 999, false)

	msg, ok := findMessage(sender, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Game not found" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}
}

func TestJoinGame(t *testing.T) {
	rig := newTestRig(t)
	hostSender := rig.connect("host-conn")
	rig.connect("conn-a")

	roomCode := rig.createRoom("host-conn")
	playerID := rig.join("conn-a", roomCode, "Alice")
	if playerID == "" {
		t.Fatal("expected a player id")
	}

	msg := waitForMessage(t, hostSender, "playerJoined")
	payload := payloadOf(t, msg)
	if payload["name"] != "Alice" {
		t.Errorf("expected Alice in playerJoined, got %v", payload["name"])
	}
	if payload["reconnected"] != false {
		t.Error("fresh join must not be flagged as a reconnection")
	}
}

func TestJoinGameNameCollision(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	rig.connect("conn-a")
	intruder := rig.connect("conn-b")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")

	rig.orch.JoinGame("conn-b", roomCode, "alice", "")
	msg, ok := findMessage(intruder, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Name already used" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}
}

func TestJoinGameRejectedAfterStart(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	rig.connect("conn-a")
	late := rig.connect("conn-b")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.orch.StartGame("host-conn", roomCode)

	rig.orch.JoinGame("conn-b", roomCode, "Bob", "")
	msg, ok := findMessage(late, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Game has already started" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}
}

func TestStartGameOnlyHost(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	player := rig.connect("conn-a")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")

	rig.orch.StartGame("conn-a", roomCode)
	msg, ok := findMessage(player, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Only the host can start the game" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}
}

func TestFullGameFlow(t *testing.T) {
	rig := newTestRig(t)
	hostSender := rig.connect("host-conn")
	aliceSender := rig.connect("conn-a")
	bobSender := rig.connect("conn-b")

	roomCode := rig.createRoom("host-conn")
	aliceID := rig.join("conn-a", roomCode, "Alice")
	rig.join("conn-b", roomCode, "Bob")

	rig.orch.StartGame("host-conn", roomCode)
	waitForMessage(t, aliceSender, "gameStarted")
	waitForMessage(t, aliceSender, "newQuestion")

	// Players never see correctness; the host view carries it.
	q := payloadOf(t, waitForMessage(t, aliceSender, "newQuestion"))
	answers := q["answers"].([]map[string]interface{})
	for _, a := range answers {
		if _, leaked := a["is_correct"]; leaked {
			t.Fatal("player question view must not reveal correctness")
		}
	}
	hostQ := payloadOf(t, waitForMessage(t, hostSender, "hostNewQuestion"))
	hostAnswers := hostQ["answers"].([]map[string]interface{})
	if _, ok := hostAnswers[0]["is_correct"]; !ok {
		t.Fatal("host question view should carry correctness")
	}

	// Q1: Alice correct at t=0 earns full points, Bob wrong earns none.
	rig.orch.SubmitAnswer("conn-a", q1Correct)
	ack := payloadOf(t, waitForMessage(t, aliceSender, "answerSubmitted"))
	if ack["finalized"] != true {
		t.Error("single-choice submission should finalize immediately")
	}
	rig.orch.SubmitAnswer("conn-b", q1Wrong)

	// Everyone answered, so the question completes without the timer.
	waitForMessage(t, aliceSender, "questionTimeEnded")
	results := payloadOf(t, waitForMessage(t, hostSender, "questionResults"))
	leaderboard := results["leaderboard"].([]LeaderboardEntry)
	if leaderboard[0].PlayerID != aliceID || leaderboard[0].Score != 1000 {
		t.Fatalf("expected Alice leading with 1000, got %+v", leaderboard[0])
	}
	if leaderboard[1].Score != 0 {
		t.Fatalf("expected Bob at 0, got %+v", leaderboard[1])
	}
	aliceResult := payloadOf(t, waitForMessage(t, aliceSender, "playerQuestionResult"))
	if aliceResult["correct"] != true || aliceResult["points"] != 1000 {
		t.Errorf("unexpected individual result: %v", aliceResult)
	}

	// Q2 is multi-answer: Alice accumulates then finalizes the exact set,
	// Bob finalizes a subset which scores nothing.
	rig.orch.ProceedToNextQuestion("host-conn", roomCode)
	waitForMessage(t, bobSender, "newQuestion")

	rig.orch.SubmitAnswer("conn-a", q2FirstOK)
	partial := payloadOf(t, waitForMessage(t, aliceSender, "answerSubmitted"))
	if partial["finalized"] != false {
		t.Error("multi-answer accumulation must not finalize")
	}
	rig.orch.SubmitMultipleAnswers("conn-a", []uint{q2OtherOK})
	final := payloadOf(t, waitForMessage(t, aliceSender, "multipleAnswersSubmitted"))
	if final["finalized"] != true {
		t.Error("multi-answer finalize should be flagged")
	}

	rig.orch.SubmitMultipleAnswers("conn-b", []uint{q2FirstOK})

	waitForMessage(t, bobSender, "questionTimeEnded")

	// Past the last question the host arms the final reveal, then ends.
	rig.orch.ProceedToNextQuestion("host-conn", roomCode)
	waitForMessage(t, hostSender, "finalLeaderboardReady")
	rig.orch.ProceedToNextQuestion("host-conn", roomCode)

	completed := payloadOf(t, waitForMessage(t, aliceSender, "gameCompleted"))
	winner := completed["winner"].(map[string]interface{})
	if winner["name"] != "Alice" || winner["score"] != 2000 {
		t.Errorf("expected Alice winning with 2000, got %v", winner)
	}

	aliceFinal := payloadOf(t, waitForMessage(t, aliceSender, "finalResults"))
	if aliceFinal["rank"] != 1 || aliceFinal["correct_answers"] != 2 {
		t.Errorf("unexpected final results: %v", aliceFinal)
	}

	if rig.sessions.Get(roomCode) != nil {
		t.Error("expected the session to be removed after completion")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if statuses := rig.analytics.recorded(); len(statuses) == 1 && statuses[0] == "completed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected completed analytics, got %v", rig.analytics.recorded())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDoubleSubmissionRejected(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	alice := rig.connect("conn-a")
	rig.connect("conn-b")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.join("conn-b", roomCode, "Bob")

	rig.orch.StartGame("host-conn", roomCode)
	waitForMessage(t, alice, "newQuestion")

	rig.orch.SubmitAnswer("conn-a", q1Correct)
	rig.orch.SubmitAnswer("conn-a", q1Wrong)

	msg, ok := findMessage(alice, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Answer already submitted" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}

	session := rig.sessions.Get(roomCode)
	session.Lock()
	player := session.FindPlayerByName("Alice")
	score := player.Score
	total := player.TotalAnswers
	session.Unlock()
	if score != 1000 || total != 1 {
		t.Errorf("second submission must not re-score: score=%d total=%d", score, total)
	}
}

func TestHostDisconnectAbortsGame(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	alice := rig.connect("conn-a")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.orch.StartGame("host-conn", roomCode)
	waitForMessage(t, alice, "newQuestion")

	recordID := rig.sessions.Get(roomCode).RecordID
	rig.orch.HandleDisconnect("host-conn")

	waitForMessage(t, alice, "hostDisconnected")
	if rig.sessions.Get(roomCode) != nil {
		t.Error("expected the session to be torn down")
	}
	if statuses := rig.analytics.recorded(); len(statuses) != 1 || statuses[0] != "aborted" {
		t.Errorf("expected aborted analytics, got %v", statuses)
	}
	summary, ok := rig.analytics.lastSummary()
	if !ok {
		t.Fatal("expected an analytics summary")
	}
	if summary.RoomCode != roomCode || summary.QuestionsPlayed != 1 || summary.QuestionCount != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if status, ok := rig.store.endedStatus(recordID); ok {
			if status != "aborted" {
				t.Errorf("expected aborted session row, got %s", status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session row was never marked aborted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayerDisconnectInLobbyFreesName(t *testing.T) {
	rig := newTestRig(t)
	hostSender := rig.connect("host-conn")
	rig.connect("conn-a")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.orch.HandleDisconnect("conn-a")

	msg := waitForMessage(t, hostSender, "playerLeft")
	if payloadOf(t, msg)["name"] != "Alice" {
		t.Errorf("unexpected playerLeft payload: %v", msg.Payload)
	}

	session := rig.sessions.Get(roomCode)
	session.Lock()
	count := len(session.Players)
	session.Unlock()
	if count != 0 {
		t.Errorf("expected an empty roster, got %d players", count)
	}

	// The name is free again for another joiner.
	rig.connect("conn-b")
	rig.orch.JoinGame("conn-b", roomCode, "Alice", "")
	if _, ok := findMessage(rig.senders["conn-b"], "joinedGame"); !ok {
		t.Error("expected the freed name to be joinable")
	}
}

func TestPlayerReconnectMidGame(t *testing.T) {
	rig := newTestRig(t)
	hostSender := rig.connect("host-conn")
	alice := rig.connect("conn-a")
	rig.connect("conn-b")

	roomCode := rig.createRoom("host-conn")
	aliceID := rig.join("conn-a", roomCode, "Alice")
	rig.join("conn-b", roomCode, "Bob")

	rig.orch.StartGame("host-conn", roomCode)
	waitForMessage(t, alice, "newQuestion")
	rig.orch.SubmitAnswer("conn-a", q1Correct)

	rig.orch.HandleDisconnect("conn-a")
	waitForMessage(t, hostSender, "playerDisconnected")

	// Mid-game the roster entry survives, only the connection drops.
	session := rig.sessions.Get(roomCode)
	session.Lock()
	player := session.FindPlayer(aliceID)
	connected := player != nil && player.Connected
	session.Unlock()
	if player == nil {
		t.Fatal("expected the player to stay on the roster")
	}
	if connected {
		t.Error("expected the player to be marked disconnected")
	}

	// Reconnecting with the claimed id restores the full state.
	rejoined := rig.connect("conn-a2")
	rig.orch.JoinGame("conn-a2", roomCode, "Alice", aliceID)

	state := payloadOf(t, waitForMessage(t, rejoined, "reconnectState"))
	if state["player_id"] != aliceID {
		t.Errorf("expected player id %s, got %v", aliceID, state["player_id"])
	}
	if state["score"] != 1000 {
		t.Errorf("expected restored score 1000, got %v", state["score"])
	}
	if state["has_answered"] != true {
		t.Error("expected the restored state to show the submitted answer")
	}

	msg := waitForMessage(t, hostSender, "playerJoined")
	if payloadOf(t, msg)["reconnected"] != true {
		t.Error("expected the rejoin to be flagged as a reconnection")
	}

	// A claimed id that does not match is still a collision.
	rig.connect("conn-x")
	rig.orch.JoinGame("conn-x", roomCode, "Alice", "wrong-id")
	errMsg, ok := findMessage(rig.senders["conn-x"], "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, errMsg)["message"] != "Name already used" {
		t.Errorf("unexpected message: %v", errMsg.Payload)
	}
}

func TestKickPlayer(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	alice := rig.connect("conn-a")

	roomCode := rig.createRoom("host-conn")
	aliceID := rig.join("conn-a", roomCode, "Alice")

	rig.orch.KickPlayer("host-conn", roomCode, aliceID)

	if _, ok := findMessage(alice, "kickedFromGame"); !ok {
		t.Error("expected the kicked player to be notified")
	}

	session := rig.sessions.Get(roomCode)
	session.Lock()
	count := len(session.Players)
	session.Unlock()
	if count != 0 {
		t.Errorf("expected an empty roster, got %d players", count)
	}
}

func TestKickPlayerOnlyHost(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	alice := rig.connect("conn-a")
	rig.connect("conn-b")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	bobID := rig.join("conn-b", roomCode, "Bob")

	rig.orch.KickPlayer("conn-a", roomCode, bobID)
	msg, ok := findMessage(alice, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Only the host can kick players" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}
}

func TestShowFinalLeaderboardEndsGame(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	alice := rig.connect("conn-a")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.orch.StartGame("host-conn", roomCode)
	waitForMessage(t, alice, "newQuestion")

	// The sole player answering completes the question and parks the
	// room in the between-questions pause.
	rig.orch.SubmitAnswer("conn-a", q1Correct)
	waitForMessage(t, alice, "questionTimeEnded")

	rig.orch.ShowFinalLeaderboard("host-conn", roomCode)

	waitForMessage(t, alice, "gameCompleted")
	if rig.sessions.Get(roomCode) != nil {
		t.Error("expected the session to be removed")
	}
}

func TestShowFinalLeaderboardRejectedMidQuestion(t *testing.T) {
	rig := newTestRig(t)
	hostSender := rig.connect("host-conn")
	alice := rig.connect("conn-a")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.orch.StartGame("host-conn", roomCode)
	waitForMessage(t, alice, "newQuestion")

	rig.orch.ShowFinalLeaderboard("host-conn", roomCode)

	msg, ok := findMessage(hostSender, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Cannot show the final leaderboard right now" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}
	if _, ok := findMessage(alice, "gameCompleted"); ok {
		t.Error("the game must not complete while a question is live")
	}
	if rig.sessions.Get(roomCode) == nil {
		t.Error("expected the session to survive")
	}
}

func TestProceedRejectedDuringQuestion(t *testing.T) {
	rig := newTestRig(t)
	hostSender := rig.connect("host-conn")
	alice := rig.connect("conn-a")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.orch.StartGame("host-conn", roomCode)
	waitForMessage(t, alice, "newQuestion")

	rig.orch.ProceedToNextQuestion("host-conn", roomCode)
	msg, ok := findMessage(hostSender, "error")
	if !ok {
		t.Fatal("expected an error event")
	}
	if payloadOf(t, msg)["message"] != "Cannot proceed right now" {
		t.Errorf("unexpected message: %v", msg.Payload)
	}
}

func TestConcurrentProceedAdvancesOnce(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	alice := rig.connect("conn-a")
	rig.connect("conn-b")

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.join("conn-b", roomCode, "Bob")
	rig.orch.StartGame("host-conn", roomCode)
	waitForMessage(t, alice, "newQuestion")

	rig.orch.SubmitAnswer("conn-a", q1Correct)
	rig.orch.SubmitAnswer("conn-b", q1Wrong)
	waitForMessage(t, alice, "questionTimeEnded")

	// Two racing proceeds, as fired by a double-clicking host. Only one
	// may move the room forward.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rig.orch.ProceedToNextQuestion("host-conn", roomCode)
		}()
	}
	wg.Wait()

	msg := waitForMessage(t, alice, "newQuestion")
	if payloadOf(t, msg)["id"] != q2ID {
		t.Fatalf("expected the second question, got %v", msg.Payload)
	}
	if _, ok := findMessage(alice, "gameCompleted"); ok {
		t.Fatal("double proceed must not end the game")
	}

	session := rig.sessions.Get(roomCode)
	if session == nil {
		t.Fatal("expected the session to survive")
	}
	session.Lock()
	index := session.CurrentQuestionIndex
	session.Unlock()
	if index != 1 {
		t.Fatalf("expected question index 1, got %d", index)
	}

	// A straggling advance for the already-left question is a no-op.
	rig.orch.advanceQuestion(roomCode, 0)
	if _, ok := findMessage(alice, "gameCompleted"); ok {
		t.Fatal("a stale advance must not end the game")
	}
	session.Lock()
	index = session.CurrentQuestionIndex
	session.Unlock()
	if index != 1 {
		t.Fatalf("expected question index 1 after the stale advance, got %d", index)
	}
}

func TestSkipsQuestionWithoutAnswers(t *testing.T) {
	rig := newTestRig(t)
	rig.connect("host-conn")
	alice := rig.connect("conn-a")

	rig.store.mu.Lock()
	delete(rig.store.answers, q1ID)
	rig.store.mu.Unlock()

	roomCode := rig.createRoom("host-conn")
	rig.join("conn-a", roomCode, "Alice")
	rig.orch.StartGame("host-conn", roomCode)

	// The answerless first question is announced as skipped and the room
	// lands on the second one.
	skip := payloadOf(t, waitForMessage(t, alice, "proceedingToNextQuestion"))
	if skip["skipped_index"] != 0 {
		t.Fatalf("expected question 0 skipped, got %v", skip)
	}

	msg := waitForMessage(t, alice, "newQuestion")
	if payloadOf(t, msg)["id"] != q2ID {
		t.Fatalf("expected the second question, got %v", msg.Payload)
	}

	session := rig.sessions.Get(roomCode)
	if session == nil {
		t.Fatal("expected the session to survive")
	}
	session.Lock()
	index := session.CurrentQuestionIndex
	session.Unlock()
	if index != 1 {
		t.Fatalf("expected question index 1, got %d", index)
	}
}
