package services

import (
	"testing"
	"time"
)

func TestScorePointsFullAtInstantAnswer(t *testing.T) {
	if got := ScorePoints(1000, 0, 20); got != 1000 {
		t.Errorf("expected 1000 points for instant answer, got %d", got)
	}
}

func TestScorePointsZeroAtTimeLimit(t *testing.T) {
	if got := ScorePoints(1000, 20*time.Second, 20); got != 0 {
		t.Errorf("expected 0 points at the time limit, got %d", got)
	}
}

func TestScorePointsClampsLateAnswer(t *testing.T) {
	if got := ScorePoints(1000, 45*time.Second, 20); got != 0 {
		t.Errorf("expected 0 points past the time limit, got %d", got)
	}
}

func TestScorePointsLinearDecay(t *testing.T) {
	// Halfway through a 20s window on a 1000-point question.
	if got := ScorePoints(1000, 10*time.Second, 20); got != 500 {
		t.Errorf("expected 500 points at the halfway mark, got %d", got)
	}
	// 5s into a 20s window: 1000 - 5/20*1000 = 750.
	if got := ScorePoints(1000, 5*time.Second, 20); got != 750 {
		t.Errorf("expected 750 points, got %d", got)
	}
}

func TestScorePointsRoundsToNearest(t *testing.T) {
	// 1s into a 3s window on a 100-point question: 100 - 1/3*100 = 66.67 -> 67.
	if got := ScorePoints(100, time.Second, 3); got != 67 {
		t.Errorf("expected rounding to 67, got %d", got)
	}
}

func TestScorePointsDegenerateInputs(t *testing.T) {
	if got := ScorePoints(0, time.Second, 20); got != 0 {
		t.Errorf("expected 0 for zero max points, got %d", got)
	}
	if got := ScorePoints(1000, time.Second, 0); got != 0 {
		t.Errorf("expected 0 for zero time limit, got %d", got)
	}
	if got := ScorePoints(1000, -time.Second, 20); got != 1000 {
		t.Errorf("expected negative response to clamp to full points, got %d", got)
	}
}

func multiQuestion() *SnapshotQuestion {
	return &SnapshotQuestion{
		ID:   1,
		Type: QuestionMultipleChoice,
		Answers: []SnapshotAnswer{
			{ID: 10, IsCorrect: true},
			{ID: 11, IsCorrect: true},
			{ID: 12, IsCorrect: false},
			{ID: 13, IsCorrect: false},
		},
	}
}

func TestIsCorrectMultipleChoiceExactSet(t *testing.T) {
	q := multiQuestion()
	if !IsCorrect(q, []uint{10, 11}) {
		t.Error("exact correct set should be correct")
	}
	if !IsCorrect(q, []uint{11, 10}) {
		t.Error("order must not matter")
	}
}

func TestIsCorrectMultipleChoiceAllOrNothing(t *testing.T) {
	q := multiQuestion()
	if IsCorrect(q, []uint{10}) {
		t.Error("subset of the correct answers must not score")
	}
	if IsCorrect(q, []uint{10, 11, 12}) {
		t.Error("superset including a wrong answer must not score")
	}
	if IsCorrect(q, []uint{12, 13}) {
		t.Error("all-wrong selection must not score")
	}
	if IsCorrect(q, nil) {
		t.Error("empty selection must not score")
	}
}

func TestIsCorrectMultipleChoiceRejectsDuplicates(t *testing.T) {
	q := multiQuestion()
	if IsCorrect(q, []uint{10, 10}) {
		t.Error("duplicated id must not satisfy a two-answer set")
	}
}

func TestIsCorrectSingleChoice(t *testing.T) {
	q := &SnapshotQuestion{
		Type: QuestionSingleChoice,
		Answers: []SnapshotAnswer{
			{ID: 1, IsCorrect: false},
			{ID: 2, IsCorrect: true},
		},
	}
	if !IsCorrect(q, []uint{2}) {
		t.Error("correct option should score")
	}
	if IsCorrect(q, []uint{1}) {
		t.Error("wrong option must not score")
	}
}

func TestIsCorrectTrueFalse(t *testing.T) {
	q := &SnapshotQuestion{
		Type: QuestionTrueFalse,
		Answers: []SnapshotAnswer{
			{ID: 5, IsCorrect: true},
			{ID: 6, IsCorrect: false},
		},
	}
	if !IsCorrect(q, []uint{5}) {
		t.Error("correct option should score")
	}
	if IsCorrect(q, []uint{6}) {
		t.Error("wrong option must not score")
	}
}

func TestIsCorrectNoCorrectAnswersConfigured(t *testing.T) {
	q := &SnapshotQuestion{
		Type:    QuestionSingleChoice,
		Answers: []SnapshotAnswer{{ID: 1, IsCorrect: false}},
	}
	if IsCorrect(q, []uint{1}) {
		t.Error("a question with no correct option can never score")
	}
}

func TestDecideJoinOutcomes(t *testing.T) {
	d := NewPlayerDirectory(nil)
	session := &GameSession{
		State: StateLobby,
		Players: []*SessionPlayer{
			{ID: "p-1", Name: "Alice"},
		},
	}

	outcome, _ := d.DecideJoin(session, "Bob", "")
	if outcome != JoinNewPlayer {
		t.Errorf("unused name should be a new player, got %v", outcome)
	}

	outcome, _ = d.DecideJoin(session, "Alice", "")
	if outcome != JoinNameTaken {
		t.Errorf("taken name with no claimed id should collide, got %v", outcome)
	}

	outcome, existing := d.DecideJoin(session, "Alice", "p-1")
	if outcome != JoinReconnect {
		t.Errorf("matching claimed id should reconnect, got %v", outcome)
	}
	if existing == nil || existing.ID != "p-1" {
		t.Error("reconnect should return the existing player")
	}

	outcome, _ = d.DecideJoin(session, "Alice", "p-other")
	if outcome != JoinNameTaken {
		t.Errorf("mismatched claimed id should collide, got %v", outcome)
	}
}

func TestDecideJoinNameIsCaseInsensitive(t *testing.T) {
	d := NewPlayerDirectory(nil)
	session := &GameSession{
		Players: []*SessionPlayer{{ID: "p-1", Name: "Alice"}},
	}
	if outcome, _ := d.DecideJoin(session, "ALICE", ""); outcome != JoinNameTaken {
		t.Errorf("name match should ignore case, got %v", outcome)
	}
}

func TestRankOf(t *testing.T) {
	entries := []LeaderboardEntry{
		{Rank: 1, PlayerID: "a"},
		{Rank: 2, PlayerID: "b"},
	}
	if got := RankOf(entries, "b"); got != 2 {
		t.Errorf("expected rank 2, got %d", got)
	}
	if got := RankOf(entries, "missing"); got != 0 {
		t.Errorf("expected 0 for an unknown player, got %d", got)
	}
}
