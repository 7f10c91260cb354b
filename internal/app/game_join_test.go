package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"interquest/internal/app"
	"interquest/internal/domain"
	"interquest/internal/infra/memory"
)

func TestJoinSendsSnapshot(t *testing.T) {
	game := newGame(t, oneQuestion("B", 5), twoApproved())
	alice := newRecorder()
	mustJoin(t, game, alice, "u1", "Alice", "Smith")

	state := alice.waitFor(t, app.EventGameState).(app.GameState)
	if state.Status != "waiting" || state.QuestionNumber != 0 {
		t.Fatalf("unexpected waiting snapshot: %+v", state)
	}
	if len(state.Participants) != 1 || state.Participants[0].UserID != "u1" {
		t.Fatalf("expected self in participants, got %+v", state.Participants)
	}
	if !state.Participants[0].Online || state.Participants[0].JoinOrder != 1 {
		t.Fatalf("expected online participant number 1, got %+v", state.Participants[0])
	}
	if len(state.Approved) != 2 {
		t.Fatalf("expected approved roster in snapshot, got %+v", state.Approved)
	}
}

func TestUnauthorizedJoinRejected(t *testing.T) {
	game := newGame(t, oneQuestion("B", 5), twoApproved())
	stranger := newRecorder()

	err := game.Join(context.Background(), stranger, "u99", "Eve", "Intruder")
	if !errors.Is(err, domain.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}

	notice := stranger.waitFor(t, app.EventError).(app.ErrorNotice)
	if notice.Message != "not approved for this round" {
		t.Fatalf("unexpected error message: %q", notice.Message)
	}
	if game.Status().ParticipantCount != 0 {
		t.Fatalf("rejected join must not create a participant")
	}
}

func TestRejoinKeepsScoreAndOrder(t *testing.T) {
	game := newGame(t, oneQuestion("B", 5), twoApproved())
	first := newRecorder()
	mustJoin(t, game, first, "u1", "Alice", "Smith")
	mustJoin(t, game, newRecorder(), "u2", "Bob", "Jones")
	if err := game.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	first.waitFor(t, app.EventNewQuestion)
	game.Submit("u1", "q1", "B", time.Now().UnixMilli())
	first.waitFor(t, app.EventQuestionLocked)

	// Reconnect on a fresh connection mid-round.
	second := newRecorder()
	mustJoin(t, game, second, "u1", "Alice", "Smith")
	state := second.waitFor(t, app.EventGameState).(app.GameState)
	if len(state.Participants) != 2 {
		t.Fatalf("rejoin must not duplicate the scoreboard entry: %+v", state.Participants)
	}
	for _, p := range state.Participants {
		if p.UserID == "u1" {
			if p.Score != 5 || p.JoinOrder != 1 {
				t.Fatalf("rejoin must keep score and join order, got %+v", p)
			}
		}
	}
	if game.Status().ParticipantCount != 2 {
		t.Fatalf("expected 2 participants, got %d", game.Status().ParticipantCount)
	}
}

func TestLateJoinReceivesLiveQuestion(t *testing.T) {
	questions := []domain.Question{
		{ID: "q1", Text: "first", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Answer: "D", Points: 2},
	}
	game := newGame(t, questions, twoApproved())
	mustJoin(t, game, newRecorder(), "u1", "Alice", "Smith")
	if err := game.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	late := newRecorder()
	mustJoin(t, game, late, "u2", "Bob", "Jones")

	state := late.waitFor(t, app.EventGameState).(app.GameState)
	if state.Status != "active" || state.QuestionNumber != 1 {
		t.Fatalf("late join snapshot should reflect the live question, got %+v", state)
	}
	question := late.waitFor(t, app.EventNewQuestion).(app.QuestionBroadcast)
	if question.ID != "q1" {
		t.Fatalf("late joiner should get the live question, got %+v", question)
	}
	remaining := late.waitFor(t, app.EventTimeUpdate).(int)
	if remaining <= 0 || remaining > 60 {
		t.Fatalf("unexpected remaining time %d", remaining)
	}

	// And the late joiner is eligible to win it.
	game.Submit("u2", "q1", "D", time.Now().UnixMilli())
	locked := late.waitFor(t, app.EventQuestionLocked).(app.LockedNotice)
	if locked.WinnerID != "u2" {
		t.Fatalf("expected late joiner to win, got %+v", locked)
	}
}

func TestJoinBetweenQuestionsGetsNoEarlyQuestion(t *testing.T) {
	questions := []domain.Question{
		{ID: "q1", Text: "first", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Answer: "A", Points: 1},
		{ID: "q2", Text: "second", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Answer: "B", Points: 1},
	}
	timings := fastTimings()
	timings.AdvanceDelay = 500 * time.Millisecond
	game := app.NewGame(
		memory.NewStaticQuestionSource(map[int][]domain.Question{3: questions}),
		memory.NewStaticRoster(map[int][]domain.ApprovedParticipant{3: twoApproved()}),
		memory.NewResultLog(), 3, timings)

	alice := newRecorder()
	mustJoin(t, game, alice, "u1", "Alice", "Smith")
	if err := game.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	alice.waitFor(t, app.EventNewQuestion)
	game.Submit("u1", "q1", "A", time.Now().UnixMilli())
	alice.waitFor(t, app.EventQuestionResult)

	// q1 is resolved, q2 will not go live for another half second. A joiner
	// landing in this window must not see q2 ahead of everyone else.
	late := newRecorder()
	mustJoin(t, game, late, "u2", "Bob", "Jones")
	late.waitFor(t, app.EventGameState)
	time.Sleep(100 * time.Millisecond)
	if n := late.count(app.EventNewQuestion); n != 0 {
		t.Fatalf("joiner received a question before it went live")
	}
	if n := late.count(app.EventTimeUpdate); n != 0 {
		t.Fatalf("joiner received a countdown from a finished question")
	}

	// When q2 does go live, the joiner gets it with everyone else.
	question := late.waitFor(t, app.EventNewQuestion).(app.QuestionBroadcast)
	if question.ID != "q2" || question.QuestionNumber != 2 {
		t.Fatalf("expected q2 on advancement, got %+v", question)
	}
}

func TestDisconnectKeepsParticipant(t *testing.T) {
	game := newGame(t, oneQuestion("B", 5), twoApproved())
	alice := newRecorder()
	bob := newRecorder()
	mustJoin(t, game, alice, "u1", "Alice", "Smith")
	mustJoin(t, game, bob, "u2", "Bob", "Jones")

	game.Disconnect(bob)

	roster := alice.waitFor(t, app.EventParticipantsUpdate).([]domain.Participant)
	// Skip updates until bob shows up offline.
	deadline := time.Now().Add(2 * time.Second)
	for {
		found := false
		for _, p := range roster {
			if p.UserID == "u2" {
				found = true
				if p.Online {
					break
				}
				return // offline as expected, entry retained
			}
		}
		if !found {
			t.Fatalf("disconnect must not remove the participant: %+v", roster)
		}
		if time.Now().After(deadline) {
			t.Fatalf("participant never marked offline: %+v", roster)
		}
		roster = alice.waitFor(t, app.EventParticipantsUpdate).([]domain.Participant)
	}
}

func TestStopBroadcastsReset(t *testing.T) {
	game := newGame(t, oneQuestion("B", 5), twoApproved())
	alice := newRecorder()
	mustJoin(t, game, alice, "u1", "Alice", "Smith")
	if err := game.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	alice.waitFor(t, app.EventNewQuestion)

	game.Stop()
	alice.waitFor(t, app.EventGameReset)

	status := game.Status()
	if status.Phase != "waiting" || status.ParticipantCount != 0 || status.TotalQuestions != 0 {
		t.Fatalf("expected idle state after stop, got %+v", status)
	}

	// A countdown tick from the stopped round must not resurrect it.
	time.Sleep(50 * time.Millisecond)
	if got := game.Status().Phase; got != "waiting" {
		t.Fatalf("stale timer mutated reset state: %s", got)
	}
}

func TestCooldownResetsToIdle(t *testing.T) {
	timings := fastTimings()
	timings.QuestionSeconds = 1
	timings.Cooldown = 30 * time.Millisecond
	game := app.NewGame(
		memory.NewStaticQuestionSource(map[int][]domain.Question{3: oneQuestion("B", 5)}),
		memory.NewStaticRoster(map[int][]domain.ApprovedParticipant{3: twoApproved()}),
		memory.NewResultLog(), 3, timings)

	alice := newRecorder()
	mustJoin(t, game, alice, "u1", "Alice", "Smith")
	if err := game.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	alice.waitFor(t, app.EventGameFinished)

	waitUntil(t, func() bool {
		s := game.Status()
		return s.Phase == "waiting" && s.ParticipantCount == 0
	})

	// The machine is reusable: a fresh start must succeed.
	mustJoin(t, game, newRecorder(), "u1", "Alice", "Smith")
	if err := game.Start(context.Background()); err != nil {
		t.Fatalf("restart after cooldown: %v", err)
	}
}
