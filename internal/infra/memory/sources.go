package memory

import (
	"context"
	"sync"

	"interquest/internal/domain"
)

// QuestionLoader fetches the ordered question list from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, round int) ([]domain.Question, error)
}

// StaticQuestionSource serves questions from an in-memory map keyed by round
// (useful for tests/demos).
type StaticQuestionSource struct {
	rounds map[int][]domain.Question
}

func NewStaticQuestionSource(rounds map[int][]domain.Question) *StaticQuestionSource {
	return &StaticQuestionSource{rounds: rounds}
}

func (s *StaticQuestionSource) LoadQuestions(_ context.Context, round int) ([]domain.Question, error) {
	questions := s.rounds[round]
	return append([]domain.Question(nil), questions...), nil
}

// StaticRoster serves approved participants from an in-memory map keyed by round.
type StaticRoster struct {
	rounds map[int][]domain.ApprovedParticipant
}

func NewStaticRoster(rounds map[int][]domain.ApprovedParticipant) *StaticRoster {
	return &StaticRoster{rounds: rounds}
}

func (s *StaticRoster) LoadApprovedParticipants(_ context.Context, round int) ([]domain.ApprovedParticipant, error) {
	approved := s.rounds[round]
	return append([]domain.ApprovedParticipant(nil), approved...), nil
}

// ResultLog collects persisted outcomes in memory; it stands in for the
// durable writer in demos and tests.
type ResultLog struct {
	mu        sync.Mutex
	results   []domain.QuestionResult
	standings [][]domain.Participant
}

func NewResultLog() *ResultLog {
	return &ResultLog{}
}

func (l *ResultLog) SaveQuestionResult(_ context.Context, _ int, result domain.QuestionResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, result)
	return nil
}

func (l *ResultLog) SaveFinalStandings(_ context.Context, _ int, standings []domain.Participant) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.standings = append(l.standings, append([]domain.Participant(nil), standings...))
	return nil
}

// Results returns a copy of the recorded question results.
func (l *ResultLog) Results() []domain.QuestionResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.QuestionResult(nil), l.results...)
}

// Standings returns a copy of the recorded final standings.
func (l *ResultLog) Standings() [][]domain.Participant {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]domain.Participant, len(l.standings))
	copy(out, l.standings)
	return out
}
