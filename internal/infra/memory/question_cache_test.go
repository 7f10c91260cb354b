package memory

import (
	"context"
	"testing"
	"time"

	"interquest/internal/domain"
)

func TestQuestionCacheCaches(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionSource(map[int][]domain.Question{
			3: sampleQuestions(),
		}),
	}
	cache := NewQuestionCache(loader, time.Minute)

	if _, err := cache.LoadQuestions(context.Background(), 3); err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	questions, err := cache.LoadQuestions(context.Background(), 3)
	if err != nil {
		t.Fatalf("load questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(questions) != 1 || questions[0].ID != "q1" {
		t.Fatalf("unexpected questions from cache: %+v", questions)
	}
}

func TestQuestionCacheReturnsCopies(t *testing.T) {
	loader := &countingLoader{
		QuestionLoader: NewStaticQuestionSource(map[int][]domain.Question{
			3: sampleQuestions(),
		}),
	}
	cache := NewQuestionCache(loader, time.Minute)

	first, err := cache.LoadQuestions(context.Background(), 3)
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	first[0].Answer = "D"
	first[0].Text = "mutated"

	second, err := cache.LoadQuestions(context.Background(), 3)
	if err != nil {
		t.Fatalf("load questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if second[0].Answer != "B" || second[0].Text != "What is 2 + 2?" {
		t.Fatalf("caller mutation leaked into the cache: %+v", second[0])
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, round int) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, round)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:      "q1",
			Text:    "What is 2 + 2?",
			OptionA: "3",
			OptionB: "4",
			OptionC: "5",
			OptionD: "22",
			Answer:  "B",
			Points:  1,
		},
	}
}
