package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"interquest/internal/domain"
)

// QuestionLoader reads the ordered question list for a round from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, round int) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, question_text, option_a, option_b, option_c, option_d, correct_answer, points
		FROM questions
		WHERE round_number = $1
		ORDER BY created_at, id`, round)
	if err != nil {
		return nil, fmt.Errorf("%w: load questions: %v", domain.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.Answer, &q.Points); err != nil {
			return nil, fmt.Errorf("%w: scan question: %v", domain.ErrSourceUnavailable, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read questions: %v", domain.ErrSourceUnavailable, err)
	}
	return questions, nil
}
