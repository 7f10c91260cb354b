package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"interquest/internal/domain"
)

// ResultWriter persists question outcomes and final standings. Failures are
// the caller's to log; the round never waits on these writes.
type ResultWriter struct {
	pool *pgxpool.Pool
}

func NewResultWriter(pool *pgxpool.Pool) *ResultWriter {
	return &ResultWriter{pool: pool}
}

func (w *ResultWriter) SaveQuestionResult(ctx context.Context, round int, result domain.QuestionResult) error {
	answers, err := json.Marshal(result.Participants)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = w.pool.Exec(ctx, `
		INSERT INTO rapid_fire_results (round_number, question_id, winner_id, correct_answer, answers)
		VALUES ($1, $2, $3, $4, $5)`,
		round, result.QuestionID, result.WinnerID, result.CorrectAnswer, answers)
	if err != nil {
		return fmt.Errorf("insert question result: %w", err)
	}
	return nil
}

func (w *ResultWriter) SaveFinalStandings(ctx context.Context, round int, standings []domain.Participant) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin standings tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for rank, p := range standings {
		_, err := tx.Exec(ctx, `
			INSERT INTO rapid_fire_standings (round_number, user_id, display_name, score, final_rank)
			VALUES ($1, $2, $3, $4, $5)`,
			round, p.UserID, p.DisplayName(), p.Score, rank+1)
		if err != nil {
			return fmt.Errorf("insert standing for %s: %w", p.UserID, err)
		}
	}
	return tx.Commit(ctx)
}
