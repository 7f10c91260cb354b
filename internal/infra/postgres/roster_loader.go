package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"interquest/internal/domain"
)

// RosterLoader reads round approvals from the users table.
type RosterLoader struct {
	pool *pgxpool.Pool
}

func NewRosterLoader(pool *pgxpool.Pool) *RosterLoader {
	return &RosterLoader{pool: pool}
}

func (l *RosterLoader) LoadApprovedParticipants(ctx context.Context, round int) ([]domain.ApprovedParticipant, error) {
	column, err := approvalColumn(round)
	if err != nil {
		return nil, err
	}

	rows, err := l.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, first_name, last_name
		FROM users
		WHERE %s
		ORDER BY created_at, id`, column))
	if err != nil {
		return nil, fmt.Errorf("%w: load roster: %v", domain.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var approved []domain.ApprovedParticipant
	for rows.Next() {
		var id, first, last string
		if err := rows.Scan(&id, &first, &last); err != nil {
			return nil, fmt.Errorf("%w: scan roster: %v", domain.ErrSourceUnavailable, err)
		}
		approved = append(approved, domain.ApprovedParticipant{ID: id, Name: first + " " + last})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read roster: %v", domain.ErrSourceUnavailable, err)
	}
	return approved, nil
}

// approvalColumn maps a round number to its approval flag. Only the gated
// rounds have one.
func approvalColumn(round int) (string, error) {
	switch round {
	case 2:
		return "round2_approved", nil
	case 3:
		return "round3_approved", nil
	default:
		return "", fmt.Errorf("round %d has no approval gate", round)
	}
}
