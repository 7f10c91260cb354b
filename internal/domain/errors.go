package domain

import "errors"

var (
	// ErrNoQuestions blocks a round start when the question bank has nothing
	// configured for the round.
	ErrNoQuestions = errors.New("no questions configured for this round")
	// ErrNoParticipants blocks a round start when nobody is approved to compete.
	ErrNoParticipants = errors.New("no approved participants for this round")
	// ErrRoundInProgress is returned when start is issued outside the idle phase.
	ErrRoundInProgress = errors.New("round already in progress")
	// ErrNotApproved rejects a join from an identity missing from the roster.
	ErrNotApproved = errors.New("not approved for this round")
	// ErrSourceUnavailable wraps failures reaching the backing store; the
	// coordinator treats it like an empty source.
	ErrSourceUnavailable = errors.New("source unavailable")
)
