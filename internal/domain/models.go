package domain

import "fmt"

// Phase is the lifecycle state of a rapid-fire round.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInProgress
	PhaseCompleted
)

// String returns the wire status understood by clients.
func (p Phase) String() string {
	switch p {
	case PhaseInProgress:
		return "active"
	case PhaseCompleted:
		return "finished"
	default:
		return "waiting"
	}
}

// Question is the rapid-fire subset of the question bank: four labeled
// options with exactly one correct label.
type Question struct {
	ID      string `json:"id"`
	Text    string `json:"question_text"`
	OptionA string `json:"option_a"`
	OptionB string `json:"option_b"`
	OptionC string `json:"option_c"`
	OptionD string `json:"option_d"`
	Answer  string `json:"correct_answer"`
	Points  int    `json:"points"`
}

// Validate enforces the question invariants before a round may start.
func (q Question) Validate() error {
	switch q.Answer {
	case "A", "B", "C", "D":
	default:
		return fmt.Errorf("question %s: correct answer %q is not one of A-D", q.ID, q.Answer)
	}
	if q.Points <= 0 {
		return fmt.Errorf("question %s: points must be positive, got %d", q.ID, q.Points)
	}
	return nil
}

// ApprovedParticipant is a roster entry: who may compete in the round.
type ApprovedParticipant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Participant is the in-round view of a competitor. JoinOrder is assigned at
// first join; it orders the roster display and breaks score ties in final
// standings, never winner determination.
type Participant struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Score     int    `json:"score"`
	Online    bool   `json:"isOnline"`
	JoinOrder int    `json:"participantNumber"`
}

// DisplayName joins first and last name for result payloads.
func (p Participant) DisplayName() string {
	return p.FirstName + " " + p.LastName
}

// Submission is one retained answer for the current question. Receipt is the
// server-assigned arrival sequence and the sole authoritative ordering;
// ClientTime is the client's reported send time, kept as a diagnostic only.
type Submission struct {
	UserID     string
	QuestionID string
	Answer     string
	ClientTime int64
	Receipt    int
}

// AnswerRecord is a submission as it appears in a question result, sorted by
// receipt order for transparency.
type AnswerRecord struct {
	UserID          string `json:"userId"`
	Answer          string `json:"answer"`
	ClientTime      int64  `json:"timestamp"`
	ParticipantName string `json:"participantName"`
	Receipt         int    `json:"receiptOrder"`
}

// QuestionResult is the persisted and broadcast outcome of one question.
// WinnerID is nil when the countdown expired with no correct answer.
type QuestionResult struct {
	QuestionID    string         `json:"questionId"`
	WinnerID      *string        `json:"winnerId"`
	WinnerName    string         `json:"winnerName"`
	CorrectAnswer string         `json:"correctAnswer"`
	Participants  []AnswerRecord `json:"participants"`
}

// Status is the operator console view of the round.
type Status struct {
	Phase            string `json:"phase"`
	ParticipantCount int    `json:"participantCount"`
	QuestionNumber   int    `json:"questionNumber"`
	TotalQuestions   int    `json:"totalQuestions"`
}
