package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"interquest/internal/domain"
)

// Event names on the realtime channel, server to client.
const (
	EventGameState          = "gameState"
	EventNewQuestion        = "newQuestion"
	EventTimeUpdate         = "timeUpdate"
	EventQuestionLocked     = "questionLocked"
	EventQuestionResult     = "questionResult"
	EventParticipantsUpdate = "participantsUpdate"
	EventGameFinished       = "gameFinished"
	EventGameReset          = "gameReset"
	EventError              = "error"
)

// Sender is one connected client. Send must not block; the websocket
// transport buffers and drops stale messages for slow readers.
type Sender interface {
	Send(event string, payload any) error
}

// QuestionSource supplies the ordered question list for a round.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, round int) ([]domain.Question, error)
}

// RosterSource supplies the identities approved to compete in a round.
type RosterSource interface {
	LoadApprovedParticipants(ctx context.Context, round int) ([]domain.ApprovedParticipant, error)
}

// ResultWriter persists question outcomes and final standings. Calls are
// fire-and-forget from the coordinator's point of view.
type ResultWriter interface {
	SaveQuestionResult(ctx context.Context, round int, result domain.QuestionResult) error
	SaveFinalStandings(ctx context.Context, round int, standings []domain.Participant) error
}

// Timings are the delays driving question progression. All of them are
// constant across a round.
type Timings struct {
	QuestionSeconds int           // countdown per question
	Tick            time.Duration // cadence of timeUpdate broadcasts
	LockGrace       time.Duration // pause between questionLocked and questionResult
	AdvanceDelay    time.Duration // pause between questionResult and the next question
	Cooldown        time.Duration // pause between gameFinished and the idle reset
}

// DefaultTimings matches the client's 15-second countdown.
func DefaultTimings() Timings {
	return Timings{
		QuestionSeconds: 15,
		Tick:            time.Second,
		LockGrace:       time.Second,
		AdvanceDelay:    5 * time.Second,
		Cooldown:        30 * time.Second,
	}
}

// GameState is the full snapshot sent to a client on join.
type GameState struct {
	Status         string                       `json:"status"`
	Participants   []domain.Participant         `json:"participants"`
	QuestionNumber int                          `json:"questionNumber"`
	TotalQuestions int                          `json:"totalQuestions"`
	Approved       []domain.ApprovedParticipant `json:"approvedParticipants"`
}

// QuestionBroadcast is a question as clients see it: the correct answer is
// never included.
type QuestionBroadcast struct {
	ID             string `json:"id"`
	Text           string `json:"question_text"`
	OptionA        string `json:"option_a"`
	OptionB        string `json:"option_b"`
	OptionC        string `json:"option_c"`
	OptionD        string `json:"option_d"`
	Points         int    `json:"points"`
	QuestionNumber int    `json:"questionNumber"`
	TotalQuestions int    `json:"totalQuestions"`
}

// LockedNotice announces the winner the instant a correct answer is accepted.
type LockedNotice struct {
	WinnerID      string `json:"winnerId"`
	WinnerName    string `json:"winnerName"`
	CorrectAnswer string `json:"correctAnswer"`
}

// ErrorNotice is the payload of an error event.
type ErrorNotice struct {
	Message string `json:"message"`
}

// Game is the rapid-fire round coordinator. One mutex owns every mutation of
// round state and the connection registry; timers re-enter the mutex through
// schedule and check the generation token before acting, so a stale callback
// from a reset or restarted round is a no-op.
type Game struct {
	source  QuestionSource
	roster  RosterSource
	results ResultWriter
	round   int
	timings Timings

	mu         sync.Mutex
	generation uint64
	phase      domain.Phase

	approved   []domain.ApprovedParticipant
	approvedBy map[string]domain.ApprovedParticipant

	participants map[string]*domain.Participant
	joinSeq      int
	conns        map[Sender]string

	questions  []domain.Question
	index      int
	locked     bool
	winnerID   string
	ledger     map[string]domain.Submission
	receiptSeq int
	remaining  int
	countdown  *time.Timer
}

// NewGame builds an idle coordinator for the given round number.
func NewGame(source QuestionSource, roster RosterSource, results ResultWriter, round int, timings Timings) *Game {
	if timings.Tick <= 0 {
		timings.Tick = time.Second
	}
	if timings.QuestionSeconds <= 0 {
		timings.QuestionSeconds = DefaultTimings().QuestionSeconds
	}
	return &Game{
		source:       source,
		roster:       roster,
		results:      results,
		round:        round,
		timings:      timings,
		phase:        domain.PhaseIdle,
		participants: make(map[string]*domain.Participant),
		conns:        make(map[Sender]string),
	}
}

// Start loads questions and roster and begins the round. It refuses with a
// distinct error when already running, when no questions are configured, or
// when nobody is approved.
func (g *Game) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.phase != domain.PhaseIdle {
		g.mu.Unlock()
		return domain.ErrRoundInProgress
	}
	g.mu.Unlock()

	questions, err := g.source.LoadQuestions(ctx, g.round)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNoQuestions, err)
	}
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrNoQuestions, err)
		}
	}

	approved, err := g.roster.LoadApprovedParticipants(ctx, g.round)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNoParticipants, err)
	}
	if len(approved) == 0 {
		return domain.ErrNoParticipants
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != domain.PhaseIdle {
		return domain.ErrRoundInProgress
	}

	g.generation++
	g.phase = domain.PhaseInProgress
	g.questions = questions
	g.setRosterLocked(approved)
	g.index = 0
	for _, p := range g.participants {
		p.Score = 0
	}
	g.broadcastLocked(EventParticipantsUpdate, g.rosterSnapshotLocked(), nil)
	g.startQuestionLocked()
	return nil
}

// Stop resets the round outside the normal completion path, e.g. from the
// operator console or the control feed. Connected clients get gameReset.
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase == domain.PhaseIdle {
		return
	}
	g.broadcastLocked(EventGameReset, nil, nil)
	g.resetLocked()
}

// Status reports the coordinator state for the operator console.
func (g *Game) Status() domain.Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	number := 0
	switch g.phase {
	case domain.PhaseInProgress:
		number = g.index + 1
		if number > len(g.questions) {
			number = len(g.questions)
		}
	case domain.PhaseCompleted:
		number = len(g.questions)
	}
	return domain.Status{
		Phase:            g.phase.String(),
		ParticipantCount: len(g.participants),
		QuestionNumber:   number,
		TotalQuestions:   len(g.questions),
	}
}

// Join attaches a connection to a participant identity. The identity must be
// on the approved roster; before the round starts the roster is fetched
// lazily so the waiting room can validate joins. Joining twice with the same
// user id keeps the existing score and join order.
func (g *Game) Join(ctx context.Context, conn Sender, userID, firstName, lastName string) error {
	g.mu.Lock()
	needRoster := g.approvedBy == nil
	g.mu.Unlock()

	if needRoster {
		approved, err := g.roster.LoadApprovedParticipants(ctx, g.round)
		if err != nil {
			_ = conn.Send(EventError, ErrorNotice{Message: "participant roster unavailable"})
			return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		g.mu.Lock()
		if g.approvedBy == nil {
			g.setRosterLocked(approved)
		}
		g.mu.Unlock()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.approvedBy[userID]; !ok {
		_ = conn.Send(EventError, ErrorNotice{Message: "not approved for this round"})
		return domain.ErrNotApproved
	}

	g.conns[conn] = userID
	p, ok := g.participants[userID]
	if !ok {
		g.joinSeq++
		p = &domain.Participant{
			UserID:    userID,
			FirstName: firstName,
			LastName:  lastName,
			JoinOrder: g.joinSeq,
		}
		g.participants[userID] = p
	} else {
		p.FirstName = firstName
		p.LastName = lastName
	}
	p.Online = true

	_ = conn.Send(EventGameState, g.stateSnapshotLocked())
	// A resolved question means the next one has not gone live yet; sending it
	// early would hand the joiner extra reading time before everyone else.
	if g.phase == domain.PhaseInProgress && !g.locked && g.index < len(g.questions) {
		_ = conn.Send(EventNewQuestion, g.questionBroadcastLocked(g.questions[g.index]))
		_ = conn.Send(EventTimeUpdate, g.remaining)
	}
	g.broadcastLocked(EventParticipantsUpdate, g.rosterSnapshotLocked(), conn)
	return nil
}

// Disconnect detaches a connection. The participant stays on the scoreboard,
// marked offline; their score and join order survive a reconnect.
func (g *Game) Disconnect(conn Sender) {
	g.mu.Lock()
	defer g.mu.Unlock()

	userID, ok := g.conns[conn]
	if !ok {
		return
	}
	delete(g.conns, conn)

	stillOnline := false
	for _, uid := range g.conns {
		if uid == userID {
			stillOnline = true
			break
		}
	}
	if p, ok := g.participants[userID]; ok && !stillOnline {
		p.Online = false
	}
	g.broadcastLocked(EventParticipantsUpdate, g.rosterSnapshotLocked(), nil)
}

// Submit records an answer for the current question. Stale, duplicate and
// post-lock submissions are dropped silently; they are expected races, not
// client errors. The first correct submission wins the question atomically
// under the coordinator mutex; later submissions arriving inside the grace
// window are still retained in the ledger for the result's answer list, but
// never score.
func (g *Game) Submit(userID, questionID, answer string, clientTime int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.phase != domain.PhaseInProgress || g.index >= len(g.questions) {
		return
	}
	q := g.questions[g.index]
	if q.ID != questionID || g.locked {
		return
	}
	p, ok := g.participants[userID]
	if !ok {
		return
	}
	if _, dup := g.ledger[userID]; dup {
		return
	}

	g.receiptSeq++
	g.ledger[userID] = domain.Submission{
		UserID:     userID,
		QuestionID: questionID,
		Answer:     answer,
		ClientTime: clientTime,
		Receipt:    g.receiptSeq,
	}

	if answer != q.Answer || g.winnerID != "" {
		return
	}

	g.winnerID = userID
	if g.countdown != nil {
		g.countdown.Stop()
	}
	p.Score += q.Points
	g.broadcastLocked(EventQuestionLocked, LockedNotice{
		WinnerID:      userID,
		WinnerName:    p.DisplayName(),
		CorrectAnswer: q.Answer,
	}, nil)

	idx := g.index
	g.scheduleLocked(g.timings.LockGrace, func() {
		if g.index == idx {
			g.resolveLocked()
		}
	})
}

// startQuestionLocked opens the question at the current index, or finishes
// the round when questions are exhausted.
func (g *Game) startQuestionLocked() {
	if g.index >= len(g.questions) {
		g.finishLocked()
		return
	}
	g.locked = false
	g.winnerID = ""
	g.ledger = make(map[string]domain.Submission)
	g.receiptSeq = 0
	g.remaining = g.timings.QuestionSeconds

	q := g.questions[g.index]
	g.broadcastLocked(EventNewQuestion, g.questionBroadcastLocked(q), nil)
	g.broadcastLocked(EventTimeUpdate, g.remaining, nil)

	idx := g.index
	g.countdown = g.scheduleLocked(g.timings.Tick, func() { g.tickLocked(idx) })
}

// tickLocked drives the countdown. A won or locked question, or an index
// change, means this tick belongs to a finished question and must not fire a
// timeout.
func (g *Game) tickLocked(idx int) {
	if g.phase != domain.PhaseInProgress || g.locked || g.winnerID != "" || g.index != idx {
		return
	}
	g.remaining--
	g.broadcastLocked(EventTimeUpdate, g.remaining, nil)
	if g.remaining <= 0 {
		g.resolveLocked()
		return
	}
	g.countdown = g.scheduleLocked(g.timings.Tick, func() { g.tickLocked(idx) })
}

// resolveLocked finalizes the current question: builds the result from the
// ledger, persists it asynchronously, broadcasts it and schedules the next
// question.
func (g *Game) resolveLocked() {
	if g.phase != domain.PhaseInProgress || g.index >= len(g.questions) {
		return
	}
	g.locked = true
	if g.countdown != nil {
		g.countdown.Stop()
	}

	q := g.questions[g.index]
	result := g.buildResultLocked(q)
	g.persistResult(result)
	g.broadcastLocked(EventQuestionResult, result, nil)
	g.broadcastLocked(EventParticipantsUpdate, g.rosterSnapshotLocked(), nil)

	g.index++
	g.scheduleLocked(g.timings.AdvanceDelay, g.startQuestionLocked)
}

// finishLocked ends the round: final standings out, reset after cooldown.
func (g *Game) finishLocked() {
	g.phase = domain.PhaseCompleted
	standings := g.standingsLocked()
	g.broadcastLocked(EventGameFinished, standings, nil)
	g.persistStandings(standings)
	g.scheduleLocked(g.timings.Cooldown, g.resetLocked)
}

// resetLocked returns the coordinator to idle. Bumping the generation
// invalidates every timer scheduled by the finished round instance.
func (g *Game) resetLocked() {
	g.generation++
	g.phase = domain.PhaseIdle
	g.participants = make(map[string]*domain.Participant)
	g.joinSeq = 0
	g.questions = nil
	g.approved = nil
	g.approvedBy = nil
	g.index = 0
	g.locked = false
	g.winnerID = ""
	g.ledger = nil
	g.receiptSeq = 0
	g.remaining = 0
	if g.countdown != nil {
		g.countdown.Stop()
		g.countdown = nil
	}
}

// scheduleLocked arms a timer whose callback re-enters the mutex and runs
// only if the round generation is unchanged since scheduling.
func (g *Game) scheduleLocked(d time.Duration, f func()) *time.Timer {
	gen := g.generation
	return time.AfterFunc(d, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.generation != gen {
			return
		}
		f()
	})
}

// broadcastLocked fans an event out to every connection except skip.
func (g *Game) broadcastLocked(event string, payload any, skip Sender) {
	for conn := range g.conns {
		if conn == skip {
			continue
		}
		_ = conn.Send(event, payload)
	}
}

func (g *Game) setRosterLocked(approved []domain.ApprovedParticipant) {
	g.approved = approved
	g.approvedBy = make(map[string]domain.ApprovedParticipant, len(approved))
	for _, a := range approved {
		g.approvedBy[a.ID] = a
	}
}

func (g *Game) stateSnapshotLocked() GameState {
	number := 0
	if g.phase == domain.PhaseInProgress && g.index < len(g.questions) {
		number = g.index + 1
	} else if g.phase == domain.PhaseCompleted {
		number = len(g.questions)
	}
	return GameState{
		Status:         g.phase.String(),
		Participants:   g.rosterSnapshotLocked(),
		QuestionNumber: number,
		TotalQuestions: len(g.questions),
		Approved:       append([]domain.ApprovedParticipant(nil), g.approved...),
	}
}

func (g *Game) questionBroadcastLocked(q domain.Question) QuestionBroadcast {
	return QuestionBroadcast{
		ID:             q.ID,
		Text:           q.Text,
		OptionA:        q.OptionA,
		OptionB:        q.OptionB,
		OptionC:        q.OptionC,
		OptionD:        q.OptionD,
		Points:         q.Points,
		QuestionNumber: g.index + 1,
		TotalQuestions: len(g.questions),
	}
}

// rosterSnapshotLocked lists participants in join order.
func (g *Game) rosterSnapshotLocked() []domain.Participant {
	list := make([]domain.Participant, 0, len(g.participants))
	for _, p := range g.participants {
		list = append(list, *p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].JoinOrder < list[j].JoinOrder
	})
	return list
}

// standingsLocked sorts by score descending, ties broken by join order.
func (g *Game) standingsLocked() []domain.Participant {
	list := g.rosterSnapshotLocked()
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Score > list[j].Score
	})
	return list
}

func (g *Game) buildResultLocked(q domain.Question) domain.QuestionResult {
	records := make([]domain.AnswerRecord, 0, len(g.ledger))
	for _, sub := range g.ledger {
		name := ""
		if p, ok := g.participants[sub.UserID]; ok {
			name = p.DisplayName()
		}
		records = append(records, domain.AnswerRecord{
			UserID:          sub.UserID,
			Answer:          sub.Answer,
			ClientTime:      sub.ClientTime,
			ParticipantName: name,
			Receipt:         sub.Receipt,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Receipt < records[j].Receipt
	})

	result := domain.QuestionResult{
		QuestionID:    q.ID,
		CorrectAnswer: q.Answer,
		Participants:  records,
	}
	if g.winnerID != "" {
		winner := g.winnerID
		result.WinnerID = &winner
		if p, ok := g.participants[winner]; ok {
			result.WinnerName = p.DisplayName()
		}
	}
	return result
}

// persistResult writes the question outcome without blocking the round.
func (g *Game) persistResult(result domain.QuestionResult) {
	if g.results == nil {
		return
	}
	round := g.round
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.results.SaveQuestionResult(ctx, round, result); err != nil {
			log.Printf("persist question result %s: %v", result.QuestionID, err)
		}
	}()
}

func (g *Game) persistStandings(standings []domain.Participant) {
	if g.results == nil {
		return
	}
	round := g.round
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.results.SaveFinalStandings(ctx, round, standings); err != nil {
			log.Printf("persist final standings: %v", err)
		}
	}()
}

// IsConfigError reports whether a start failure is an operator-fixable
// configuration problem rather than an internal fault.
func IsConfigError(err error) bool {
	return errors.Is(err, domain.ErrNoQuestions) ||
		errors.Is(err, domain.ErrNoParticipants) ||
		errors.Is(err, domain.ErrRoundInProgress)
}
