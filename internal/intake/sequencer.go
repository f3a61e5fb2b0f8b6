package intake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagedesk/internal/api"
)

// Answer values as the service expects them on the wire.
const (
	AnswerYes = "sí"
	AnswerNo  = "no"
)

// ErrExhausted is returned when an answer is given past the last question.
var ErrExhausted = errors.New("intake: question sequence exhausted")

// Affirmative reports whether an answer value counts as "yes". The service
// accepts both spellings, so the early-exit check does too.
func Affirmative(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "sí" || v == "si"
}

// Sequencer walks a category's question set one question at a time,
// recording answers on the session and finalizing the interview as soon as
// an affirmative answer arrives or the set runs out.
//
// A sequencer is single-use: it never restarts mid-session. Starting over
// requires a session Reset and a fresh sequencer.
type Sequencer struct {
	session   *Session
	client    Client
	logger    log.Logger
	questions []api.Question
	idx       int
	finalized bool
}

// Outcome describes the effect of one answer.
type Outcome struct {
	// Final means the interview was submitted and the session resolved.
	Final bool

	// Result is the service response when Final.
	Result *api.TriageResult
}

// NewSequencer creates a sequencer bound to the given session.
func NewSequencer(session *Session, client Client, logger log.Logger) *Sequencer {
	if logger == nil {
		logger = log.Nop()
	}
	return &Sequencer{session: session, client: client, logger: logger}
}

// Start fetches the question set for a category and orders it ascending by
// prioridad, keeping the service's order for ties. A fetch failure is fatal
// to the sequence; there is no retry. An empty set finalizes the interview
// immediately, and the outcome is non-nil.
func (q *Sequencer) Start(ctx context.Context, category string) (*Outcome, error) {
	questions, err := q.client.Questions(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Prioridad < questions[j].Prioridad
	})

	q.questions = questions
	q.idx = 0

	q.logger.Info(ctx, "question sequence started",
		"category", category,
		"questions", len(questions),
	)

	if len(questions) == 0 {
		return q.finalize(ctx)
	}
	return nil, nil
}

// Len returns the number of questions in the sequence.
func (q *Sequencer) Len() int { return len(q.questions) }

// Current returns the question awaiting an answer, or false when the
// sequence is exhausted.
func (q *Sequencer) Current() (api.Question, bool) {
	if q.idx >= len(q.questions) {
		return api.Question{}, false
	}
	return q.questions[q.idx], true
}

// Answer records value for the current question and advances. An
// affirmative answer, or reaching the end of the set, submits the session
// immediately regardless of how many questions remain; this is the early
// exit that finalizes the record. A submit failure is returned for display
// and the recorded answer stays recorded.
func (q *Sequencer) Answer(ctx context.Context, value string) (*Outcome, error) {
	if q.finalized {
		return nil, ErrExhausted
	}
	current, ok := q.Current()
	if !ok {
		return nil, ErrExhausted
	}

	if err := q.session.RecordAnswer(current.Clave, value); err != nil {
		return nil, err
	}
	q.idx++

	if Affirmative(value) || q.idx >= len(q.questions) {
		return q.finalize(ctx)
	}
	return &Outcome{}, nil
}

func (q *Sequencer) finalize(ctx context.Context) (*Outcome, error) {
	q.finalized = true
	result, err := q.session.Finalize(ctx)
	if err != nil {
		return nil, err
	}
	return &Outcome{Final: true, Result: result}, nil
}
