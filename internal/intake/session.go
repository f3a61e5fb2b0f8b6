// Package intake drives one patient's triage interview: entry validation,
// the submission state machine, and the sequential yes/no questioning with
// its early-exit rule.
package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/triagedesk/internal/api"
)

// State is the phase of an intake session.
type State string

const (
	// StateVitals means the session is collecting identity and vitals.
	StateVitals State = "vitals"

	// StateAwaitingCategory means the service wants a symptom category.
	StateAwaitingCategory State = "awaiting_category"

	// StateQuestioning means the yes/no question sequence is running.
	StateQuestioning State = "questioning"

	// StateResolved means the service assigned a final priority.
	StateResolved State = "resolved"
)

// ErrBusy is returned when a submission is attempted while another is in
// flight. Callers must not queue; the attempt is simply rejected.
var ErrBusy = errors.New("intake: a submission is already in flight")

// ErrSessionReset is returned when a response arrives for a session that
// was reset while the request was in flight. The response is discarded.
var ErrSessionReset = errors.New("intake: session was reset mid-flight")

// Client is the slice of the service client the intake flow needs.
type Client interface {
	SubmitTriage(ctx context.Context, in *api.Intake) (*api.TriageResult, error)
	Categories(ctx context.Context) ([]string, error)
	Questions(ctx context.Context, category string) ([]api.Question, error)
}

// StepOutcome is the result of a successful intake submission.
type StepOutcome struct {
	// Done means the service stopped the interview and assigned a terminal
	// priority; no category or questioning is needed.
	Done bool

	// Result is the service's triage response.
	Result *api.TriageResult

	// Categories is populated when the interview continues (Done false);
	// it is loaded exactly once per submission.
	Categories []string
}

// Session owns the mutable state of one patient's intake. All state lives
// here, passed by reference to the sequencer; Reset replaces it wholesale.
type Session struct {
	client Client
	logger log.Logger

	mu         sync.Mutex
	id         string
	generation uint64
	state      State
	intake     api.Intake
	busy       bool
	result     *api.TriageResult
}

// NewSession creates a session in the vitals state.
func NewSession(client Client, logger log.Logger) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Session{client: client, logger: logger}
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.generation++
	s.id = ulid.Make().String()
	s.state = StateVitals
	s.intake = api.Intake{Respuestas: &api.Answers{}}
	s.busy = false
	s.result = nil
}

// Reset discards the session's data and starts a fresh interview. Any
// in-flight response is detected by generation and discarded on arrival.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// ID returns the session identifier. It changes on every Reset.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the service's final triage response, if resolved.
func (s *Session) Result() *api.TriageResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Intake returns a snapshot of the session's intake data.
func (s *Session) Intake() api.Intake {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intake
}

// SubmitIntake validates the vitals form and sends it to the triage
// endpoint. Three-way outcome: field errors (local validation or a mapped
// server rejection) leave the session in the vitals state; a transport or
// payload error is returned as err; otherwise the outcome says whether the
// interview is done or a category must be chosen.
//
// Server rejection messages that match no known field keyword are dropped
// from the field map; they are logged here since there is nowhere visible
// to put them.
func (s *Session) SubmitIntake(ctx context.Context, in api.Intake) (*StepOutcome, FieldErrors, error) {
	if errs := ValidateVitals(&in); !errs.OK() {
		return nil, errs, nil
	}

	s.mu.Lock()
	if s.state != StateVitals {
		s.mu.Unlock()
		return nil, nil, fmt.Errorf("intake: cannot submit vitals in state %q", s.state)
	}
	if s.busy {
		s.mu.Unlock()
		return nil, nil, ErrBusy
	}
	s.busy = true
	gen := s.generation
	in.Categoria = nil
	in.Respuestas = &api.Answers{}
	s.intake = in
	snapshot := s.intake
	s.mu.Unlock()

	result, submitErr := s.client.SubmitTriage(ctx, &snapshot)

	s.mu.Lock()
	if gen != s.generation {
		// The session was reset while we were waiting; whatever came back
		// must not mutate the new interview.
		s.mu.Unlock()
		return nil, nil, ErrSessionReset
	}
	s.busy = false

	if submitErr != nil {
		s.mu.Unlock()
		var ve *api.ValidationError
		if errors.As(submitErr, &ve) {
			mapped, dropped := MapServerMessages(ve.Messages)
			for _, msg := range dropped {
				s.logger.Warn(ctx, "unmapped server validation message", "message", msg)
			}
			return nil, mapped, nil
		}
		return nil, nil, submitErr
	}

	if result.Detener {
		s.state = StateResolved
		s.result = result
		s.mu.Unlock()
		return &StepOutcome{Done: true, Result: result}, nil, nil
	}
	s.state = StateAwaitingCategory
	s.mu.Unlock()

	cats, err := s.client.Categories(ctx)
	if err != nil {
		return &StepOutcome{Result: result}, nil, fmt.Errorf("load categories: %w", err)
	}
	return &StepOutcome{Result: result, Categories: cats}, nil, nil
}

// ChooseCategory records the chosen category and moves to questioning.
func (s *Session) ChooseCategory(category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingCategory {
		return fmt.Errorf("intake: cannot choose category in state %q", s.state)
	}
	s.intake.Categoria = &category
	s.state = StateQuestioning
	return nil
}

// RecordAnswer stores an answer under the question key, preserving order.
func (s *Session) RecordAnswer(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateQuestioning {
		return fmt.Errorf("intake: cannot record answer in state %q", s.state)
	}
	s.intake.Respuestas.Set(key, value)
	return nil
}

// Finalize submits the intake with its recorded answers and resolves the
// session. Called by the sequencer on early exit or sequence exhaustion.
// A failure is returned to the caller for display; recorded answers are
// not rolled back.
func (s *Session) Finalize(ctx context.Context) (*api.TriageResult, error) {
	s.mu.Lock()
	if s.state != StateQuestioning {
		s.mu.Unlock()
		return nil, fmt.Errorf("intake: cannot finalize in state %q", s.state)
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.busy = true
	gen := s.generation
	snapshot := s.intake
	s.mu.Unlock()

	result, err := s.client.SubmitTriage(ctx, &snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil, ErrSessionReset
	}
	s.busy = false

	if err != nil {
		return nil, fmt.Errorf("final submission: %w", err)
	}
	s.state = StateResolved
	s.result = result
	return result, nil
}
