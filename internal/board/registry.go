package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/triagedesk/internal/api"
)

// ErrNotConfirmed is returned by ClearAll when the confirmation callback
// declines. Delete-all never runs unconfirmed.
var ErrNotConfirmed = errors.New("board: delete-all not confirmed")

// Client is the slice of the service client the board needs.
type Client interface {
	ListPatients(ctx context.Context) ([]api.Patient, error)
	DeleteAllPatients(ctx context.Context) error
}

// Notifier is told about patients whose manual and AI priorities disagree.
// Implementations must tolerate being called from the poll loop.
type Notifier interface {
	NotifyDiscrepancy(ctx context.Context, e Entry) error
}

// Snapshot is what the board shows right now. A refresh replaces it
// wholesale: entries, or a single error placeholder, or the cleared
// confirmation. There is no partial or stale fallback.
type Snapshot struct {
	Entries     []Entry   `json:"entries"`
	Err         string    `json:"error,omitempty"`
	Cleared     bool      `json:"cleared,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Registry polls the patient list and publishes reconciled snapshots.
// Manual and timer-driven refreshes share one code path; overlapping
// requests are resolved by a generation stamp, so a slow early response
// can never clobber a newer one.
type Registry struct {
	client   Client
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	issued   uint64
	snap     Snapshot
	notified map[string]bool // patient key -> discrepancy already notified
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics attaches board metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithNotifier attaches a discrepancy notifier.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithClock overrides the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry polling at the given interval.
func NewRegistry(client Client, interval time.Duration, logger log.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	r := &Registry{
		client:   client,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		notified: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns the current board state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Run polls immediately and then on every interval tick until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	r.Refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh fetches the patient list and replaces the snapshot. On failure
// the snapshot becomes a single error placeholder. The response is applied
// only if no newer refresh was issued while it was in flight.
func (r *Registry) Refresh(ctx context.Context) {
	r.mu.Lock()
	r.issued++
	gen := r.issued
	r.mu.Unlock()

	start := r.now()
	patients, err := r.client.ListPatients(ctx)
	elapsed := r.now().Sub(start)

	r.mu.Lock()
	if gen != r.issued {
		r.mu.Unlock()
		r.logger.Info(ctx, "discarding stale refresh", "generation", gen, "latest", r.issued)
		if r.metrics != nil {
			r.metrics.PollsDiscarded.Inc()
		}
		return
	}

	if err != nil {
		r.snap = Snapshot{Err: "Error al cargar pacientes. Intenta más tarde.", RefreshedAt: r.now()}
		r.mu.Unlock()
		r.logger.Error(ctx, err, "patient list refresh failed")
		if r.metrics != nil {
			r.metrics.PollsTotal.WithLabelValues("error").Inc()
			r.metrics.PollDuration.Observe(elapsed.Seconds())
		}
		return
	}

	entries := Reconcile(patients, r.now())
	r.snap = Snapshot{Entries: entries, RefreshedAt: r.now()}
	toNotify := r.newDiscrepanciesLocked(entries)
	r.mu.Unlock()

	discrepancies := 0
	for _, e := range entries {
		if e.Discrepancy {
			discrepancies++
		}
	}

	r.logger.Info(ctx, "board refreshed",
		"patients", len(entries),
		"discrepancies", discrepancies,
		"generation", gen,
	)
	if r.metrics != nil {
		r.metrics.PollsTotal.WithLabelValues("success").Inc()
		r.metrics.PollDuration.Observe(elapsed.Seconds())
		r.metrics.QueueSize.Set(float64(len(entries)))
		r.metrics.DiscrepanciesShown.Set(float64(discrepancies))
	}

	for _, e := range toNotify {
		if err := r.notifier.NotifyDiscrepancy(ctx, e); err != nil {
			r.logger.Error(ctx, err, "discrepancy notification failed", "patient", e.Patient.Key())
		}
	}
}

// newDiscrepanciesLocked returns entries that became discrepant since the
// last notification pass. Requires r.mu held and a non-nil notifier to
// return anything.
func (r *Registry) newDiscrepanciesLocked(entries []Entry) []Entry {
	if r.notifier == nil {
		return nil
	}
	var out []Entry
	for _, e := range entries {
		key := e.Patient.Key()
		if e.Discrepancy && !r.notified[key] {
			r.notified[key] = true
			out = append(out, e)
		}
	}
	return out
}

// ClearAll deletes every patient from the service after the confirm
// callback approves. On success the snapshot becomes the cleared
// confirmation; there is no automatic refresh, the periodic poll will
// repopulate the board as empty.
func (r *Registry) ClearAll(ctx context.Context, confirm func() bool) error {
	if confirm == nil || !confirm() {
		if r.metrics != nil {
			r.metrics.ClearsTotal.WithLabelValues("declined").Inc()
		}
		return ErrNotConfirmed
	}

	if err := r.client.DeleteAllPatients(ctx); err != nil {
		r.mu.Lock()
		r.issued++
		r.snap = Snapshot{Err: "Error al eliminar pacientes.", RefreshedAt: r.now()}
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.ClearsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	r.mu.Lock()
	r.issued++ // pending refreshes are now stale
	r.snap = Snapshot{Cleared: true, RefreshedAt: r.now()}
	r.notified = make(map[string]bool)
	r.mu.Unlock()

	r.logger.Info(ctx, "all patients cleared")
	if r.metrics != nil {
		r.metrics.ClearsTotal.WithLabelValues("success").Inc()
	}
	return nil
}
