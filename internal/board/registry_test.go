package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/triagedesk/internal/api"
)

type fakeBoardClient struct {
	mu          sync.Mutex
	list        func(ctx context.Context) ([]api.Patient, error)
	deleteAll   func(ctx context.Context) error
	listCalls   int
	deleteCalls int
}

func (f *fakeBoardClient) ListPatients(ctx context.Context) ([]api.Patient, error) {
	f.mu.Lock()
	f.listCalls++
	fn := f.list
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx)
}

func (f *fakeBoardClient) DeleteAllPatients(ctx context.Context) error {
	f.mu.Lock()
	f.deleteCalls++
	fn := f.deleteAll
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (f *fakeBoardClient) counts() (lists, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.deleteCalls
}

type recordingNotifier struct {
	mu      sync.Mutex
	entries []Entry
}

func (n *recordingNotifier) NotifyDiscrepancy(_ context.Context, e Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, e)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

func TestRefreshSuccess(t *testing.T) {
	t.Parallel()

	client := &fakeBoardClient{
		list: func(context.Context) ([]api.Patient, error) {
			return []api.Patient{
				{Nombre: "Luis", Prioridad: "🟡 Prioridad 3"},
				{Nombre: "Ana", Prioridad: "🔴 Prioridad 1"},
			}, nil
		},
	}
	r := NewRegistry(client, time.Minute, nil)

	r.Refresh(context.Background())

	snap := r.Snapshot()
	if snap.Err != "" || snap.Cleared {
		t.Fatalf("snapshot = %+v, want plain entries", snap)
	}
	if len(snap.Entries) != 2 || snap.Entries[0].Patient.Nombre != "Ana" {
		t.Fatalf("entries = %v, want Ana first", names(snap.Entries))
	}
	if snap.RefreshedAt.IsZero() {
		t.Error("RefreshedAt not stamped")
	}
}

func TestRefreshErrorReplacesSnapshot(t *testing.T) {
	t.Parallel()

	client := &fakeBoardClient{
		list: func(context.Context) ([]api.Patient, error) {
			return []api.Patient{{Nombre: "Ana", Prioridad: "🔴 Prioridad 1"}}, nil
		},
	}
	r := NewRegistry(client, time.Minute, nil)
	r.Refresh(context.Background())

	client.mu.Lock()
	client.list = func(context.Context) ([]api.Patient, error) { return nil, errors.New("502") }
	client.mu.Unlock()
	r.Refresh(context.Background())

	// a failed poll replaces the board wholesale, no stale fallback
	snap := r.Snapshot()
	if snap.Err == "" {
		t.Fatal("expected error placeholder")
	}
	if len(snap.Entries) != 0 {
		t.Errorf("stale entries survived: %v", names(snap.Entries))
	}
}

func TestRefreshStaleResponseDiscarded(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	first := true
	client := &fakeBoardClient{}
	client.list = func(context.Context) ([]api.Patient, error) {
		client.mu.Lock()
		wasFirst := first
		first = false
		client.mu.Unlock()
		if wasFirst {
			close(entered)
			<-release
			return []api.Patient{{Nombre: "Vieja", Prioridad: "🔴 Prioridad 1"}}, nil
		}
		return []api.Patient{{Nombre: "Nueva", Prioridad: "🔴 Prioridad 1"}}, nil
	}
	r := NewRegistry(client, time.Minute, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Refresh(context.Background())
	}()

	<-entered
	r.Refresh(context.Background()) // newer refresh completes while the first hangs
	close(release)
	<-done

	snap := r.Snapshot()
	if len(snap.Entries) != 1 || snap.Entries[0].Patient.Nombre != "Nueva" {
		t.Fatalf("entries = %v, the slow first response must be discarded", names(snap.Entries))
	}
}

func TestRefreshNotifiesDiscrepanciesOnce(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	client := &fakeBoardClient{
		list: func(context.Context) ([]api.Patient, error) {
			return []api.Patient{
				{Nombre: "Ana", Edad: 40, Prioridad: "🟠 Prioridad 2", PrioridadIA: 4},
				{Nombre: "Luis", Edad: 55, Prioridad: "🟡 Prioridad 3", PrioridadIA: 3},
			}, nil
		},
	}
	r := NewRegistry(client, time.Minute, nil, WithNotifier(notifier))

	r.Refresh(context.Background())
	r.Refresh(context.Background())

	// Ana disagrees with the model and gets exactly one notification;
	// Luis agrees and gets none
	if got := notifier.count(); got != 1 {
		t.Fatalf("notified %d times, want 1", got)
	}
	if notifier.entries[0].Patient.Nombre != "Ana" {
		t.Errorf("notified %q, want Ana", notifier.entries[0].Patient.Nombre)
	}
}

func TestClearAllDeclined(t *testing.T) {
	t.Parallel()

	client := &fakeBoardClient{}
	r := NewRegistry(client, time.Minute, nil)

	if err := r.ClearAll(context.Background(), func() bool { return false }); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("err = %v, want ErrNotConfirmed", err)
	}
	if err := r.ClearAll(context.Background(), nil); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("nil confirm err = %v, want ErrNotConfirmed", err)
	}
	if _, deletes := client.counts(); deletes != 0 {
		t.Errorf("DeleteAllPatients called %d times, want 0", deletes)
	}
}

func TestClearAllConfirmed(t *testing.T) {
	t.Parallel()

	client := &fakeBoardClient{}
	r := NewRegistry(client, time.Minute, nil)

	if err := r.ClearAll(context.Background(), func() bool { return true }); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	snap := r.Snapshot()
	if !snap.Cleared {
		t.Error("snapshot should show the cleared confirmation")
	}
	// no automatic refresh after clearing; the periodic poll handles it
	if lists, deletes := client.counts(); lists != 0 || deletes != 1 {
		t.Errorf("lists=%d deletes=%d, want 0 and 1", lists, deletes)
	}
}

func TestClearAllFailure(t *testing.T) {
	t.Parallel()

	client := &fakeBoardClient{
		deleteAll: func(context.Context) error { return errors.New("403") },
	}
	r := NewRegistry(client, time.Minute, nil)

	if err := r.ClearAll(context.Background(), func() bool { return true }); err == nil {
		t.Fatal("expected delete failure to surface")
	}
	if snap := r.Snapshot(); snap.Err == "" {
		t.Error("snapshot should show the delete error placeholder")
	}
}

func TestClearAllStalesPendingRefresh(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	client := &fakeBoardClient{
		list: func(context.Context) ([]api.Patient, error) {
			close(entered)
			<-release
			return []api.Patient{{Nombre: "Fantasma", Prioridad: "🔴 Prioridad 1"}}, nil
		},
	}
	r := NewRegistry(client, time.Minute, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Refresh(context.Background())
	}()

	<-entered
	if err := r.ClearAll(context.Background(), func() bool { return true }); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	close(release)
	<-done

	// the refresh issued before the clear must not repopulate the board
	snap := r.Snapshot()
	if !snap.Cleared || len(snap.Entries) != 0 {
		t.Fatalf("snapshot = %+v, cleared confirmation must survive", snap)
	}
}

func TestRunPollsImmediately(t *testing.T) {
	t.Parallel()

	polled := make(chan struct{}, 1)
	client := &fakeBoardClient{
		list: func(context.Context) ([]api.Patient, error) {
			select {
			case polled <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}
	r := NewRegistry(client, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	select {
	case <-polled:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not poll immediately")
	}
	cancel()
	<-done
}
