// AngelaMos | 2026
// scheduler_test.go

package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dashtv/streaming-gateway/internal/user"
)

// fakeBiller scripts per-user billing outcomes.
type fakeBiller struct {
	mu        sync.Mutex
	due       []*user.User
	outcomes  map[string]*user.BillingResult
	errors    map[string]error
	processed []string
}

func (f *fakeBiller) UsersDueForBilling(time.Time) []*user.User {
	return f.due
}

func (f *fakeBiller) ProcessBilling(
	_ context.Context,
	username string,
) (*user.BillingResult, error) {
	f.mu.Lock()
	f.processed = append(f.processed, username)
	f.mu.Unlock()

	if err := f.errors[username]; err != nil {
		return nil, err
	}
	if res := f.outcomes[username]; res != nil {
		return res, nil
	}
	return &user.BillingResult{Success: true}, nil
}

func dueUser(username string, price int64) *user.User {
	return &user.User{
		Username: username,
		Package:  user.Package{MonthlyPrice: price},
	}
}

func TestRunBillingFaultIsolation(t *testing.T) {
	biller := &fakeBiller{
		due: []*user.User{
			dueUser("first", 20000),
			dueUser("second", 30000),
			dueUser("third", 40000),
		},
		errors: map[string]error{
			"second": errors.New("storage write failed"),
		},
	}

	s := NewScheduler(biller, nil)
	run := s.RunBilling(context.Background())

	if run == nil {
		t.Fatal("RunBilling() returned nil")
	}
	if got := biller.processed; len(got) != 3 {
		t.Fatalf("processed = %v, want all three users", got)
	}

	r := run.Results
	if r.Successful != 2 || r.Failed != 1 {
		t.Errorf("results = %+v, want 2 successful / 1 failed", r)
	}
	if r.Revenue != 60000 {
		t.Errorf("revenue = %d, want 60000", r.Revenue)
	}
	if len(r.Details) != 3 {
		t.Fatalf("details = %d entries, want 3", len(r.Details))
	}
	if r.Details[1].Status != "error" || r.Details[1].Error == "" {
		t.Errorf("failing user detail = %+v", r.Details[1])
	}
}

func TestRunBillingCountsSuspensions(t *testing.T) {
	biller := &fakeBiller{
		due: []*user.User{dueUser("broke", 60000)},
		outcomes: map[string]*user.BillingResult{
			"broke": {Reason: "insufficient balance", Suspended: true},
		},
	}

	s := NewScheduler(biller, nil)
	run := s.RunBilling(context.Background())

	if run.Results.Suspended != 1 || run.Results.Failed != 1 {
		t.Errorf("results = %+v, want 1 failed, 1 suspended", run.Results)
	}
	if run.Results.Revenue != 0 {
		t.Errorf("revenue = %d, want 0", run.Results.Revenue)
	}
}

func TestRunBillingSkipsWhenInProgress(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	biller := &blockingBiller{
		due:     []*user.User{dueUser("slow", 1000)},
		started: started,
		release: release,
	}

	s := NewScheduler(biller, nil)

	go s.RunBilling(context.Background())
	<-started

	if run := s.RunBilling(context.Background()); run != nil {
		t.Error("concurrent RunBilling() returned a run, want nil no-op")
	}

	close(release)
}

type blockingBiller struct {
	due     []*user.User
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBiller) UsersDueForBilling(time.Time) []*user.User {
	return b.due
}

func (b *blockingBiller) ProcessBilling(
	context.Context,
	string,
) (*user.BillingResult, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return &user.BillingResult{Success: true}, nil
}

func TestSchedulerLifecycle(t *testing.T) {
	s := NewScheduler(&fakeBiller{}, nil)

	if s.Status().Running {
		t.Fatal("scheduler reports running before Start")
	}

	s.Start(context.Background())
	st := s.Status()
	if !st.Running {
		t.Fatal("scheduler not running after Start")
	}
	if st.NextRun == nil {
		t.Fatal("no next run while running")
	}
	if st.NextRun.Hour() != 0 || st.NextRun.Minute() != 0 {
		t.Errorf("next run = %v, want a local midnight", st.NextRun)
	}
	if !st.NextRun.After(time.Now()) {
		t.Errorf("next run %v not in the future", st.NextRun)
	}

	// Second Start is a no-op, then Stop tears the loop down.
	s.Start(context.Background())
	s.Stop()

	if s.Status().Running {
		t.Fatal("scheduler still running after Stop")
	}

	// Stop on a stopped scheduler must not panic or hang.
	s.Stop()
}

func TestStatsAccumulateAcrossRuns(t *testing.T) {
	biller := &fakeBiller{due: []*user.User{dueUser("steady", 5000)}}
	s := NewScheduler(biller, nil)
	ctx := context.Background()

	s.RunBilling(ctx)
	s.ManualRun(ctx)

	st := s.Status()
	if st.Stats.TotalRuns != 2 {
		t.Errorf("TotalRuns = %d, want 2", st.Stats.TotalRuns)
	}
	if st.Stats.SuccessfulBillings != 2 {
		t.Errorf("SuccessfulBillings = %d, want 2", st.Stats.SuccessfulBillings)
	}
	if st.Stats.TotalRevenue != 10000 {
		t.Errorf("TotalRevenue = %d, want 10000", st.Stats.TotalRevenue)
	}
	if st.LastRun == nil {
		t.Fatal("LastRun not recorded")
	}

	s.ResetStats()
	if s.Status().Stats.TotalRuns != 0 {
		t.Error("stats not reset")
	}
}
