// AngelaMos | 2026
// scheduler.go

package billing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dashtv/streaming-gateway/internal/user"
)

// Biller is the slice of the user store the scheduler drives.
type Biller interface {
	UsersDueForBilling(now time.Time) []*user.User
	ProcessBilling(ctx context.Context, username string) (*user.BillingResult, error)
}

// RunDetail is one user's outcome within a billing run.
type RunDetail struct {
	Username   string `json:"username"`
	Amount     int64  `json:"amount,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Suspended  bool   `json:"suspended,omitempty"`
	NewBalance int64  `json:"newBalance,omitempty"`
}

// RunResults summarizes a single billing run.
type RunResults struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Suspended  int         `json:"suspended"`
	Revenue    int64       `json:"revenue"`
	Details    []RunDetail `json:"details"`
}

// LastRun records when the previous run happened and what it did.
type LastRun struct {
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Results   RunResults    `json:"results"`
}

// SchedulerStats accumulates across runs.
type SchedulerStats struct {
	TotalRuns          int   `json:"totalRuns"`
	SuccessfulBillings int   `json:"successfulBillings"`
	FailedBillings     int   `json:"failedBillings"`
	TotalRevenue       int64 `json:"totalRevenue"`
}

// Status is the scheduler's externally visible state.
type Status struct {
	Running    bool           `json:"running"`
	Processing bool           `json:"processing"`
	LastRun    *LastRun       `json:"lastRun"`
	Stats      SchedulerStats `json:"stats"`
	NextRun    *time.Time     `json:"nextRun"`
}

// Scheduler fires a billing run at every local midnight. The next fire
// time is recomputed from the wall clock after each run, so the timer
// never drifts. Runs are sequential per user with per-user fault
// isolation: one failing account never stops the pass.
type Scheduler struct {
	biller Biller
	loc    *time.Location

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	processing bool
	lastRun    *LastRun
	stats      SchedulerStats
}

// NewScheduler builds a scheduler billing in the given timezone; nil
// means the process-local zone.
func NewScheduler(biller Biller, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{biller: biller, loc: loc}
}

// Start launches the midnight loop. Starting a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		slog.Warn("billing scheduler already running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, s.done)

	slog.Info("billing scheduler started",
		"timezone", s.loc.String(),
		"next_run_in", time.Until(s.nextRun()).Round(time.Minute),
	)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	slog.Info("billing scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		timer := time.NewTimer(time.Until(s.nextRun()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunBilling(ctx)
		}
	}
}

// nextRun returns the next 00:00 in the billing timezone strictly
// after now.
func (s *Scheduler) nextRun() time.Time {
	return nextMidnight(time.Now().In(s.loc))
}

func nextMidnight(now time.Time) time.Time {
	next := time.Date(
		now.Year(), now.Month(), now.Day(),
		0, 0, 0, 0,
		now.Location(),
	).AddDate(0, 0, 1)
	return next
}

// RunBilling processes every user due today. Concurrent invocations
// collapse: a run that finds another in progress is a no-op.
func (s *Scheduler) RunBilling(ctx context.Context) *LastRun {
	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		slog.Warn("billing already in progress, skipping")
		return nil
	}
	s.processing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}()

	start := time.Now().In(s.loc)
	due := s.biller.UsersDueForBilling(start)

	slog.Info("billing run started",
		"due_users", len(due),
		"day_of_month", start.Day(),
	)

	results := RunResults{
		Total:   len(due),
		Details: make([]RunDetail, 0, len(due)),
	}

	for _, u := range due {
		price := u.Package.MonthlyPrice

		res, err := s.biller.ProcessBilling(ctx, u.Username)
		if err != nil {
			results.Failed++
			results.Details = append(results.Details, RunDetail{
				Username: u.Username,
				Status:   "error",
				Error:    err.Error(),
			})
			slog.Error("billing errored",
				"username", u.Username,
				"error", err,
			)
			continue
		}

		if res.Success {
			results.Successful++
			results.Revenue += price
			detail := RunDetail{
				Username: u.Username,
				Amount:   price,
				Status:   "success",
			}
			if res.User != nil {
				detail.NewBalance = res.User.Wallet.Balance
			}
			results.Details = append(results.Details, detail)
			continue
		}

		results.Failed++
		if res.Suspended {
			results.Suspended++
		}
		results.Details = append(results.Details, RunDetail{
			Username:  u.Username,
			Amount:    price,
			Status:    "failed",
			Error:     res.Reason,
			Suspended: res.Suspended,
		})
	}

	run := &LastRun{
		Timestamp: start,
		Duration:  time.Since(start),
		Results:   results,
	}

	s.mu.Lock()
	s.stats.TotalRuns++
	s.stats.SuccessfulBillings += results.Successful
	s.stats.FailedBillings += results.Failed
	s.stats.TotalRevenue += results.Revenue
	s.lastRun = run
	s.mu.Unlock()

	slog.Info("billing run finished",
		"total", results.Total,
		"successful", results.Successful,
		"failed", results.Failed,
		"suspended", results.Suspended,
		"revenue", results.Revenue,
		"duration", run.Duration,
	)

	return run
}

// ManualRun triggers a billing pass outside the schedule.
func (s *Scheduler) ManualRun(ctx context.Context) *LastRun {
	slog.Info("manual billing run triggered")
	return s.RunBilling(ctx)
}

// Status reports the scheduler state for the health and admin surfaces.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:    s.cancel != nil,
		Processing: s.processing,
		LastRun:    s.lastRun,
		Stats:      s.stats,
	}
	if st.Running {
		next := s.nextRun()
		st.NextRun = &next
	}
	return st
}

// ResetStats zeroes the accumulated counters.
func (s *Scheduler) ResetStats() {
	s.mu.Lock()
	s.stats = SchedulerStats{}
	s.mu.Unlock()

	slog.Info("billing stats reset")
}
