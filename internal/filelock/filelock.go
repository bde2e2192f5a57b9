// AngelaMos | 2026
// filelock.go

package filelock

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Locker serializes read-modify-write cycles on JSON document files.
// Each path gets an independent lock with a strict FIFO waiter queue;
// entries exist only while an operation is pending so the map stays
// empty when uncontended.
type Locker struct {
	mu    sync.Mutex
	paths map[string]*pathLock
}

type pathLock struct {
	held    bool
	waiters []chan struct{}
}

type Stats struct {
	ActiveLocks       int            `json:"active_locks"`
	LockedFiles       []string       `json:"locked_files"`
	WaitingOperations int            `json:"waiting_operations"`
	QueuesByFile      map[string]int `json:"queues_by_file"`
}

func New() *Locker {
	return &Locker{paths: make(map[string]*pathLock)}
}

// WithLock runs op while holding the exclusive lock for path. Waiters are
// served strictly in arrival order; the lock is released on every exit
// path, including when op returns an error.
func (l *Locker) WithLock(
	ctx context.Context,
	path string,
	op func() error,
) error {
	if err := l.acquire(ctx, path); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		l.release(path)
		slog.Debug("file lock released",
			"path", path,
			"held", time.Since(start),
		)
	}()

	return op()
}

func (l *Locker) acquire(ctx context.Context, path string) error {
	l.mu.Lock()

	pl, ok := l.paths[path]
	if !ok {
		pl = &pathLock{}
		l.paths[path] = pl
	}

	if !pl.held {
		pl.held = true
		l.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	pl.waiters = append(pl.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		// Lock was handed off directly; held stays true.
		return nil
	case <-ctx.Done():
		l.abandonWait(path, ready)
		return ctx.Err()
	}
}

// abandonWait removes a canceled waiter from the queue. If the hand-off
// already happened the waiter owns the lock and must release it.
func (l *Locker) abandonWait(path string, ready chan struct{}) {
	l.mu.Lock()

	pl, ok := l.paths[path]
	if !ok {
		l.mu.Unlock()
		return
	}

	for i, w := range pl.waiters {
		if w == ready {
			pl.waiters = append(pl.waiters[:i], pl.waiters[i+1:]...)
			l.mu.Unlock()
			return
		}
	}

	l.mu.Unlock()

	// Not in the queue means the hand-off already happened and this
	// waiter owns the lock; pass it along.
	<-ready
	l.release(path)
}

func (l *Locker) release(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.paths[path]
	if !ok {
		return
	}

	if len(pl.waiters) > 0 {
		next := pl.waiters[0]
		pl.waiters = pl.waiters[1:]
		close(next)
		return
	}

	delete(l.paths, path)
}

func (l *Locker) IsLocked(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.paths[path]
	return ok && pl.held
}

func (l *Locker) WaitingCount(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	pl, ok := l.paths[path]
	if !ok {
		return 0
	}
	return len(pl.waiters)
}

func (l *Locker) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{
		LockedFiles:  make([]string, 0, len(l.paths)),
		QueuesByFile: make(map[string]int, len(l.paths)),
	}

	for path, pl := range l.paths {
		if pl.held {
			stats.ActiveLocks++
			stats.LockedFiles = append(stats.LockedFiles, path)
		}
		stats.WaitingOperations += len(pl.waiters)
		stats.QueuesByFile[path] = len(pl.waiters)
	}

	return stats
}
