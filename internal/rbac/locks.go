package rbac

import (
	"context"
	"sync"
	"time"
)

// userLocks serializes mutations per target user. Mutations on different
// users proceed independently; reads never go through these locks.
type userLocks struct {
	mu   sync.Mutex
	sems map[int64]*userSem
}

type userSem struct {
	ch   chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{sems: make(map[int64]*userSem)}
}

// Acquire takes the lock for userID, waiting at most maxWait. It returns a
// release function on success and ErrConcurrencyConflict when the lock is
// still held after the bounded wait.
func (l *userLocks) Acquire(ctx context.Context, userID int64, maxWait time.Duration) (func(), error) {
	l.mu.Lock()
	sem, ok := l.sems[userID]
	if !ok {
		sem = &userSem{ch: make(chan struct{}, 1)}
		l.sems[userID] = sem
	}
	sem.refs++
	l.mu.Unlock()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case sem.ch <- struct{}{}:
		return func() {
			<-sem.ch
			l.release(userID, sem)
		}, nil
	case <-timer.C:
		l.release(userID, sem)
		return nil, ErrConcurrencyConflict
	case <-ctx.Done():
		l.release(userID, sem)
		return nil, ctx.Err()
	}
}

func (l *userLocks) release(userID int64, sem *userSem) {
	l.mu.Lock()
	sem.refs--
	if sem.refs == 0 {
		delete(l.sems, userID)
	}
	l.mu.Unlock()
}
