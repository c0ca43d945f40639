// Package timing implements the per-(task, agent) attempt state machine:
// NotStarted -> InProgress -> Completed, with restarts allowed. State lives
// in the pair's Completion record; this package owns every transition.
package timing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/swexcamp/adventd/internal/registry"
)

// ErrNotStarted is returned by Submit when the pair was never opened.
var ErrNotStarted = errors.New("task not started")

type Timer struct {
	reg   registry.Registry
	nowFn func() time.Time

	// read-modify-write of a pair's record runs under its own mutex so two
	// concurrent submits cannot lose a best-time update
	mu    sync.Mutex
	locks map[pairKey]*sync.Mutex
}

type pairKey struct {
	taskID  string
	agentID string
}

type Option func(*Timer)

func WithClock(nowFn func() time.Time) Option {
	return func(t *Timer) {
		if nowFn != nil {
			t.nowFn = nowFn
		}
	}
}

func NewTimer(reg registry.Registry, opts ...Option) *Timer {
	t := &Timer{
		reg:   reg,
		nowFn: time.Now,
		locks: map[pairKey]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open starts or restarts the attempt for the pair. The first call creates
// the pair's Completion; every later call resets start_time and clears
// completion_time in place, leaving the best time untouched. This is the
// only transition that moves a pair backward from Completed.
func (t *Timer) Open(ctx context.Context, taskID, agentID string) (registry.Completion, error) {
	defer t.lockPair(taskID, agentID)()

	now := t.nowFn().UTC()
	id, c, found, err := t.reg.CompletionForPair(ctx, taskID, agentID)
	if err != nil {
		return registry.Completion{}, err
	}
	if !found {
		c = registry.Completion{TaskID: taskID, AgentID: agentID, StartTime: now}
		if _, err := t.reg.Completions().Create(ctx, c); err != nil {
			return registry.Completion{}, err
		}
		return c, nil
	}

	c.StartTime = now
	c.CompletionTime = nil
	if err := t.reg.Completions().Update(ctx, id, c); err != nil {
		return registry.Completion{}, err
	}
	return c, nil
}

// Submit checks candidate against the canonical solution by exact string
// equality. A correct answer completes the attempt and lowers the best time
// if beaten; an incorrect one mutates nothing. Submitting again while
// already completed may keep improving the best time without a new Open.
func (t *Timer) Submit(ctx context.Context, taskID, agentID, candidate, canonical string) (bool, error) {
	defer t.lockPair(taskID, agentID)()

	id, c, found, err := t.reg.CompletionForPair(ctx, taskID, agentID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("task %s agent %s: %w", taskID, agentID, ErrNotStarted)
	}

	if candidate != canonical {
		return false, nil
	}

	now := t.nowFn().UTC()
	elapsed := now.Sub(c.StartTime).Milliseconds()
	if elapsed < 0 {
		// clock or logic fault, never clamp
		return false, fmt.Errorf("negative elapsed time for task %s agent %s: %dms", taskID, agentID, elapsed)
	}

	best := elapsed
	if c.BestTimeMS != nil && *c.BestTimeMS < best {
		best = *c.BestTimeMS
	}
	c.CompletionTime = &now
	c.BestTimeMS = &best
	if err := t.reg.Completions().Update(ctx, id, c); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Timer) lockPair(taskID, agentID string) func() {
	key := pairKey{taskID: taskID, agentID: agentID}
	t.mu.Lock()
	lock, ok := t.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[key] = lock
	}
	t.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
