package registry

import (
	"fmt"
	"time"
)

// Agent is a registered contestant. Token is a second identifier minted at
// creation; it is the agent's bearer secret and never appears in any
// agent-visible response after creation.
type Agent struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// Task is a puzzle published by an administrator. Solution is the accepted
// canonical answer and is stripped from every response agents can see.
type Task struct {
	Name     string   `json:"name"`
	Kind     TaskKind `json:"kind"`
	Solution string   `json:"solution"`
}

// SimpleTask is a plain puzzle with just a description.
type SimpleTask struct {
	Description string `json:"description" validate:"max=32768"`
}

// AdventOfCodePartOne carries the puzzle text plus the agent's personal input.
type AdventOfCodePartOne struct {
	Description string `json:"description" validate:"max=32768"`
	Input       string `json:"input" validate:"max=65536"`
}

// AdventOfCodePartTwo is the follow-up puzzle over the same input.
type AdventOfCodePartTwo struct {
	Description string `json:"description" validate:"max=32768"`
	Input       string `json:"input" validate:"max=65536"`
}

// TaskKind is the closed variant set of task shapes. Exactly one field is
// non-nil. The JSON encoding is externally tagged
// ({"SimpleTask":{"description":"..."}}) to match existing bot clients.
type TaskKind struct {
	SimpleTask          *SimpleTask          `json:"SimpleTask,omitempty"`
	AdventOfCodePartOne *AdventOfCodePartOne `json:"AdventOfCodePartOne,omitempty"`
	AdventOfCodePartTwo *AdventOfCodePartTwo `json:"AdventOfCodePartTwo,omitempty"`
}

// Validate checks that exactly one variant is set.
func (k TaskKind) Validate() error {
	n := 0
	if k.SimpleTask != nil {
		n++
	}
	if k.AdventOfCodePartOne != nil {
		n++
	}
	if k.AdventOfCodePartTwo != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("task kind must have exactly one variant, got %d", n)
	}
	return nil
}

// Completion tracks one (task, agent) attempt. At most one exists per pair;
// reopening mutates it in place. BestTimeMS is the minimum elapsed time over
// all correct submissions and survives restarts.
type Completion struct {
	TaskID         string     `json:"task_id"`
	AgentID        string     `json:"agent_id"`
	StartTime      time.Time  `json:"start_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
	BestTimeMS     *int64     `json:"best_time_in_ms,omitempty"`
}

// TaskStatus is one row of the tasks-for-agent query.
type TaskStatus struct {
	ID          string
	Name        string
	Completed   bool
	CompletedAt *time.Time
}

// LeaderboardEntry aggregates an agent's completed tasks and summed best
// times. Ranking is most completions first, then lowest total time.
type LeaderboardEntry struct {
	AgentID         string
	AgentName       string
	Completed       int
	TotalBestTimeMS int64
}
