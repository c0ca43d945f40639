// Package registry holds the three persisted entity types and the catalog
// queries the timer and the API need beyond plain CRUD. The storage backend
// (relational or file-per-record) is chosen once at construction; callers
// only ever see this interface and the storage error taxonomy.
package registry

import (
	"context"

	"github.com/swexcamp/adventd/internal/storage"
)

type Registry interface {
	Agents() storage.Store[Agent]
	Tasks() storage.Store[Task]
	Completions() storage.Store[Completion]

	// TasksForAgent returns every task with the agent's completion status,
	// sorted ascending by task id. Tasks the agent never completed appear
	// with Completed=false.
	TasksForAgent(ctx context.Context, agentID string) ([]TaskStatus, error)

	// CompletionForPair returns the single completion record for the
	// (task, agent) pair, or found=false if the pair was never opened.
	CompletionForPair(ctx context.Context, taskID, agentID string) (id string, c Completion, found bool, err error)

	// Leaderboard ranks agents by completed-task count, then total best time.
	Leaderboard(ctx context.Context) ([]LeaderboardEntry, error)
}
