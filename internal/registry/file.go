package registry

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/swexcamp/adventd/internal/storage"
)

type fileRegistry struct {
	agents      *storage.FileStore[Agent]
	tasks       *storage.FileStore[Task]
	completions *storage.FileStore[Completion]
}

// NewFileRegistry builds the file-per-record registry under root, with one
// subdirectory per entity type. Directories are created lazily on first
// write. The catalog queries are directory scans; fine at hackathon scale.
func NewFileRegistry(root string) Registry {
	return &fileRegistry{
		agents:      storage.NewFileStore[Agent](filepath.Join(root, "agent")),
		tasks:       storage.NewFileStore[Task](filepath.Join(root, "task")),
		completions: storage.NewFileStore[Completion](filepath.Join(root, "completion")),
	}
}

func (r *fileRegistry) Agents() storage.Store[Agent]           { return r.agents }
func (r *fileRegistry) Tasks() storage.Store[Task]             { return r.tasks }
func (r *fileRegistry) Completions() storage.Store[Completion] { return r.completions }

func (r *fileRegistry) TasksForAgent(ctx context.Context, agentID string) ([]TaskStatus, error) {
	tasks, err := r.tasks.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	completions, err := r.completions.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	completedAt := make(map[string]*Completion)
	for _, rec := range completions {
		c := rec.Value
		if c.AgentID == agentID && c.CompletionTime != nil {
			completedAt[c.TaskID] = &c
		}
	}

	storage.SortByID(tasks)
	out := make([]TaskStatus, 0, len(tasks))
	for _, rec := range tasks {
		status := TaskStatus{ID: rec.ID, Name: rec.Value.Name}
		if c, ok := completedAt[rec.ID]; ok {
			status.Completed = true
			status.CompletedAt = c.CompletionTime
		}
		out = append(out, status)
	}
	return out, nil
}

func (r *fileRegistry) CompletionForPair(ctx context.Context, taskID, agentID string) (string, Completion, bool, error) {
	completions, err := r.completions.ReadAll(ctx)
	if err != nil {
		return "", Completion{}, false, err
	}
	for _, rec := range completions {
		if rec.Value.TaskID == taskID && rec.Value.AgentID == agentID {
			return rec.ID, rec.Value, true, nil
		}
	}
	return "", Completion{}, false, nil
}

func (r *fileRegistry) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	agents, err := r.agents.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	completions, err := r.completions.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	byAgent := make(map[string]*LeaderboardEntry)
	storage.SortByID(agents)
	out := make([]LeaderboardEntry, 0, len(agents))
	for _, rec := range agents {
		out = append(out, LeaderboardEntry{AgentID: rec.ID, AgentName: rec.Value.Name})
	}
	for i := range out {
		byAgent[out[i].AgentID] = &out[i]
	}
	for _, rec := range completions {
		c := rec.Value
		if c.CompletionTime == nil {
			continue
		}
		entry, ok := byAgent[c.AgentID]
		if !ok {
			// orphaned completion, its agent was deleted
			continue
		}
		entry.Completed++
		if c.BestTimeMS != nil {
			entry.TotalBestTimeMS += *c.BestTimeMS
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return out[i].Completed > out[j].Completed
		}
		if out[i].TotalBestTimeMS != out[j].TotalBestTimeMS {
			return out[i].TotalBestTimeMS < out[j].TotalBestTimeMS
		}
		return out[i].AgentID < out[j].AgentID
	})
	return out, nil
}
