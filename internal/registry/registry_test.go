package registry_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swexcamp/adventd/internal/registry"
	"github.com/swexcamp/adventd/internal/storage"
)

func openRegistries(t *testing.T) map[string]registry.Registry {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), registry.SchemaSQL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return map[string]registry.Registry{
		"sqlite": registry.NewSQLRegistry(db),
		"file":   registry.NewFileRegistry(t.TempDir()),
	}
}

func simpleTask(name, solution string) registry.Task {
	return registry.Task{
		Name:     name,
		Kind:     registry.TaskKind{SimpleTask: &registry.SimpleTask{Description: "d"}},
		Solution: solution,
	}
}

func TestAgentRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, reg := range openRegistries(t) {
		t.Run(name, func(t *testing.T) {
			id, err := reg.Agents().Create(ctx, registry.Agent{Token: "tok", Name: "A1"})
			require.NoError(t, err)

			got, err := reg.Agents().Read(ctx, id)
			require.NoError(t, err)
			require.Equal(t, "A1", got.Name)
			require.Equal(t, "tok", got.Token)
		})
	}
}

func TestTaskKindSurvivesStorage(t *testing.T) {
	ctx := context.Background()
	for name, reg := range openRegistries(t) {
		t.Run(name, func(t *testing.T) {
			task := registry.Task{
				Name: "day 1",
				Kind: registry.TaskKind{AdventOfCodePartOne: &registry.AdventOfCodePartOne{
					Description: "count the things",
					Input:       "1\n2\n3",
				}},
				Solution: "6",
			}
			id, err := reg.Tasks().Create(ctx, task)
			require.NoError(t, err)

			got, err := reg.Tasks().Read(ctx, id)
			require.NoError(t, err)
			require.Equal(t, task, got)
			require.NoError(t, got.Kind.Validate())
		})
	}
}

func TestTasksForAgent(t *testing.T) {
	ctx := context.Background()
	for name, reg := range openRegistries(t) {
		t.Run(name, func(t *testing.T) {
			agentID, err := reg.Agents().Create(ctx, registry.Agent{Token: "tok", Name: "A1"})
			require.NoError(t, err)
			doneID, err := reg.Tasks().Create(ctx, simpleTask("done", "x"))
			require.NoError(t, err)
			openID, err := reg.Tasks().Create(ctx, simpleTask("opened", "y"))
			require.NoError(t, err)
			freshID, err := reg.Tasks().Create(ctx, simpleTask("untouched", "z"))
			require.NoError(t, err)

			start := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
			completedAt := start.Add(1200 * time.Millisecond)
			best := int64(1200)
			_, err = reg.Completions().Create(ctx, registry.Completion{
				TaskID: doneID, AgentID: agentID, StartTime: start,
				CompletionTime: &completedAt, BestTimeMS: &best,
			})
			require.NoError(t, err)
			// opened but never solved: no completion_time, must not count
			_, err = reg.Completions().Create(ctx, registry.Completion{
				TaskID: openID, AgentID: agentID, StartTime: start,
			})
			require.NoError(t, err)

			statuses, err := reg.TasksForAgent(ctx, agentID)
			require.NoError(t, err)
			require.Len(t, statuses, 3)

			byID := map[string]registry.TaskStatus{}
			for _, s := range statuses {
				byID[s.ID] = s
			}
			require.True(t, byID[doneID].Completed)
			require.NotNil(t, byID[doneID].CompletedAt)
			require.True(t, byID[doneID].CompletedAt.Equal(completedAt))
			require.False(t, byID[openID].Completed)
			require.False(t, byID[freshID].Completed)

			// sorted ascending by task id (creation order)
			require.Equal(t, doneID, statuses[0].ID)
			require.Equal(t, openID, statuses[1].ID)
			require.Equal(t, freshID, statuses[2].ID)
		})
	}
}

func TestTasksForAgentIgnoresOtherAgents(t *testing.T) {
	ctx := context.Background()
	for name, reg := range openRegistries(t) {
		t.Run(name, func(t *testing.T) {
			a1, err := reg.Agents().Create(ctx, registry.Agent{Token: "t1", Name: "A1"})
			require.NoError(t, err)
			a2, err := reg.Agents().Create(ctx, registry.Agent{Token: "t2", Name: "A2"})
			require.NoError(t, err)
			taskID, err := reg.Tasks().Create(ctx, simpleTask("T", "x"))
			require.NoError(t, err)

			now := time.Now().UTC()
			_, err = reg.Completions().Create(ctx, registry.Completion{
				TaskID: taskID, AgentID: a2, StartTime: now.Add(-time.Second),
				CompletionTime: &now,
			})
			require.NoError(t, err)

			statuses, err := reg.TasksForAgent(ctx, a1)
			require.NoError(t, err)
			require.Len(t, statuses, 1)
			require.False(t, statuses[0].Completed)
		})
	}
}

func TestCompletionForPair(t *testing.T) {
	ctx := context.Background()
	for name, reg := range openRegistries(t) {
		t.Run(name, func(t *testing.T) {
			_, _, found, err := reg.CompletionForPair(ctx, "t", "a")
			require.NoError(t, err)
			require.False(t, found)

			start := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
			id, err := reg.Completions().Create(ctx, registry.Completion{
				TaskID: "t", AgentID: "a", StartTime: start,
			})
			require.NoError(t, err)

			gotID, got, found, err := reg.CompletionForPair(ctx, "t", "a")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, id, gotID)
			require.True(t, got.StartTime.Equal(start))
			require.Nil(t, got.CompletionTime)
			require.Nil(t, got.BestTimeMS)
		})
	}
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()
	for name, reg := range openRegistries(t) {
		t.Run(name, func(t *testing.T) {
			fast, err := reg.Agents().Create(ctx, registry.Agent{Token: "t1", Name: "fast"})
			require.NoError(t, err)
			slow, err := reg.Agents().Create(ctx, registry.Agent{Token: "t2", Name: "slow"})
			require.NoError(t, err)
			idle, err := reg.Agents().Create(ctx, registry.Agent{Token: "t3", Name: "idle"})
			require.NoError(t, err)
			taskID, err := reg.Tasks().Create(ctx, simpleTask("T", "x"))
			require.NoError(t, err)

			now := time.Now().UTC()
			for agentID, best := range map[string]int64{fast: 900, slow: 4500} {
				b := best
				_, err = reg.Completions().Create(ctx, registry.Completion{
					TaskID: taskID, AgentID: agentID,
					StartTime: now.Add(-time.Minute), CompletionTime: &now, BestTimeMS: &b,
				})
				require.NoError(t, err)
			}

			entries, err := reg.Leaderboard(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 3)
			require.Equal(t, "fast", entries[0].AgentName)
			require.Equal(t, int64(900), entries[0].TotalBestTimeMS)
			require.Equal(t, "slow", entries[1].AgentName)
			require.Equal(t, idle, entries[2].AgentID)
			require.Equal(t, 0, entries[2].Completed)
		})
	}
}

func TestTaskKindJSONIsExternallyTagged(t *testing.T) {
	kind := registry.TaskKind{AdventOfCodePartTwo: &registry.AdventOfCodePartTwo{
		Description: "again, but harder",
		Input:       "in",
	}}
	data, err := json.Marshal(kind)
	require.NoError(t, err)
	require.JSONEq(t, `{"AdventOfCodePartTwo":{"description":"again, but harder","input":"in"}}`, string(data))

	var decoded registry.TaskKind
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, kind, decoded)
}

func TestTaskKindValidate(t *testing.T) {
	require.Error(t, registry.TaskKind{}.Validate())
	require.Error(t, registry.TaskKind{
		SimpleTask:          &registry.SimpleTask{},
		AdventOfCodePartOne: &registry.AdventOfCodePartOne{},
	}.Validate())
	require.NoError(t, registry.TaskKind{SimpleTask: &registry.SimpleTask{Description: "d"}}.Validate())
}
