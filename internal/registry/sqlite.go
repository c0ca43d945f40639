package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/swexcamp/adventd/internal/storage"
)

// SchemaSQL is idempotent and runs on every start via storage.Open.
// Identifier columns hold the 36-char canonical text form. The task kind is
// stored pre-serialized; the persistence engine never inspects it.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS agent (
  id TEXT PRIMARY KEY,
  token TEXT NOT NULL,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  kind_json TEXT NOT NULL,
  solution TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS completion (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  agent_id TEXT NOT NULL,
  start_time TEXT NOT NULL,
  completion_time TEXT,
  best_time_in_ms INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_completion_pair ON completion(task_id, agent_id);
`

var agentTable = storage.Table[Agent]{
	Name:    "agent",
	Columns: []string{"token", "name"},
	Encode: func(a Agent) ([]any, error) {
		return []any{a.Token, a.Name}, nil
	},
	Decode: func(row storage.Scanner) (Agent, error) {
		var a Agent
		if err := row.Scan(&a.Token, &a.Name); err != nil {
			return Agent{}, err
		}
		return a, nil
	},
}

var taskTable = storage.Table[Task]{
	Name:    "task",
	Columns: []string{"name", "kind_json", "solution"},
	Encode: func(t Task) ([]any, error) {
		kindJSON, err := json.Marshal(t.Kind)
		if err != nil {
			return nil, err
		}
		return []any{t.Name, string(kindJSON), t.Solution}, nil
	},
	Decode: func(row storage.Scanner) (Task, error) {
		var t Task
		var kindJSON string
		if err := row.Scan(&t.Name, &kindJSON, &t.Solution); err != nil {
			return Task{}, err
		}
		if err := json.Unmarshal([]byte(kindJSON), &t.Kind); err != nil {
			return Task{}, err
		}
		return t, nil
	},
}

var completionTable = storage.Table[Completion]{
	Name:    "completion",
	Columns: []string{"task_id", "agent_id", "start_time", "completion_time", "best_time_in_ms"},
	Encode: func(c Completion) ([]any, error) {
		var completedAt any
		if c.CompletionTime != nil {
			completedAt = c.CompletionTime.UTC().Format(time.RFC3339Nano)
		}
		var best any
		if c.BestTimeMS != nil {
			best = *c.BestTimeMS
		}
		return []any{c.TaskID, c.AgentID, c.StartTime.UTC().Format(time.RFC3339Nano), completedAt, best}, nil
	},
	Decode: func(row storage.Scanner) (Completion, error) {
		var c Completion
		var startStr string
		var completedStr sql.NullString
		var best sql.NullInt64
		if err := row.Scan(&c.TaskID, &c.AgentID, &startStr, &completedStr, &best); err != nil {
			return Completion{}, err
		}
		start, err := time.Parse(time.RFC3339Nano, startStr)
		if err != nil {
			return Completion{}, fmt.Errorf("parse start_time: %w", err)
		}
		c.StartTime = start
		if completedStr.Valid {
			completedAt, err := time.Parse(time.RFC3339Nano, completedStr.String)
			if err != nil {
				return Completion{}, fmt.Errorf("parse completion_time: %w", err)
			}
			c.CompletionTime = &completedAt
		}
		if best.Valid {
			v := best.Int64
			c.BestTimeMS = &v
		}
		return c, nil
	},
}

type sqlRegistry struct {
	db          *sql.DB
	agents      *storage.SQLStore[Agent]
	tasks       *storage.SQLStore[Task]
	completions *storage.SQLStore[Completion]
}

// NewSQLRegistry builds the relational registry over an already-opened,
// already-migrated database handle.
func NewSQLRegistry(db *sql.DB) Registry {
	return &sqlRegistry{
		db:          db,
		agents:      storage.NewSQLStore(db, agentTable),
		tasks:       storage.NewSQLStore(db, taskTable),
		completions: storage.NewSQLStore(db, completionTable),
	}
}

func (r *sqlRegistry) Agents() storage.Store[Agent]           { return r.agents }
func (r *sqlRegistry) Tasks() storage.Store[Task]             { return r.tasks }
func (r *sqlRegistry) Completions() storage.Store[Completion] { return r.completions }

func (r *sqlRegistry) TasksForAgent(ctx context.Context, agentID string) ([]TaskStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task.id, task.name, completion.completion_time
		FROM task
		LEFT JOIN completion
		  ON task.id = completion.task_id
		 AND completion.agent_id = ?
		 AND completion.completion_time IS NOT NULL
		ORDER BY task.id ASC
	`, agentID)
	if err != nil {
		return nil, fmt.Errorf("tasks for agent: %w: %v", storage.ErrIO, err)
	}
	defer rows.Close()

	var out []TaskStatus
	for rows.Next() {
		var status TaskStatus
		var completedStr sql.NullString
		if err := rows.Scan(&status.ID, &status.Name, &completedStr); err != nil {
			return nil, fmt.Errorf("scan task status: %w: %v", storage.ErrSerialization, err)
		}
		if completedStr.Valid {
			completedAt, err := time.Parse(time.RFC3339Nano, completedStr.String)
			if err != nil {
				return nil, fmt.Errorf("parse completion_time: %w: %v", storage.ErrSerialization, err)
			}
			status.Completed = true
			status.CompletedAt = &completedAt
		}
		out = append(out, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task statuses: %w: %v", storage.ErrIO, err)
	}
	return out, nil
}

func (r *sqlRegistry) CompletionForPair(ctx context.Context, taskID, agentID string) (string, Completion, bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, agent_id, start_time, completion_time, best_time_in_ms
		FROM completion WHERE task_id = ? AND agent_id = ?
	`, taskID, agentID)
	if err != nil {
		return "", Completion{}, false, fmt.Errorf("completion for pair: %w: %v", storage.ErrIO, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", Completion{}, false, fmt.Errorf("completion for pair: %w: %v", storage.ErrIO, err)
		}
		return "", Completion{}, false, nil
	}
	var id string
	c, err := completionTable.Decode(prefixScanner{inner: rows, id: &id})
	if err != nil {
		return "", Completion{}, false, fmt.Errorf("decode completion: %w: %v", storage.ErrSerialization, err)
	}
	return id, c, true, nil
}

func (r *sqlRegistry) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT agent.id, agent.name,
		       COUNT(completion.id),
		       COALESCE(SUM(completion.best_time_in_ms), 0)
		FROM agent
		LEFT JOIN completion
		  ON completion.agent_id = agent.id
		 AND completion.completion_time IS NOT NULL
		GROUP BY agent.id, agent.name
		ORDER BY COUNT(completion.id) DESC, COALESCE(SUM(completion.best_time_in_ms), 0) ASC, agent.id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w: %v", storage.ErrIO, err)
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		var entry LeaderboardEntry
		if err := rows.Scan(&entry.AgentID, &entry.AgentName, &entry.Completed, &entry.TotalBestTimeMS); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w: %v", storage.ErrSerialization, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w: %v", storage.ErrIO, err)
	}
	return out, nil
}

// prefixScanner lets a decoder written for value columns also consume a
// leading id column.
type prefixScanner struct {
	inner storage.Scanner
	id    *string
}

func (s prefixScanner) Scan(dest ...any) error {
	return s.inner.Scan(append([]any{s.id}, dest...)...)
}
