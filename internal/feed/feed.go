// Package feed broadcasts domain events (agent registered, task opened,
// task completed) to live subscribers. Events are ephemeral; the durable
// state is the completion record itself.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/swexcamp/adventd/internal/idgen"
)

const (
	KindAgentRegistered = "agent_registered"
	KindTaskOpened      = "task_opened"
	KindTaskCompleted   = "task_completed"
)

type Event struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	AgentID    string    `json:"agent_id,omitempty"`
	AgentName  string    `json:"agent_name,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	TaskName   string    `json:"task_name,omitempty"`
	BestTimeMS *int64    `json:"best_time_in_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

type subscriber struct {
	ch chan Event
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[string]*subscriber{}}
}

// Publish stamps the event with a ULID and delivers it to every subscriber.
// Slow subscribers are skipped, never blocked on.
func (b *Broadcaster) Publish(event Event) Event {
	event.ID = idgen.NewEventID()
	event.CreatedAt = time.Now().UTC()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return event
}

// Subscribe returns a channel of events delivered until ctx is done. The
// channel is closed on unsubscribe.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan Event {
	sub := &subscriber{ch: make(chan Event, 64)}
	key := idgen.NewEventID()

	b.mu.Lock()
	b.subs[key] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, key)
		b.mu.Unlock()
		close(sub.ch)
	}()

	return sub.ch
}
