package memstore

import (
	"context"
	"sync"

	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.JobEvents = (*Events)(nil)

// Events is an in-process JobEvents broker. Slow subscribers lose events
// rather than block publishers; each event only means "re-read".
type Events struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan string
}

func NewEvents() *Events {
	return &Events{subs: make(map[string]map[int]chan string)}
}

func (e *Events) Publish(ctx context.Context, ownerID, jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs[ownerID] {
		select {
		case ch <- jobID:
		default:
		}
	}
	return nil
}

func (e *Events) Subscribe(ctx context.Context, ownerID string) (<-chan string, func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	ch := make(chan string, 16)
	if e.subs[ownerID] == nil {
		e.subs[ownerID] = make(map[int]chan string)
	}
	e.subs[ownerID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs[ownerID], id)
			if len(e.subs[ownerID]) == 0 {
				delete(e.subs, ownerID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
