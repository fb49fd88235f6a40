package redis

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"agentic-workflow/internal/domain/ports/repository"
)

var _ repository.JobEvents = (*JobEvents)(nil)

// JobEvents carries job-change notifications between the worker and API
// processes over Redis pub/sub. Payloads are job ids.
type JobEvents struct {
	client RedisClient
	log    *zerolog.Logger
}

func NewJobEvents(client RedisClient, logger *zerolog.Logger) *JobEvents {
	l := logger.With().Str("component", "redis.JobEvents").Logger()
	return &JobEvents{client: client, log: &l}
}

func jobEventsChannel(ownerID string) string { return "job-events:" + ownerID }

func (e *JobEvents) Publish(ctx context.Context, ownerID, jobID string) error {
	return e.client.Publish(ctx, jobEventsChannel(ownerID), jobID)
}

func (e *JobEvents) Subscribe(ctx context.Context, ownerID string) (<-chan string, func(), error) {
	msgs, closeFn, err := e.client.Subscribe(ctx, jobEventsChannel(ownerID))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- m.Payload:
				default:
					// subscriber is behind; it re-reads the full list anyway
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := closeFn(); err != nil {
				e.log.Debug().Err(err).Str("owner_id", ownerID).Msg("close subscription")
			}
		})
	}
	return out, cancel, nil
}
