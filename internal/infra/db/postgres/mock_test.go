//go:build !integration

package postgres

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"agentic-workflow/internal/domain/model"
	"agentic-workflow/internal/domain/ports/repository"
	red "agentic-workflow/internal/infra/redis"
)

// mockInnerJobRepo mocks the database repository that the job decorator wraps.
type mockInnerJobRepo struct {
	repository.JobRepository
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id string) (*model.Job, error)
}

func (m *mockInnerJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return m.FindByIDFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	red.RedisClient
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", redis.Nil
	}
	return m.GetFunc(ctx, key)
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
