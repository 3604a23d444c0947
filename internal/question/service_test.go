package question

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	mu        sync.Mutex
	module    Module
	questions []Question
	moduleErr error
	listErr   error
	calls     int
}

func (s *stubSource) GetModule(_ context.Context, moduleID string) (Module, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.moduleErr != nil {
		return Module{}, s.moduleErr
	}
	m := s.module
	m.ID = moduleID
	return m, nil
}

func (s *stubSource) ListByModule(_ context.Context, _ string) ([]Question, error) {
	return s.questions, s.listErr
}

func (s *stubSource) loads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memoryCache struct {
	mu     sync.Mutex
	store  map[string]Pool
	getErr error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{store: map[string]Pool{}}
}

func (c *memoryCache) Get(_ context.Context, moduleID string) (*Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	if val, ok := c.store[moduleID]; ok {
		return &val, nil
	}
	return nil, nil
}

func (c *memoryCache) Set(_ context.Context, moduleID string, pool Pool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[moduleID] = pool
	return nil
}

func (c *memoryCache) snapshot() map[string]Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Pool, len(c.store))
	for k, v := range c.store {
		out[k] = v
	}
	return out
}

func TestLoadPoolUsesCache(t *testing.T) {
	source := &stubSource{module: Module{Title: "Networking"}, questions: buildPool(2, 1, 1, 0)}
	cache := newMemoryCache()
	svc := NewService(source, cache, zerolog.Nop())

	pool, err := svc.LoadPool(context.Background(), "mod-1")
	require.NoError(t, err)
	assert.Equal(t, "Networking", pool.Module.Title)
	assert.Len(t, pool.Questions, 4)

	_, err = svc.LoadPool(context.Background(), "mod-1")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "second load should be served from cache")
	assert.Len(t, cache.store, 1)
}

func TestLoadPoolEmptyModule(t *testing.T) {
	svc := NewService(&stubSource{module: Module{Title: "Empty"}}, nil, zerolog.Nop())

	_, err := svc.LoadPool(context.Background(), "mod-empty")
	assert.True(t, errors.Is(err, ErrEmptyPool))
}

func TestLoadPoolFallsThroughCacheErrors(t *testing.T) {
	source := &stubSource{questions: buildPool(1, 0, 0, 0)}
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	svc := NewService(source, cache, zerolog.Nop())

	pool, err := svc.LoadPool(context.Background(), "mod-2")
	require.NoError(t, err)
	assert.Len(t, pool.Questions, 1)
}

func TestLoadPoolPropagatesSourceErrors(t *testing.T) {
	boom := errors.New("db down")
	svc := NewService(&stubSource{moduleErr: boom}, nil, zerolog.Nop())

	_, err := svc.LoadPool(context.Background(), "mod-3")
	assert.ErrorIs(t, err, boom)
}
