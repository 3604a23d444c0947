package question

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// PoolCache defines cache behavior (implemented by Redis-backed Cache).
type PoolCache interface {
	Get(ctx context.Context, moduleID string) (*Pool, error)
	Set(ctx context.Context, moduleID string, pool Pool) error
}

// Source reads modules and their questions from durable storage.
type Source interface {
	GetModule(ctx context.Context, moduleID string) (Module, error)
	ListByModule(ctx context.Context, moduleID string) ([]Question, error)
}

// Service resolves the full question pool of a module, cache first.
type Service struct {
	source Source
	cache  PoolCache
	logger zerolog.Logger
}

// NewService wires a pool loader. cache may be nil.
func NewService(source Source, cache PoolCache, logger zerolog.Logger) *Service {
	return &Service{
		source: source,
		cache:  cache,
		logger: logger.With().Str("component", "question_service").Logger(),
	}
}

// LoadPool returns the module and every question it owns, or ErrEmptyPool.
func (s *Service) LoadPool(ctx context.Context, moduleID string) (Pool, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, moduleID)
		if err != nil {
			s.logger.Warn().Err(err).Str("module_id", moduleID).Msg("pool cache read failed")
		} else if cached != nil && len(cached.Questions) > 0 {
			return *cached, nil
		}
	}

	module, err := s.source.GetModule(ctx, moduleID)
	if err != nil {
		return Pool{}, fmt.Errorf("get module %s: %w", moduleID, err)
	}
	questions, err := s.source.ListByModule(ctx, moduleID)
	if err != nil {
		return Pool{}, fmt.Errorf("list questions for %s: %w", moduleID, err)
	}
	if len(questions) == 0 {
		return Pool{}, fmt.Errorf("module %s: %w", moduleID, ErrEmptyPool)
	}

	pool := Pool{Module: module, Questions: questions}
	if s.cache != nil {
		if err := s.cache.Set(ctx, moduleID, pool); err != nil {
			s.logger.Warn().Err(err).Str("module_id", moduleID).Msg("pool cache write failed")
		}
	}
	return pool, nil
}
