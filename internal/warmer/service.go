package warmer

import (
	"context"
	"fmt"
	"time"

	"github.com/veloxcart/catalog-cache/pkg/logger"
)

const defaultInterval = time.Hour

// CacheWarmer is the slice of the cache facade the warmer drives.
type CacheWarmer interface {
	WarmUpCacheTable(ctx context.Context) error
}

// Params configure the warmer service.
type Params struct {
	Logger   *logger.Logger
	Cache    CacheWarmer
	Lock     Lock
	Interval time.Duration
}

// Service rebuilds the cache on a fixed cadence, holding the
// distributed lock so only one deployment builds at a time.
type Service struct {
	logg     *logger.Logger
	cache    CacheWarmer
	lock     Lock
	interval time.Duration
}

// NewService builds a warmer service.
func NewService(params Params) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cache service required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		cache:    params.Cache,
		lock:     params.Lock,
		interval: interval,
	}, nil
}

// Run starts the warm loop until the context is canceled. The first
// cycle runs immediately.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled warm-up failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "warmer context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled warm-up failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another instance is warming; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release warm lock", relErr)
		}
	}()

	s.logg.Info(ctx, "scheduled warm-up starting")
	start := time.Now()
	if err := s.cache.WarmUpCacheTable(ctx); err != nil {
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "duration_ms", time.Since(start).Milliseconds()), "scheduled warm-up complete")
	return nil
}
