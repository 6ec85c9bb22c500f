// Package analysis computes dashboard statistics over complaints and users.
package analysis

import (
	"context"
	"fmt"
	"time"

	"civicdesk/backend/internal/config"
	"civicdesk/backend/internal/models"
	"civicdesk/backend/internal/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const statsCacheKey = "dashboard:stats"

// Cache stores computed stats. RedisService implements it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
}

// Stats is the dashboard summary.
type Stats struct {
	TotalComplaints  int64                     `json:"totalComplaints"`
	ByStatus         map[models.Status]int64   `json:"byStatus"`
	ByCategory       map[models.Category]int64 `json:"byCategory"`
	UsersByRole      map[models.Role]int64     `json:"usersByRole"`
	RecentComplaints []models.Complaint        `json:"recentComplaints"`
	// ResolutionRate is the resolved share of all complaints.
	ResolutionRate float64   `json:"resolutionRate"`
	GeneratedAt    time.Time `json:"generatedAt"`
}

// Service computes Stats, optionally through a cache.
type Service struct {
	store  storage.Storage
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewService builds the stats service. cache may be nil.
func NewService(store storage.Storage, cache Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cache: cache, ttl: config.StatsCacheTTL, logger: logger, now: time.Now}
}

// Dashboard returns the current stats, served from the cache while fresh.
func (s *Service) Dashboard(ctx context.Context) (*Stats, error) {
	if s.cache != nil {
		var cached Stats
		hit, err := s.cache.GetJSON(ctx, statsCacheKey, &cached)
		if err != nil {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
		if hit {
			return &cached, nil
		}
	}

	stats, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, statsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *Service) compute(ctx context.Context) (*Stats, error) {
	stats := &Stats{GeneratedAt: s.now()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.ByStatus, err = s.store.CountComplaintsByStatus(ctx)
		return wrap("count by status", err)
	})
	g.Go(func() (err error) {
		stats.ByCategory, err = s.store.CountComplaintsByCategory(ctx)
		return wrap("count by category", err)
	})
	g.Go(func() (err error) {
		stats.UsersByRole, err = s.store.CountUsersByRole(ctx)
		return wrap("count users", err)
	})
	g.Go(func() (err error) {
		stats.RecentComplaints, _, err = s.store.ListComplaints(ctx, storage.ComplaintFilter{Limit: config.RecentComplaints})
		return wrap("recent complaints", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, n := range stats.ByStatus {
		stats.TotalComplaints += n
	}
	if stats.TotalComplaints > 0 {
		stats.ResolutionRate = float64(stats.ByStatus[models.StatusResolved]) / float64(stats.TotalComplaints)
	}
	return stats, nil
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
