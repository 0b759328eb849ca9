package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	topProductsWindow = 7 * 24 * time.Hour
	topProductsLimit  = 5
	queryTimeout      = 3 * time.Second
)

// Cache is the versioned read-through cache holding summaries.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Service assembles the dashboard summary.
type Service struct {
	repo   Repository
	cache  Cache
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
	loc    *time.Location
}

// NewService builds Service. Day boundaries are computed in loc.
func NewService(repo Repository, cache Cache, logger *slog.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now, loc: loc}
}

// Summary returns the cached summary for the current day, building it once
// across concurrent callers when missing.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	now := s.now().In(s.loc)
	day := now.Format(time.DateOnly)

	var key string
	if s.cache != nil {
		var err error
		key, err = s.cache.BuildKey(ctx, "summary", day)
		if err != nil {
			s.logger.Warn("dashboard cache key", slog.Any("error", err))
			key = ""
		}
	}
	flightKey := key
	if flightKey == "" {
		flightKey = "summary:" + day
	}

	res := s.group.DoChan(flightKey, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queryTimeout)
		defer cancel()
		if key == "" {
			return s.build(buildCtx, now)
		}
		var sum Summary
		err := s.cache.FetchJSON(buildCtx, key, &sum, func(ctx context.Context) (any, error) {
			return s.build(ctx, now)
		})
		return sum, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case r := <-res:
		if r.Err != nil {
			return Summary{}, fmt.Errorf("dashboard: summary: %w", r.Err)
		}
		return r.Val.(Summary), nil
	}
}

func (s *Service) build(ctx context.Context, now time.Time) (Summary, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)

	sum := Summary{GeneratedAt: now.UTC()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := s.repo.SalesTotals(ctx, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("today totals: %w", err)
		}
		sum.Today = p
		return nil
	})
	g.Go(func() error {
		p, err := s.repo.SalesTotals(ctx, monthStart, dayEnd)
		if err != nil {
			return fmt.Errorf("month totals: %w", err)
		}
		sum.Month = p
		return nil
	})
	g.Go(func() error {
		methods, err := s.repo.SalesByMethod(ctx, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("sales by method: %w", err)
		}
		if methods == nil {
			methods = []MethodTotal{}
		}
		sum.TodayByMethod = methods
		return nil
	})
	g.Go(func() error {
		outstanding, pending, err := s.repo.LayawayExposure(ctx)
		if err != nil {
			return fmt.Errorf("layaway exposure: %w", err)
		}
		sum.OutstandingLayaway, sum.PendingLayaways = outstanding, pending
		return nil
	})
	g.Go(func() error {
		low, out, err := s.repo.StockAlerts(ctx)
		if err != nil {
			return fmt.Errorf("stock alerts: %w", err)
		}
		sum.LowStock, sum.OutOfStock = low, out
		return nil
	})
	g.Go(func() error {
		top, err := s.repo.TopProducts(ctx, now.Add(-topProductsWindow), topProductsLimit)
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		if top == nil {
			top = []TopProduct{}
		}
		sum.TopProducts = top
		return nil
	})

	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}
