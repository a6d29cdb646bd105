package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"vendepos/backend/internal/archive"
	"vendepos/backend/internal/cache"
	"vendepos/backend/internal/cart"
	"vendepos/backend/internal/config"
	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/stats"
	"vendepos/backend/internal/store"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("permission denied")
)

// ValidationError is a user-correctable rejection. Nothing was written.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError means the store could not be reached or refused a write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialStockUpdateError reports a sale that was recorded while some of its
// stock decrements failed. The sale is not rolled back.
type PartialStockUpdateError struct {
	SaleID string
	Failed []string
}

func (e *PartialStockUpdateError) Error() string {
	return fmt.Sprintf("sale %s recorded but stock update failed for %s", e.SaleID, strings.Join(e.Failed, ", "))
}

type principalContextKey struct{}

func WithPrincipal(ctx context.Context, principal domain.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(domain.Principal)
	return principal, ok
}

type Service struct {
	repo        store.Repository
	logger      *zap.Logger
	statsCache  cache.StatsCache
	archive     archive.ReceiptArchive
	carts       *cart.Registry
	stockPolicy string
	loc         *time.Location
	storeName   string
	lowStock    int
	statsTTL    time.Duration
	now         func() time.Time
	flight      singleflight.Group
	// statsGen is bumped on every invalidation. Report keys carry it so a
	// computation that started before a write cannot repopulate the cache.
	statsGen atomic.Uint64
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithStatsCache(c cache.StatsCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.statsCache = c
		}
		if ttl > 0 {
			s.statsTTL = ttl
		}
	}
}

func WithReceiptArchive(a archive.ReceiptArchive) Option {
	return func(s *Service) {
		if a != nil {
			s.archive = a
		}
	}
}

// WithStockPolicy selects how checkout applies stock decrements. Anything
// other than config.StockPolicyLegacy means atomic.
func WithStockPolicy(policy string) Option {
	return func(s *Service) {
		if policy == config.StockPolicyLegacy {
			s.stockPolicy = config.StockPolicyLegacy
		} else {
			s.stockPolicy = config.StockPolicyAtomic
		}
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithStoreName(name string) Option {
	return func(s *Service) {
		s.storeName = strings.TrimSpace(name)
	}
}

func WithLowStockThreshold(threshold int) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.lowStock = threshold
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		logger:      zap.NewNop(),
		statsCache:  cache.NoopStatsCache{},
		archive:     archive.NoopReceiptArchive{},
		carts:       cart.NewRegistry(),
		stockPolicy: config.StockPolicyAtomic,
		loc:         time.Local,
		lowStock:    stats.DefaultLowStockThreshold,
		statsTTL:    30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) StockPolicy() string {
	return s.stockPolicy
}

// authorize resolves the caller and checks the capability against its role.
func (s *Service) authorize(ctx context.Context, capability domain.Capability) (domain.Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.ID == "" {
		return domain.Principal{}, ErrUnauthenticated
	}
	if !principal.Role.Can(capability) {
		s.logger.Info("permission denied",
			zap.String("user", principal.Username),
			zap.String("role", string(principal.Role)),
			zap.Stringer("capability", capability),
		)
		return domain.Principal{}, fmt.Errorf("%w: %s", ErrForbidden, capability)
	}
	return principal, nil
}

// storeErr passes store sentinels through untouched so callers can match
// them, and wraps everything else as a PersistenceError.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInvalid):
		return err
	default:
		return &PersistenceError{Op: op, Err: err}
	}
}

// invalidateStats drops cached reports after anything that changes sales or
// inventory figures. Failures only cost freshness, so they are logged.
func (s *Service) invalidateStats(ctx context.Context) {
	s.statsGen.Add(1)
	if err := s.statsCache.Invalidate(ctx); err != nil {
		s.logger.Warn("statistics cache invalidation failed", zap.Error(err))
	}
}
