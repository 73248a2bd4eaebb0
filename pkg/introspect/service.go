// Package introspect answers operational questions about an RQ deployment
// (queue depths, job listings and details, worker activity) and deletes jobs.
//
// Every call re-reads Redis; nothing is cached. Each call runs under the
// configured request timeout, and store failures surface as
// rq.ErrServiceUnavailable with no partial result.
package introspect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/rqlens/pkg/jobstore"
	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/pkg/rqstore"
)

// Defaults applied by DefaultConfig and by NewService for zero values.
const (
	DefaultRequestTimeout    = 5 * time.Second
	DefaultPageSize          = 10
	DefaultStaleAfter        = 420 * time.Second
	DefaultDeleteConcurrency = 8
)

// Config tunes a Service.
type Config struct {
	// RequestTimeout bounds every call. Zero disables the bound.
	RequestTimeout time.Duration

	// PageSize is used when a listing does not ask for one.
	PageSize int

	// StaleAfter is the heartbeat age past which a worker is reported as
	// possibly dead.
	StaleAfter time.Duration

	// DiscoveryScan adds queues found by scanning registry keys to the
	// known-queue set.
	DiscoveryScan bool

	// StaticQueues are always treated as known.
	StaticQueues []string

	// DeleteConcurrency bounds parallel job deletes during a queue purge.
	DeleteConcurrency int

	// DeleteRate limits job deletes per second during a queue purge. Zero
	// means unlimited.
	DeleteRate float64
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:    DefaultRequestTimeout,
		PageSize:          DefaultPageSize,
		StaleAfter:        DefaultStaleAfter,
		DeleteConcurrency: DefaultDeleteConcurrency,
	}
}

// Service is the façade over the stats aggregator, job lister, job and queue
// deleters and worker reporter. It is safe for concurrent use.
type Service struct {
	repo   *jobstore.Repository
	store  rqstore.Accessor
	keys   rq.Keyspace
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a Service reading through repo.
func NewService(repo *jobstore.Repository, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.DeleteConcurrency <= 0 {
		cfg.DeleteConcurrency = DefaultDeleteConcurrency
	}
	return &Service{
		repo:   repo,
		store:  repo.Store(),
		keys:   repo.Keys(),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Ping checks that Redis is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.Ping(ctx)
}

// GetJob returns the decoded record of one job. See jobstore.Repository.GetJob
// for the corruption contract.
func (s *Service) GetJob(ctx context.Context, id string) (*rq.JobDetail, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.GetJob(ctx, id)
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// ctxErr reports a canceled or expired request as unavailable.
func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return rq.Wrap(op, "", fmt.Errorf("%w: %w", rq.ErrServiceUnavailable, err))
	}
	return nil
}

func invalid(op, key, format string, args ...any) error {
	return rq.Wrap(op, key, fmt.Errorf("%w: "+format, append([]any{rq.ErrInvalidArgument}, args...)...))
}
