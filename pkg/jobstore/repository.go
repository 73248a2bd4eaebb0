// Package jobstore reads RQ job records and registry pages.
//
// The Repository is stateless: every call re-reads Redis through an
// rqstore.Accessor. Undecodable fields never fail a read; they are tagged
// corrupt on the returned record and reported with rq.ErrDataCorruption.
package jobstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/rqlens/pkg/rq"
	"github.com/3leaps/rqlens/pkg/rqstore"
)

// DefaultTruncate is the display length of function references and args in
// job summaries.
const DefaultTruncate = 80

// Repository decodes job records and pages through registries.
type Repository struct {
	store    rqstore.Accessor
	keys     rq.Keyspace
	logger   *zap.Logger
	truncate int
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger used for degraded reads.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTruncate sets the summary display length. Zero disables truncation.
func WithTruncate(n int) Option {
	return func(r *Repository) {
		if n >= 0 {
			r.truncate = n
		}
	}
}

// New creates a Repository over store.
func New(store rqstore.Accessor, keys rq.Keyspace, opts ...Option) *Repository {
	r := &Repository{
		store:    store,
		keys:     keys,
		logger:   zap.NewNop(),
		truncate: DefaultTruncate,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Keys returns the keyspace the repository reads.
func (r *Repository) Keys() rq.Keyspace {
	return r.keys
}

// Store returns the underlying accessor.
func (r *Repository) Store() rqstore.Accessor {
	return r.store
}

// GetJob reads and decodes one job record.
//
// It returns an rq.ErrNotFound error when the record does not exist. When
// some fields cannot be decoded the detail is still returned, marked corrupt,
// together with an error matching rq.ErrDataCorruption.
func (r *Repository) GetJob(ctx context.Context, id string) (*rq.JobDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, rq.Wrap("get job", "", fmt.Errorf("%w: job id is required", rq.ErrInvalidArgument))
	}

	fields, err := r.store.HashGetAll(ctx, r.keys.JobKey(id))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, rq.Wrap("get job", id, rq.ErrNotFound)
	}

	detail := decodeDetail(id, fields)

	if needsResultStream(detail, fields) {
		entry, ok, err := r.store.LatestStreamEntry(ctx, r.keys.ResultsKey(id))
		if err != nil {
			return nil, err
		}
		if ok {
			applyResultEntry(detail, entry)
		}
	}

	if detail.Corrupt {
		r.logger.Debug("job record has undecodable fields",
			zap.String("job_id", id),
			zap.Strings("fields", detail.CorruptFields),
		)
		return detail, rq.Wrap("get job", id,
			fmt.Errorf("%w: undecodable fields: %s", rq.ErrDataCorruption, strings.Join(detail.CorruptFields, ", ")))
	}
	return detail, nil
}

// ListRegistryPage returns one page of ids from a queue's registry plus the
// registry's total size, read in a single round trip.
//
// Page and pageSize are clamped to at least 1. A page past the end returns
// no ids and the true total.
func (r *Repository) ListRegistryPage(ctx context.Context, queue string, status rq.Status, page, pageSize int) ([]string, int64, error) {
	col, ok := r.keys.Registry(queue, status)
	if !ok {
		return nil, 0, rq.Wrap("list registry", queue, fmt.Errorf("%w: no registry for state %q", rq.ErrInvalidArgument, status))
	}
	page, pageSize = ClampPage(page, pageSize)

	start := int64(page-1) * int64(pageSize)
	ids, total, err := r.store.RangeWithCount(ctx, col, start, start+int64(pageSize)-1)
	if err != nil {
		return nil, 0, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, total, nil
}

// ClampPage raises page and pageSize to at least 1.
func ClampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	return page, pageSize
}
