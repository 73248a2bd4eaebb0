// Package rqstore is the only path from the introspection layer to Redis.
//
// It exposes the handful of primitives the layer needs (hash reads, set
// members, cardinality, ranged reads, key scan, member removal, key delete,
// stream tail) and batches multi-key work into non-transactional pipelines.
// It holds no state beyond the pooled client.
package rqstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/3leaps/rqlens/pkg/rq"
)

// Accessor is the set of store primitives used by the repository and the
// introspection components.
type Accessor interface {
	Ping(ctx context.Context) error
	HashGetAll(ctx context.Context, key string) (map[string]string, error)
	HashGetAllMany(ctx context.Context, keys []string) ([]map[string]string, error)
	HashFieldMany(ctx context.Context, keys []string, field string) ([]string, error)
	SetMembers(ctx context.Context, key string) ([]string, error)
	Cardinalities(ctx context.Context, cols []rq.Collection) ([]int64, error)
	RangeWithCount(ctx context.Context, col rq.Collection, start, stop int64) ([]string, int64, error)
	Ranges(ctx context.Context, reqs []RangeRequest) ([][]string, error)
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
	RemoveMembers(ctx context.Context, removals []Removal) ([]int64, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	LatestStreamEntry(ctx context.Context, key string) (map[string]string, bool, error)
}

// RangeRequest selects the inclusive rank window [Start, Stop] of a collection.
type RangeRequest struct {
	Collection rq.Collection
	Start      int64
	Stop       int64
}

// Removal removes Member from Collection.
type Removal struct {
	Collection rq.Collection
	Member     string
}

// DefaultScanCount is the COUNT hint passed to SCAN.
const DefaultScanCount = 500

// Store implements Accessor on a go-redis client. The client owns a
// connection pool, so a single Store is safe to share across goroutines.
type Store struct {
	client    redis.UniversalClient
	scanCount int64
}

// New wraps an existing client.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client, scanCount: DefaultScanCount}
}

// WithScanCount overrides the SCAN COUNT hint. Non-positive values are ignored.
func (s *Store) WithScanCount(n int64) *Store {
	if n > 0 {
		s.scanCount = n
	}
	return s
}

// Options configures Open.
type Options struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	DialTimeout time.Duration
	ReadTimeout time.Duration
	PoolSize    int
	ScanCount   int64

	// PingTimeout bounds the connectivity check performed by Open.
	PingTimeout time.Duration
}

// Connect parses opts.URL and creates a pooled client without contacting
// the server.
func Connect(opts Options) (*Store, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, rq.Wrap("Connect", "", fmt.Errorf("%w: redis url is required", rq.ErrInvalidArgument))
	}
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, rq.Wrap("Connect", "", fmt.Errorf("%w: parse redis url: %v", rq.ErrInvalidArgument, err))
	}
	if opts.DialTimeout > 0 {
		redisOpts.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		redisOpts.ReadTimeout = opts.ReadTimeout
		redisOpts.WriteTimeout = opts.ReadTimeout
	}
	if opts.PoolSize > 0 {
		redisOpts.PoolSize = opts.PoolSize
	}
	return New(redis.NewClient(redisOpts)).WithScanCount(opts.ScanCount), nil
}

// Open connects like Connect and verifies connectivity with a ping.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s, err := Connect(opts)
	if err != nil {
		return nil, err
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Client returns the underlying client.
func (s *Store) Client() redis.UniversalClient {
	return s.client
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return classify("Ping", "", s.client.Ping(ctx).Err())
}

// HashGetAll returns every field of the hash at key. A missing key yields an
// empty map.
func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify("HashGetAll", key, err)
	}
	return m, nil
}

// HashGetAllMany reads several hashes in one pipeline. Results are positional;
// missing keys yield empty maps.
func (s *Store) HashGetAllMany(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, classify("HashGetAllMany", "", err)
	}
	out := make([]map[string]string, len(keys))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

// HashFieldMany reads one field of several hashes in one pipeline. Missing
// keys and fields yield "".
func (s *Store) HashFieldMany(ctx context.Context, keys []string, field string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.StringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGet(ctx, k, field)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, classify("HashFieldMany", field, err)
	}
	out := make([]string, len(keys))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, classify("SetMembers", key, err)
	}
	return members, nil
}

// Cardinalities counts every collection in one pipeline.
func (s *Store) Cardinalities(ctx context.Context, cols []rq.Collection) ([]int64, error) {
	if len(cols) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(cols))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, c := range cols {
			cmds[i] = countCmd(ctx, pipe, c)
		}
		return nil
	})
	if err != nil {
		return nil, classify("Cardinalities", "", err)
	}
	out := make([]int64, len(cols))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

// RangeWithCount reads the rank window [start, stop] of col together with
// its cardinality in a single round trip.
func (s *Store) RangeWithCount(ctx context.Context, col rq.Collection, start, stop int64) ([]string, int64, error) {
	var (
		rangeCmd *redis.StringSliceCmd
		countC   *redis.IntCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		countC = countCmd(ctx, pipe, col)
		rangeCmd = rangeCmdFor(ctx, pipe, col, start, stop)
		return nil
	})
	if err != nil {
		return nil, 0, classify("RangeWithCount", col.Key, err)
	}
	return rangeCmd.Val(), countC.Val(), nil
}

// Ranges reads several rank windows in one pipeline. Results are positional.
func (s *Store) Ranges(ctx context.Context, reqs []RangeRequest) ([][]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.StringSliceCmd, len(reqs))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, r := range reqs {
			cmds[i] = rangeCmdFor(ctx, pipe, r.Collection, r.Start, r.Stop)
		}
		return nil
	})
	if err != nil {
		return nil, classify("Ranges", "", err)
	}
	out := make([][]string, len(reqs))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

// ScanKeys iterates SCAN MATCH pattern to completion. Keys may repeat across
// cursor steps; the result is deduplicated.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		out    []string
	)
	seen := make(map[string]struct{})
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, s.scanCount).Result()
		if err != nil {
			return nil, classify("ScanKeys", pattern, err)
		}
		for _, k := range keys {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
		if next == 0 {
			return out, nil
		}
		cursor = next
	}
}

// RemoveMembers issues one removal per entry in a single pipeline and returns
// how many elements each removed. Removing an absent member is not an error.
func (s *Store) RemoveMembers(ctx context.Context, removals []Removal) ([]int64, error) {
	if len(removals) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(removals))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, r := range removals {
			switch r.Collection.Kind {
			case rq.KindList:
				cmds[i] = pipe.LRem(ctx, r.Collection.Key, 0, r.Member)
			case rq.KindSet:
				cmds[i] = pipe.SRem(ctx, r.Collection.Key, r.Member)
			default:
				cmds[i] = pipe.ZRem(ctx, r.Collection.Key, r.Member)
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify("RemoveMembers", "", err)
	}
	out := make([]int64, len(removals))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

// Delete removes keys and returns how many existed.
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, classify("Delete", strings.Join(keys, ","), err)
	}
	return n, nil
}

// LatestStreamEntry returns the fields of the newest entry of a stream. The
// second result is false when the stream is missing or empty.
func (s *Store) LatestStreamEntry(ctx context.Context, key string) (map[string]string, bool, error) {
	msgs, err := s.client.XRevRangeN(ctx, key, "+", "-", 1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, classify("LatestStreamEntry", key, err)
	}
	if len(msgs) == 0 {
		return nil, false, nil
	}
	out := make(map[string]string, len(msgs[0].Values))
	for k, v := range msgs[0].Values {
		out[k] = fmt.Sprint(v)
	}
	return out, true, nil
}

func countCmd(ctx context.Context, pipe redis.Pipeliner, c rq.Collection) *redis.IntCmd {
	switch c.Kind {
	case rq.KindList:
		return pipe.LLen(ctx, c.Key)
	case rq.KindSet:
		return pipe.SCard(ctx, c.Key)
	default:
		return pipe.ZCard(ctx, c.Key)
	}
}

func rangeCmdFor(ctx context.Context, pipe redis.Pipeliner, c rq.Collection, start, stop int64) *redis.StringSliceCmd {
	switch c.Kind {
	case rq.KindList:
		return pipe.LRange(ctx, c.Key, start, stop)
	case rq.KindSet:
		// Sets have no rank; the whole membership is returned.
		return pipe.SMembers(ctx, c.Key)
	default:
		return pipe.ZRange(ctx, c.Key, start, stop)
	}
}

// Compile-time check that Store implements Accessor.
var _ Accessor = (*Store)(nil)
