package rqstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/3leaps/rqlens/pkg/rq"
)

// classify wraps a client error in an rq.OpError. Connection, timeout and
// cancellation failures additionally match rq.ErrServiceUnavailable.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if IsUnavailable(err) {
		return &rq.OpError{Op: op, Key: key, Err: fmt.Errorf("%w: %w", rq.ErrServiceUnavailable, err)}
	}
	return &rq.OpError{Op: op, Key: key, Err: err}
}

// IsUnavailable reports whether err means the store could not be reached in
// time, as opposed to a server-side command error.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rq.ErrServiceUnavailable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, redis.ErrClosed) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "connection pool timeout")
}
