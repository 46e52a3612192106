// Package middleware provides ipc.Middleware implementations wrapping
// handler invocations, and helpers wrapping the caller side.
package middleware

import (
	"context"
	"time"

	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by handlers rejected by RateLimit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Logging logs the method and duration of every invocation at Debug, and
// failures at Warn.
func Logging(logger *logrus.Entry) ipc.Middleware {
	return func(next ipc.Invoker) ipc.Invoker {
		return func(ctx context.Context, inv *ipc.Invocation) (interface{}, error) {
			start := time.Now()
			res, err := next(ctx, inv)
			entry := logger.WithFields(logrus.Fields{
				"method":   inv.Method,
				"duration": time.Since(start),
			})
			if err != nil {
				entry.Warnf("%v failed: %v", inv.Method, err)
			} else {
				entry.Debugf("%v took %v", inv.Method, time.Since(start))
			}
			return res, err
		}
	}
}

// Timeout bounds every invocation. The handler's context is cancelled at
// the deadline, a handler ignoring it keeps running but its result is
// dropped.
func Timeout(d time.Duration) ipc.Middleware {
	return func(next ipc.Invoker) ipc.Invoker {
		return func(ctx context.Context, inv *ipc.Invocation) (interface{}, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type result struct {
				v   interface{}
				err error
			}
			done := make(chan result, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						done <- result{err: errors.Errorf("handler panicked (recovered): %v", r)}
					}
				}()
				v, err := next(ctx, inv)
				done <- result{v, err}
			}()

			select {
			case r := <-done:
				return r.v, r.err
			case <-ctx.Done():
				return nil, errors.Errorf("%v timed out after %v", inv.Method, d)
			}
		}
	}
}

// RateLimit admits r invocations per second with bursts of burst across
// all methods of a node, the rest fail with ErrRateLimited.
func RateLimit(r float64, burst int) ipc.Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next ipc.Invoker) ipc.Invoker {
		return func(ctx context.Context, inv *ipc.Invocation) (interface{}, error) {
			if !limiter.Allow() {
				return nil, errors.WithStack(ErrRateLimited)
			}
			return next(ctx, inv)
		}
	}
}
