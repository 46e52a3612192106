package middleware

import (
	"context"
	"time"

	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/sirupsen/logrus"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	// Backoff multiplies the delay after every attempt, values below 1
	// are treated as 1.
	Backoff float64
	Logger  *logrus.Entry
}

// DefaultRetryPolicy retries three times, after 1s, 2s and 4s.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Delay: time.Second, Backoff: 2}

// Retry repeats calls failing with a transient error, see ipc.IsTransient.
// Other errors and the last failure are returned as they are.
func Retry(policy RetryPolicy) func(ipc.CallFunc) ipc.CallFunc {
	if policy.Backoff < 1 {
		policy.Backoff = 1
	}
	logger := policy.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return func(call ipc.CallFunc) ipc.CallFunc {
		return func(ctx context.Context, target, method string, opts ...ipc.CallOption) (interface{}, error) {
			delay := policy.Delay
			for attempt := 0; ; attempt++ {
				res, err := call(ctx, target, method, opts...)
				if err == nil || !ipc.IsTransient(err) || attempt >= policy.MaxRetries {
					return res, err
				}
				logger.Warnf("Call to %v.%v failed (attempt %d/%d), retrying in %v: %v",
					target, method, attempt+1, policy.MaxRetries+1, delay, err)
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				delay = time.Duration(float64(delay) * policy.Backoff)
			}
		}
	}
}
