package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arkhazla/authcore/services/logging"
)

var (
	ErrRefreshFailed = errors.New("credential refresh failed")
)

// RefreshFunc performs the upstream refresh call and returns the new access
// token.
type RefreshFunc func(ctx context.Context) (string, error)

type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// Coordinator funnels concurrent refresh attempts into a single upstream call.
// It owns the one piece of shared mutable state in the client: the in-flight
// slot. The check-and-set on that slot happens under the mutex, so for any
// window with one outstanding refresh exactly one upstream call is made and
// every caller observes its result.
type Coordinator struct {
	mu      sync.Mutex
	call    *refreshCall
	refresh RefreshFunc
	timeout time.Duration
	logger  *logging.Service
}

func NewCoordinator(refresh RefreshFunc, timeout time.Duration, logger *logging.Service) *Coordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		refresh: refresh,
		timeout: timeout,
		logger:  logger,
	}
}

// Refresh returns the new access token, joining an in-flight refresh when one
// exists. The upstream call runs under its own bounded timeout so a hung
// refresh cannot block waiters forever; a caller's context cancellation only
// detaches that caller.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	call := c.call
	if call == nil {
		call = &refreshCall{done: make(chan struct{})}
		c.call = call
		go c.run(call)
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) run(call *refreshCall) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	token, err := c.refresh(ctx)

	// Clear the slot before publishing so a refresh triggered by a later 401
	// starts a new upstream call instead of observing this settled one.
	c.mu.Lock()
	c.call = nil
	c.mu.Unlock()

	if err != nil {
		if c.logger != nil {
			c.logger.Warn("upstream credential refresh failed", zap.Error(err))
		}
		call.err = err
	} else {
		call.token = token
	}
	close(call.done)
}
