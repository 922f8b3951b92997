package client

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/arkhazla/authcore/services/logging"
)

// Request is an outbound call on behalf of a user session. retried marks a
// request that already went through one recovery cycle; a second authorization
// failure then propagates unchanged.
type Request struct {
	Method  string
	Path    string
	Header  http.Header
	Body    []byte
	retried bool
}

// Response is the tagged result of a transport call: handlers branch on Status
// instead of probing error shapes.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// AuthExpired reports the one failure the client recovers from.
func (r *Response) AuthExpired() bool {
	return r.Status == http.StatusUnauthorized
}

// Transport performs the actual network call. Implementations wrap an
// *http.Client or a test double.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// CredentialHolder is the shared slot for the current access token.
type CredentialHolder struct {
	mu    sync.RWMutex
	token string
}

func (h *CredentialHolder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *CredentialHolder) SetToken(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// Client issues requests with the held credential attached and transparently
// recovers from an expired credential: the first 401 triggers one coordinated
// refresh and one resubmission of the original request. Refresh calls
// themselves and already-retried requests are never recovered.
type Client struct {
	transport        Transport
	coordinator      *Coordinator
	holder           *CredentialHolder
	refreshPath      string
	onSessionExpired func(error)
	logger           *logging.Service
}

type Option func(*Client)

// WithSessionExpiredHook installs the forced-teardown callback invoked when a
// refresh fails and the session cannot be renewed.
func WithSessionExpiredHook(hook func(error)) Option {
	return func(c *Client) {
		c.onSessionExpired = hook
	}
}

func New(transport Transport, coordinator *Coordinator, holder *CredentialHolder, refreshPath string, logger *logging.Service, opts ...Option) *Client {
	c := &Client{
		transport:   transport,
		coordinator: coordinator,
		holder:      holder,
		refreshPath: refreshPath,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	c.attachCredential(req)

	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if !resp.AuthExpired() || req.retried || req.Path == c.refreshPath {
		return resp, nil
	}

	req.retried = true

	token, refreshErr := c.coordinator.Refresh(ctx)
	if refreshErr != nil {
		if c.logger != nil {
			c.logger.Warn("session recovery failed", zap.Error(refreshErr))
		}
		if c.onSessionExpired != nil {
			c.onSessionExpired(refreshErr)
		}
		return resp, refreshErr
	}

	c.holder.SetToken(token)

	c.attachCredential(req)
	return c.transport.Do(ctx, req)
}

func (c *Client) attachCredential(req *Request) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if token := c.holder.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
