package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
)

// HTTPTransport sends requests to an API base URL with a shared cookie jar, so
// the http-only refresh cookie set by the server rides along automatically.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

func NewHTTPTransport(baseURL string, httpClient *http.Client) *HTTPTransport {
	if httpClient == nil {
		jar, _ := cookiejar.New(nil)
		httpClient = &http.Client{Jar: jar}
	}
	return &HTTPTransport{
		baseURL: baseURL,
		client:  httpClient,
	}
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for name, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBody,
	}, nil
}

type refreshEnvelope struct {
	Data struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// RefreshViaAPI builds the RefreshFunc for a Coordinator: one POST to the
// refresh endpoint, riding on the cookie jar, yielding the new access token.
func RefreshViaAPI(transport *HTTPTransport, refreshPath string) RefreshFunc {
	return func(ctx context.Context) (string, error) {
		resp, err := transport.Do(ctx, &Request{
			Method: http.MethodPost,
			Path:   refreshPath,
		})
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		if !resp.OK() {
			return "", fmt.Errorf("%w: upstream returned status %d", ErrRefreshFailed, resp.Status)
		}

		var envelope refreshEnvelope
		if err := json.Unmarshal(resp.Body, &envelope); err != nil {
			return "", fmt.Errorf("%w: malformed refresh response: %w", ErrRefreshFailed, err)
		}
		if envelope.Data.AccessToken == "" {
			return "", fmt.Errorf("%w: refresh response missing access token", ErrRefreshFailed)
		}

		return envelope.Data.AccessToken, nil
	}
}
