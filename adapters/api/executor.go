// Package api talks to the M-Pin platform over HTTP/JSON.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"context"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/ports"
)

const defaultTimeout = 30 * time.Second

// HTTPExecutor performs platform calls with net/http and classifies
// responses into the error classes the protocol engines understand.
type HTTPExecutor struct {
	client    *http.Client
	userAgent string
}

// NewHTTPExecutor creates an executor around client. A nil client gets a
// default with a 30 second timeout.
func NewHTTPExecutor(client *http.Client, userAgent string) *HTTPExecutor {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPExecutor{client: client, userAgent: userAgent}
}

// Execute performs one exchange and returns the response body. 4xx
// responses become *core.ClientError, 5xx *core.ServerError and transport
// failures *core.ExecutionError.
func (e *HTTPExecutor) Execute(ctx context.Context, req ports.Request) ([]byte, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, &core.ExecutionError{Err: err}
	}
	if len(req.Params) > 0 {
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, &core.ExecutionError{Err: err}
	}

	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if e.userAgent != "" {
		httpReq.Header.Set("User-Agent", e.userAgent)
		httpReq.Header.Set("X-MPIN-CLIENT", e.userAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &core.ExecutionError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.ExecutionError{Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return payload, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, parseClientError(payload)
	default:
		return nil, &core.ServerError{Status: resp.StatusCode, Body: string(payload)}
	}
}

// The platform error envelope comes in two shapes: newer endpoints nest an
// error object, older ones return a bare code string with info and context
// alongside.
type clientErrorEnvelope struct {
	Error   json.RawMessage   `json:"error"`
	Info    string            `json:"info"`
	Context map[string]string `json:"context"`
}

type clientErrorData struct {
	Code    string            `json:"code"`
	Info    string            `json:"info"`
	Context map[string]string `json:"context"`
}

func parseClientError(body []byte) *core.ClientError {
	var env clientErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return &core.ClientError{Info: strings.TrimSpace(string(body))}
	}

	var data clientErrorData
	if err := json.Unmarshal(env.Error, &data); err == nil && data.Code != "" {
		return &core.ClientError{Code: data.Code, Info: data.Info, Context: data.Context}
	}

	var code string
	if err := json.Unmarshal(env.Error, &code); err == nil && code != "" {
		return &core.ClientError{Code: code, Info: env.Info, Context: env.Context}
	}

	return &core.ClientError{Info: strings.TrimSpace(string(body))}
}
