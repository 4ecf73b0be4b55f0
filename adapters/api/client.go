package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"gopkg.in/op/go-logging.v1"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/ports"
)

// Platform endpoint paths.
const (
	pathRegister            = "/rps/v2/user"
	pathPass1               = "/rps/v2/pass1"
	pathPass2               = "/rps/v2/pass2"
	pathAuthenticate        = "/rps/v2/authenticate"
	pathCodeStatus          = "/rps/v2/codeStatus"
	pathVerification        = "/verification/email"
	pathConfirmation        = "/verification/confirmation"
	pathQuickCode           = "/verification/quickcode"
	pathSigningSession      = "/dvs/session"
	pathSigningSessionAbort = "/dvs/session/abort"
)

// Cross-device session commands accepted by the codeStatus endpoint.
const (
	codeStatusFetch = "wid"
	codeStatusUser  = "user"
	codeStatusAbort = "abort"
)

type codeStatusRequest struct {
	Status   string `json:"status"`
	AccessID string `json:"accessId"`
	UserID   string `json:"userId,omitempty"`
}

type signingSessionUpdateRequest struct {
	ID        string          `json:"id"`
	Signature *core.Signature `json:"signature"`
}

// Client is the typed platform API used by the protocol engines. It builds
// requests, delegates the exchange to an Executor and decodes responses.
type Client struct {
	exec    ports.Executor
	baseURL string
	log     *logging.Logger
}

// NewClient creates a platform API client rooted at baseURL.
func NewClient(baseURL string, exec ports.Executor, logger *logging.Logger) *Client {
	return &Client{
		exec:    exec,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger,
	}
}

// RegisterUser starts an enrollment.
func (c *Client) RegisterUser(ctx context.Context, req ports.RegisterRequest) (*ports.RegisterResponse, error) {
	var out ports.RegisterResponse
	if err := c.postJSON(ctx, c.url(pathRegister), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetClientSecretShare fetches one secret share from its absolute URL.
func (c *Client) GetClientSecretShare(ctx context.Context, shareURL string) (*ports.ClientSecretResponse, error) {
	var out ports.ClientSecretResponse
	if err := c.getJSON(ctx, shareURL, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pass1 submits the proof commitment and returns the server challenge.
func (c *Client) Pass1(ctx context.Context, req ports.Pass1Request) (*ports.Pass1Response, error) {
	var out ports.Pass1Response
	if err := c.postJSON(ctx, c.url(pathPass1), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pass2 submits the proof value and returns the one-time auth token.
func (c *Client) Pass2(ctx context.Context, req ports.Pass2Request) (*ports.Pass2Response, error) {
	var out ports.Pass2Response
	if err := c.postJSON(ctx, c.url(pathPass2), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Authenticate redeems a completed proof.
func (c *Client) Authenticate(ctx context.Context, req ports.AuthenticateRequest) (*ports.AuthenticateResponse, error) {
	var out ports.AuthenticateResponse
	if err := c.postJSON(ctx, c.url(pathAuthenticate), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendVerificationEmail asks the platform to start an email verification.
func (c *Client) SendVerificationEmail(ctx context.Context, req ports.VerificationRequest) (*core.VerificationResponse, error) {
	var out struct {
		Backoff int64  `json:"backoff"`
		Method  string `json:"method"`
	}
	if err := c.postJSON(ctx, c.url(pathVerification), req, &out); err != nil {
		return nil, err
	}
	return &core.VerificationResponse{Backoff: out.Backoff, Method: out.Method}, nil
}

// ConfirmVerification exchanges a verification code for an activation token.
func (c *Client) ConfirmVerification(ctx context.Context, req ports.ConfirmationRequest) (*ports.ConfirmationResponse, error) {
	var out ports.ConfirmationResponse
	if err := c.postJSON(ctx, c.url(pathConfirmation), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateQuickCode exchanges a freshly issued JWT for a QuickCode.
func (c *Client) GenerateQuickCode(ctx context.Context, req ports.QuickCodeRequest) (*core.QuickCode, error) {
	var out struct {
		Code       string `json:"code"`
		ExpireTime int64  `json:"expireTime"`
		TTLSeconds int    `json:"ttlSeconds"`
	}
	if err := c.postJSON(ctx, c.url(pathQuickCode), req, &out); err != nil {
		return nil, err
	}
	return &core.QuickCode{Code: out.Code, ExpireTime: out.ExpireTime, TTLSeconds: out.TTLSeconds}, nil
}

// FetchSessionStatus retrieves a cross-device session descriptor.
func (c *Client) FetchSessionStatus(ctx context.Context, accessID string) (*ports.SessionStatusResponse, error) {
	var out ports.SessionStatusResponse
	req := codeStatusRequest{Status: codeStatusFetch, AccessID: accessID}
	if err := c.postJSON(ctx, c.url(pathCodeStatus), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSessionStatus binds an authenticated user to a session.
func (c *Client) UpdateSessionStatus(ctx context.Context, accessID, userID string) error {
	req := codeStatusRequest{Status: codeStatusUser, AccessID: accessID, UserID: userID}
	return c.postJSON(ctx, c.url(pathCodeStatus), req, nil)
}

// AbortSession terminates a cross-device session.
func (c *Client) AbortSession(ctx context.Context, accessID string) error {
	req := codeStatusRequest{Status: codeStatusAbort, AccessID: accessID}
	return c.postJSON(ctx, c.url(pathCodeStatus), req, nil)
}

// FetchSigningSession retrieves a signing session descriptor.
func (c *Client) FetchSigningSession(ctx context.Context, sessionID string) (*ports.SigningSessionResponse, error) {
	var out ports.SigningSessionResponse
	if err := c.getJSON(ctx, c.url(pathSigningSession), map[string]string{"id": sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSigningSession pushes a finished signature to a signing session and
// returns the session status.
func (c *Client) UpdateSigningSession(ctx context.Context, sessionID string, signature *core.Signature) (string, error) {
	payload, err := json.Marshal(signingSessionUpdateRequest{ID: sessionID, Signature: signature})
	if err != nil {
		return "", &core.ExecutionError{Err: err}
	}

	c.log.Debugf("PUT %s", pathSigningSession)
	raw, err := c.exec.Execute(ctx, ports.Request{
		Method: http.MethodPut,
		URL:    c.url(pathSigningSession),
		Body:   payload,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := c.decode(raw, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// AbortSigningSession terminates a signing session.
func (c *Client) AbortSigningSession(ctx context.Context, sessionID string) error {
	req := signingSessionUpdateRequest{ID: sessionID}
	return c.postJSON(ctx, c.url(pathSigningSessionAbort), req, nil)
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

func (c *Client) postJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &core.ExecutionError{Err: err}
	}

	c.log.Debugf("POST %s", url)
	raw, err := c.exec.Execute(ctx, ports.Request{Method: http.MethodPost, URL: url, Body: payload})
	if err != nil {
		return err
	}
	return c.decode(raw, out)
}

func (c *Client) getJSON(ctx context.Context, url string, params map[string]string, out any) error {
	c.log.Debugf("GET %s", url)
	raw, err := c.exec.Execute(ctx, ports.Request{Method: http.MethodGet, URL: url, Params: params})
	if err != nil {
		return err
	}
	return c.decode(raw, out)
}

func (c *Client) decode(raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &core.ExecutionError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
