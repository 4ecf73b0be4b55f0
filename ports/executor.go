package ports

import "context"

// Request is a transport-neutral description of one platform call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  map[string]string // Query parameters
	Body    []byte
}

// Executor performs a single HTTP exchange and returns the response body.
// Failures are classified as *core.ClientError (4xx with a platform error
// code), *core.ServerError (5xx) or *core.ExecutionError (transport).
type Executor interface {
	Execute(ctx context.Context, req Request) ([]byte, error)
}
