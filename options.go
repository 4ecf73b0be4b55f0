package mpin

import (
	"io"
	"net/http"
	"time"

	"github.com/layer-3/mpin/ports"
)

// DefaultBaseURL is the platform endpoint used when none is configured.
const DefaultBaseURL = "https://api.mpin.io"

type config struct {
	baseURL    string
	deviceName string
	pinWait    time.Duration
	httpClient *http.Client

	logWriter  io.Writer
	logLevel   string
	logDisable bool

	store    ports.UserStore
	crypto   ports.Crypto
	executor ports.Executor
	api      ports.API
	events   ports.EventPublisher
}

// Option configures a Client.
type Option func(*config)

// WithBaseURL points the client at a different platform instance, for
// example a self-hosted deployment or an in-process test platform.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithDeviceName labels this device in registrations and session status
// screens. Defaults to the host name.
func WithDeviceName(name string) Option {
	return func(c *config) { c.deviceName = name }
}

// WithHTTPClient replaces the http.Client used for platform calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithPinWait bounds how long an operation waits for the PIN provider
// before treating the entry as cancelled.
func WithPinWait(wait time.Duration) Option {
	return func(c *config) { c.pinWait = wait }
}

// WithLogWriter sends SDK logs to w instead of stderr.
func WithLogWriter(w io.Writer) Option {
	return func(c *config) { c.logWriter = w }
}

// WithLogLevel sets the SDK log level (ERROR, WARNING, NOTICE, INFO or
// DEBUG). Defaults to WARNING.
func WithLogLevel(level string) Option {
	return func(c *config) { c.logLevel = level }
}

// WithoutLogging discards all SDK log output.
func WithoutLogging() Option {
	return func(c *config) { c.logDisable = true }
}

// WithUserStore persists registered identities somewhere other than the
// default in-memory store, for example store.NewBoltStore or
// store.NewRedisStore.
func WithUserStore(s ports.UserStore) Option {
	return func(c *config) { c.store = s }
}

// WithCrypto replaces the pairing crypto provider.
func WithCrypto(p ports.Crypto) Option {
	return func(c *config) { c.crypto = p }
}

// WithExecutor replaces the HTTP request executor. Ignored when WithAPI is
// also given.
func WithExecutor(e ports.Executor) Option {
	return func(c *config) { c.executor = e }
}

// WithAPI replaces the whole platform API client.
func WithAPI(a ports.API) Option {
	return func(c *config) { c.api = a }
}

// WithEventPublisher emits user lifecycle events (registered, revoked,
// deleted) to the given publisher, for example events.NewWatermillPublisher.
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(c *config) { c.events = p }
}
