package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/mpin/core"
	"github.com/layer-3/mpin/ports"
)

// PIN length bounds accepted by registration and authentication.
const (
	MinPinLength = 4
	MaxPinLength = 6
)

// defaultPinWait bounds how long an operation waits for the PIN provider
// before giving up with core.ErrPinCancelled.
const defaultPinWait = 5 * time.Minute

// pinEntry is a validated PIN: the numeric value used by the protocol and
// the exact digits entered, preserved for secret renewal.
type pinEntry struct {
	value int
	text  string
}

// pinReader collects a PIN from a provider with a bounded wait.
type pinReader struct {
	wait time.Duration
}

func newPinReader(wait time.Duration) pinReader {
	if wait <= 0 {
		wait = defaultPinWait
	}
	return pinReader{wait: wait}
}

// read invokes provide at most once and validates the result. The provider
// runs under a deadline derived from the caller's context; expiry, a
// provider error or an empty PIN all cancel the operation. A requiredLen
// inside the accepted range pins the length to that exact value.
func (r pinReader) read(ctx context.Context, provide ports.PinProvider, requiredLen int) (pinEntry, error) {
	if provide == nil {
		return pinEntry{}, core.ErrPinCancelled
	}

	ctx, cancel := context.WithTimeout(ctx, r.wait)
	defer cancel()

	type answer struct {
		pin string
		err error
	}
	done := make(chan answer, 1)
	go func() {
		pin, err := provide(ctx)
		done <- answer{pin: pin, err: err}
	}()

	select {
	case <-ctx.Done():
		return pinEntry{}, core.ErrPinCancelled
	case res := <-done:
		if res.err != nil {
			return pinEntry{}, fmt.Errorf("%w: %w", core.ErrPinCancelled, res.err)
		}
		if res.pin == "" {
			return pinEntry{}, core.ErrPinCancelled
		}
		return parsePin(res.pin, requiredLen)
	}
}

// parsePin enforces the digits-only policy and the accepted length range.
// Leading zeros are allowed and count toward the length.
func parsePin(pin string, requiredLen int) (pinEntry, error) {
	if len(pin) < MinPinLength || len(pin) > MaxPinLength {
		return pinEntry{}, core.ErrInvalidPin
	}
	if requiredLen >= MinPinLength && requiredLen <= MaxPinLength && len(pin) != requiredLen {
		return pinEntry{}, core.ErrInvalidPin
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return pinEntry{}, core.ErrInvalidPin
		}
	}
	value, err := strconv.Atoi(pin)
	if err != nil {
		return pinEntry{}, core.ErrInvalidPin
	}
	return pinEntry{value: value, text: pin}, nil
}
