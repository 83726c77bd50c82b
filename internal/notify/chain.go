package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExhausted means every transport in the chain failed. With the log
// transport terminating the chain this should be unreachable, but forced
// or custom chains can still hit it.
var ErrExhausted = errors.New("all delivery transports failed")

// DeliveryError records one transport's failure while the chain continues.
type DeliveryError struct {
	Transport string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Transport, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// sendTimeout bounds one external transport invocation so a wedged helper
// program cannot stall the whole scan.
const sendTimeout = 10 * time.Second

// Chain tries transports in order and stops at the first success.
type Chain struct {
	transports []Transport
	available  []Transport
	forced     Transport
	logger     *slog.Logger
}

// NewChain probes each transport once and caches the result. Order is
// most to least capable; the caller should end the chain with a transport
// whose Send cannot fail.
func NewChain(logger *slog.Logger, transports ...Transport) *Chain {
	c := &Chain{transports: transports, logger: logger}
	for _, t := range transports {
		if t.Available() {
			c.available = append(c.available, t)
		} else {
			logger.Debug("transport unavailable", "transport", t.Name())
		}
	}
	return c
}

// DefaultChain builds the standard transport ordering. The telegram
// transport joins the front only when configured.
func DefaultChain(logger *slog.Logger, tg *Telegram, logPath string) *Chain {
	transports := []Transport{}
	if tg != nil {
		transports = append(transports, tg)
	}
	transports = append(transports,
		NewNative(),
		NewOsascript(),
		NewTerminal(),
		NewSound(),
		NewLogFile(logPath),
	)
	return NewChain(logger, transports...)
}

// Force pins delivery to the named transport, bypassing the fallback
// order. An empty name restores normal chain behavior.
func (c *Chain) Force(name string) error {
	if name == "" {
		c.forced = nil
		return nil
	}
	for _, t := range c.transports {
		if t.Name() == name {
			c.forced = t
			return nil
		}
	}
	return fmt.Errorf("unknown transport %q", name)
}

// Best returns the name of the most capable available transport.
func (c *Chain) Best() string {
	if c.forced != nil {
		return c.forced.Name()
	}
	if len(c.available) == 0 {
		return "none"
	}
	return c.available[0].Name()
}

// Deliver pushes msg through the chain and returns the name of the
// transport that succeeded. Individual failures are logged and the chain
// moves on; ErrExhausted is returned only when nothing succeeded.
func (c *Chain) Deliver(ctx context.Context, msg Message) (string, error) {
	candidates := c.available
	if c.forced != nil {
		candidates = []Transport{c.forced}
	}

	var lastErr error
	for _, t := range candidates {
		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := t.Send(sendCtx, msg)
		cancel()
		if err == nil {
			return t.Name(), nil
		}
		lastErr = &DeliveryError{Transport: t.Name(), Err: err}
		c.logger.Warn("delivery failed, trying next transport",
			"transport", t.Name(), "error", err)
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrExhausted, lastErr)
	}
	return "", ErrExhausted
}
