package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
)

// ErrCommandPending is returned when a command is sent while another is awaiting its response.
var ErrCommandPending = errors.New("command already pending on channel")

// CommandChannel writes commands to one characteristic and takes the response from
// notifications on its paired characteristic. Only one command may be outstanding.
// A closed channel fails the pending command and every later one with the close cause.
type CommandChannel struct {
	link   device.Link
	write  device.Characteristic
	notify device.Characteristic
	logger *logrus.Logger

	mu      sync.Mutex
	pending bool

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error // set before closed is closed
}

// NewCommandChannel creates a channel writing to write and listening on notify.
func NewCommandChannel(link device.Link, write, notify device.Characteristic, logger *logrus.Logger) *CommandChannel {
	if logger == nil {
		logger = logrus.New()
	}
	return &CommandChannel{
		link:   link,
		write:  write,
		notify: notify,
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Close tears the channel down. A nil cause means device.ErrNotConnected.
// Only the first call has an effect.
func (c *CommandChannel) Close(cause error) {
	c.closeOnce.Do(func() {
		if cause == nil {
			cause = device.ErrNotConnected
		}
		c.closeErr = cause
		close(c.closed)
	})
}

func (c *CommandChannel) closedErr() error {
	select {
	case <-c.closed:
		return c.closeErr
	default:
		return nil
	}
}

// Send writes payload and waits for the first pushed notification whose first byte is expectedCode.
// The full notification payload is returned. The listener is registered before the write and
// released before Send returns, whatever the outcome.
func (c *CommandChannel) Send(ctx context.Context, payload []byte, expectedCode byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty command payload")
	}
	if err := c.closedErr(); err != nil {
		return nil, err
	}
	if !c.acquire() {
		return nil, ErrCommandPending
	}
	defer c.releaseSlot()

	resolved := make(chan []byte, 1)
	var matched atomic.Bool
	sub := c.link.OnNotification(c.notify, func(n device.Notification) {
		if !n.Pushed || len(n.Data) == 0 || n.Data[0] != expectedCode {
			if n.Pushed && len(n.Data) > 0 {
				c.logger.WithFields(logrus.Fields{
					"char_uuid": c.notify.UUID,
					"code":      fmt.Sprintf("0x%02x", n.Data[0]),
					"expected":  fmt.Sprintf("0x%02x", expectedCode),
				}).Debug("Ignoring notification with unexpected response code")
			}
			return
		}
		if matched.CompareAndSwap(false, true) {
			resolved <- append([]byte(nil), n.Data...)
		}
	})
	defer sub.Release()

	c.logger.WithFields(logrus.Fields{
		"char_uuid": c.write.UUID,
		"command":   fmt.Sprintf("0x%02x", payload[0]),
		"len":       len(payload),
	}).Debug("Writing command")

	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	if err := c.link.Write(ctx, c.write, payload); err != nil {
		return nil, &device.WriteError{Characteristic: c.write.UUID, Err: err}
	}

	select {
	case data := <-resolved:
		return data, nil
	case <-c.closed:
		return nil, c.closeErr
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (c *CommandChannel) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		return false
	}
	c.pending = true
	return true
}

func (c *CommandChannel) releaseSlot() {
	c.mu.Lock()
	c.pending = false
	c.mu.Unlock()
}
