package http

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrpow/Wearcast-Pebble/internal/appsync"
)

var (
	// ErrOutboxFull is returned by Send while a message waits for collection.
	ErrOutboxFull = errors.New("outbox full")
	// ErrDeliveryTimeout is reported when the companion does not collect a message in time.
	ErrDeliveryTimeout = errors.New("companion did not collect message")
)

// Outbox is the companion-facing transport. It holds at most one message until
// the companion polls GET /companion/outbox. Send never reports completion
// itself; collection or expiry is reported later on another goroutine.
type Outbox struct {
	mu       sync.Mutex
	msg      []byte
	gen      uint64
	timer    *time.Timer
	timeout  time.Duration
	onResult func(id appsync.SendID, err error)
	logger   *zap.Logger
}

// NewOutbox creates an Outbox whose messages expire after deliveryTimeout.
func NewOutbox(deliveryTimeout time.Duration, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{timeout: deliveryTimeout, logger: logger}
}

// OnResult sets the completion callback: nil error on collection,
// ErrDeliveryTimeout on expiry. id is the value Send returned for the message.
// Set it before the first Send.
func (o *Outbox) OnResult(fn func(id appsync.SendID, err error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onResult = fn
}

// Send stores msg for collection and returns its generation as the send tag.
func (o *Outbox) Send(msg []byte) (appsync.SendID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msg != nil {
		return 0, ErrOutboxFull
	}
	o.msg = append([]byte(nil), msg...)
	o.gen++
	gen := o.gen
	if o.timeout > 0 {
		o.timer = time.AfterFunc(o.timeout, func() { o.expire(gen) })
	}
	return appsync.SendID(gen), nil
}

// Take removes the waiting message and reports it delivered. ok is false when empty.
func (o *Outbox) Take() (msg []byte, ok bool) {
	o.mu.Lock()
	if o.msg == nil {
		o.mu.Unlock()
		return nil, false
	}
	msg = o.msg
	gen := o.gen
	o.clearLocked()
	report := o.onResult
	o.mu.Unlock()

	if report != nil {
		report(appsync.SendID(gen), nil)
	}
	return msg, true
}

// Pending reports whether a message waits for collection.
func (o *Outbox) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.msg != nil
}

func (o *Outbox) expire(gen uint64) {
	o.mu.Lock()
	if o.msg == nil || o.gen != gen {
		o.mu.Unlock()
		return
	}
	o.clearLocked()
	report := o.onResult
	o.mu.Unlock()

	o.logger.Warn("outbox message expired", zap.Duration("delivery_timeout", o.timeout))
	if report != nil {
		report(appsync.SendID(gen), ErrDeliveryTimeout)
	}
}

func (o *Outbox) clearLocked() {
	o.msg = nil
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}
