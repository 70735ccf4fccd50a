// Package transport is an in-process message link between the device core
// and the companion. It keeps the constraints of the real channel: a bounded
// message size, a bounded inbox per side, a connectivity flag, and delivery
// failures reported after Send has already returned.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrUnavailable = errors.New("transport: peer unavailable")
	ErrTooLarge    = errors.New("transport: message too large")
	ErrQueueFull   = errors.New("transport: inbox full")
)

// DeliveryError reports a message that left Send but never reached the
// other side.
type DeliveryError struct {
	Msg []byte
	Err error
}

func (e *DeliveryError) Error() string { return e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

// Message returns the undelivered message.
func (e *DeliveryError) Message() []byte { return e.Msg }

// DefaultMaxMessageBytes is the inbox size of the reference device.
const DefaultMaxMessageBytes = 256

// DefaultSlots bounds each inbox.
const DefaultSlots = 8

// Link connects a device endpoint to a phone endpoint.
type Link struct {
	mu       sync.Mutex
	up       bool
	maxBytes int

	toDevice chan []byte
	toPhone  chan []byte

	failures     chan error
	connectivity chan bool
	phoneUp      chan struct{}
}

// New creates a disconnected link. Non-positive arguments take the defaults.
func New(maxBytes, slots int) *Link {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	if slots <= 0 {
		slots = DefaultSlots
	}
	return &Link{
		maxBytes:     maxBytes,
		toDevice:     make(chan []byte, slots),
		toPhone:      make(chan []byte, slots),
		failures:     make(chan error, slots),
		connectivity: make(chan bool, 1),
		phoneUp:      make(chan struct{}, 1),
	}
}

// MaxMessageBytes is the largest message either side may send.
func (l *Link) MaxMessageBytes() int { return l.maxBytes }

// Connected reports the link state.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

// SetConnected changes the link state. Going down drops every message still
// queued towards the phone and reports each as a delivery failure.
func (l *Link) SetConnected(up bool) {
	l.mu.Lock()
	changed := l.up != up
	l.up = up
	l.mu.Unlock()
	if !changed {
		return
	}

	if !up {
		l.dropQueued()
	}
	latest(l.connectivity, up)
	if up {
		select {
		case l.phoneUp <- struct{}{}:
		default:
		}
	}
}

// Failures delivers asynchronous send failures for device messages.
func (l *Link) Failures() <-chan error { return l.failures }

// Connectivity delivers the latest link state after each change.
func (l *Link) Connectivity() <-chan bool { return l.connectivity }

// Device is the watch side of the link.
func (l *Link) Device() *Endpoint {
	return &Endpoint{link: l, name: "device", out: l.toPhone, in: l.toDevice}
}

// Phone is the companion side of the link.
func (l *Link) Phone() *Endpoint {
	return &Endpoint{link: l, name: "phone", out: l.toDevice, in: l.toPhone, up: l.phoneUp}
}

func (l *Link) dropQueued() {
	for i := 0; ; i++ {
		select {
		case msg := <-l.toPhone:
			l.fail(&DeliveryError{
				Msg: msg,
				Err: fmt.Errorf("%w: dropped queued message %d", ErrUnavailable, i),
			})
		default:
			return
		}
	}
}

func (l *Link) fail(err error) {
	select {
	case l.failures <- err:
	default:
	}
}

// latest replaces any unread value in a one-slot channel.
func latest(ch chan bool, v bool) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Endpoint is one side of a Link.
type Endpoint struct {
	link *Link
	name string
	out  chan<- []byte
	in   <-chan []byte
	up   <-chan struct{}
}

// Connected reports the link state.
func (e *Endpoint) Connected() bool { return e.link.Connected() }

// Send queues a copy of msg for the other side. It never blocks.
func (e *Endpoint) Send(msg []byte) error {
	if !e.link.Connected() {
		return ErrUnavailable
	}
	if len(msg) > e.link.maxBytes {
		return fmt.Errorf("%w: %s sent %d bytes, max %d", ErrTooLarge, e.name, len(msg), e.link.maxBytes)
	}
	buf := make([]byte, len(msg))
	copy(buf, msg)
	select {
	case e.out <- buf:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, e.name)
	}
}

// Inbox delivers messages sent by the other side.
func (e *Endpoint) Inbox() <-chan []byte { return e.in }

// Reconnected fires each time the link comes up. Only the phone endpoint
// has one; it is nil on the device.
func (e *Endpoint) Reconnected() <-chan struct{} { return e.up }

// SendWait queues a copy of msg, waiting for inbox space until ctx is done.
func (e *Endpoint) SendWait(ctx context.Context, msg []byte) error {
	if !e.link.Connected() {
		return ErrUnavailable
	}
	if len(msg) > e.link.maxBytes {
		return fmt.Errorf("%w: %s sent %d bytes, max %d", ErrTooLarge, e.name, len(msg), e.link.maxBytes)
	}
	buf := make([]byte, len(msg))
	copy(buf, msg)
	select {
	case e.out <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MaxMessageBytes is the largest message the endpoint may send.
func (e *Endpoint) MaxMessageBytes() int { return e.link.maxBytes }
