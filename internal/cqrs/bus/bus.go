// Package bus implements the in-process message dispatcher the pipeline is
// built around. It supports two primitives: Request routes a message to
// exactly one handler and returns its reply; Publish fans a notification out
// to every subscriber, awaiting all of them before returning. A failing
// subscriber never prevents the others from running - errors are collected
// and joined for the publisher to inspect.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Request is a message with exactly one handler and a reply.
type Request interface {
	RequestKey() string
}

// Notification is a broadcast message with zero or more handlers and no
// reply.
type Notification interface {
	NotificationKey() string
}

// RequestHandler processes a request and produces a reply.
type RequestHandler func(ctx context.Context, req Request) (any, error)

// NotificationHandler processes one notification.
type NotificationHandler func(ctx context.Context, n Notification) error

// ErrNoHandler is returned by Request when nothing is registered for the
// request's key.
var ErrNoHandler = errors.New("bus: no handler registered")

// Bus dispatches requests and notifications. Registration happens during
// startup; dispatch is safe for concurrent use afterwards.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string]RequestHandler
	subscribers map[string][]NotificationHandler
}

func New() *Bus {
	return &Bus{
		handlers:    make(map[string]RequestHandler),
		subscribers: make(map[string][]NotificationHandler),
	}
}

// HandleRequest registers the single handler for a request key. Registering
// a second handler for the same key is a wiring bug and fails loudly.
func (b *Bus) HandleRequest(key string, h RequestHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[key]; exists {
		return fmt.Errorf("bus: duplicate request handler for %q", key)
	}
	b.handlers[key] = h
	return nil
}

// Subscribe adds a notification handler for a key. Any number of handlers
// may subscribe to the same key.
func (b *Bus) Subscribe(key string, h NotificationHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[key] = append(b.subscribers[key], h)
}

// Request dispatches req to its registered handler and returns the reply.
func (b *Bus) Request(ctx context.Context, req Request) (any, error) {
	b.mu.RLock()
	h, ok := b.handlers[req.RequestKey()]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for request %q", ErrNoHandler, req.RequestKey())
	}
	return h(ctx, req)
}

// Publish dispatches n to every subscriber for its key, each on its own
// goroutine, and waits for all of them. Handler failures are isolated from
// one another; the joined error carries every failure. A panicking handler
// is contained the same way and reported as an error.
func (b *Bus) Publish(ctx context.Context, n Notification) error {
	b.mu.RLock()
	subs := b.subscribers[n.NotificationKey()]
	b.mu.RUnlock()
	if len(subs) == 0 {
		return nil
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, h := range subs {
		wg.Add(1)
		go func(i int, h NotificationHandler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("bus: subscriber for %q panicked: %v", n.NotificationKey(), r)
				}
			}()
			errs[i] = h(ctx, n)
		}(i, h)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// RequestAs dispatches req and asserts the reply to R. A mismatched reply
// type is a wiring bug between handler and caller.
func RequestAs[R any](ctx context.Context, b *Bus, req Request) (R, error) {
	var zero R
	reply, err := b.Request(ctx, req)
	if err != nil {
		return zero, err
	}
	typed, ok := reply.(R)
	if !ok {
		return zero, fmt.Errorf("bus: handler for %q replied %T, caller expects %T", req.RequestKey(), reply, zero)
	}
	return typed, nil
}
