// Package gateway dispatches named remote operations asynchronously.
// Each Invoke runs its handler on its own goroutine and reports exactly
// one Result to the done callback. The gateway has no retry or timeout
// policy; callers that need one wrap the context they pass in.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZawYePhyo/Handy/log"
)

type Result struct {
	Value any
	Err   error
}

type Handler func(ctx context.Context, args map[string]any) (any, error)

type Gateway struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func New() *Gateway {
	return &Gateway{handlers: make(map[string]Handler)}
}

func (g *Gateway) Register(name string, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[name] = h
}

// Invoke looks up the operation and runs it off-thread. done is called
// exactly once, from the handler's goroutine; callers living on an event
// loop must post the continuation back themselves.
func (g *Gateway) Invoke(ctx context.Context, name string, args map[string]any, done func(Result)) {
	g.mu.RLock()
	h, ok := g.handlers[name]
	g.mu.RUnlock()

	if !ok {
		done(Result{Err: fmt.Errorf("unknown operation %q", name)})
		return
	}

	go func() {
		v, err := h(ctx, args)
		if err != nil {
			log.Warnf("operation %s failed: %v", name, err)
		}
		done(Result{Value: v, Err: err})
	}()
}

// String pulls a string argument, tolerating absence as "".
func String(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// Int64 pulls an integer argument regardless of how the caller typed it.
func Int64(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
