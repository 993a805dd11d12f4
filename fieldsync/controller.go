// Package fieldsync reconciles a locally edited draft of one settings
// field with its remotely persisted value.
//
// Persistence is always an explicit, user-visible, awaitable action.
// Nothing here writes on blur, focus loss, or disposal: a write fired
// from a teardown path can never be awaited or retried, so a dirty
// draft at Dispose is deliberately discarded and logged instead.
package fieldsync

import (
	"context"
	"time"

	"github.com/ZawYePhyo/Handy/gateway"
	"github.com/ZawYePhyo/Handy/log"
)

type State int

const (
	StateClean State = iota
	StateDirty
	StateSaving
	StateSaved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirty:
		return "dirty"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// savedHold is how long the Saved confirmation stays visible before the
// controller reverts to Clean.
const savedHold = 2 * time.Second

// Invoker issues one named remote operation and reports exactly one result.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any, done func(gateway.Result))
}

// Store confirms what actually got persisted. The controller never
// assumes a successful write landed the value it sent; it re-reads.
type Store interface {
	RefreshValue(key string) (string, error)
}

type Deps struct {
	Gateway Invoker
	Store   Store
	Op      string // gateway operation that persists the field

	// Post schedules a continuation on the owning event loop. All
	// controller methods must be called from that loop.
	Post func(func())
	// After schedules fn on the loop after d. Nil means time.AfterFunc
	// routed through Post.
	After func(d time.Duration, fn func())
}

// Controller owns the draft/persisted relationship for a single field.
// Not safe for concurrent use; it belongs to one event loop.
type Controller struct {
	key       string
	persisted string
	draft     string
	state     State
	reason    string

	editedWhileSaving bool
	gen               int
	disposed          bool

	deps Deps
}

func New(key, persisted string, deps Deps) *Controller {
	if deps.Post == nil {
		deps.Post = func(fn func()) { fn() }
	}
	if deps.After == nil {
		post := deps.Post
		deps.After = func(d time.Duration, fn func()) {
			time.AfterFunc(d, func() { post(fn) })
		}
	}
	return &Controller{
		key:       key,
		persisted: persisted,
		draft:     persisted,
		state:     StateClean,
		deps:      deps,
	}
}

func (c *Controller) Key() string       { return c.key }
func (c *Controller) Draft() string     { return c.draft }
func (c *Controller) Persisted() string { return c.persisted }
func (c *Controller) State() State      { return c.state }
func (c *Controller) Reason() string    { return c.reason }

// Edit records a new draft value. During Saving the edit is queued and
// reconciled after the in-flight write resolves; in any other state the
// controller moves to Dirty, or back to Clean when the edit restores
// the persisted value.
func (c *Controller) Edit(v string) {
	if c.disposed {
		return
	}
	c.draft = v
	if c.state == StateSaving {
		c.editedWhileSaving = true
		return
	}
	c.reason = ""
	c.gen++ // cancels a pending Saved revert
	if v == c.persisted {
		c.state = StateClean
	} else {
		c.state = StateDirty
	}
}

// Save persists the draft. Only valid in Dirty; anything else is a no-op.
func (c *Controller) Save() {
	if c.disposed || c.state != StateDirty {
		return
	}
	c.state = StateSaving
	c.editedWhileSaving = false
	c.gen++
	gen := c.gen

	args := map[string]any{"key": c.key, "value": c.draft}
	c.deps.Gateway.Invoke(context.Background(), c.deps.Op, args, func(res gateway.Result) {
		// Still off-loop here: confirm against the store before posting
		// back, so the loop never blocks on I/O.
		var confirmed string
		err := res.Err
		if err == nil {
			confirmed, err = c.deps.Store.RefreshValue(c.key)
		}
		c.deps.Post(func() { c.resolveSave(gen, confirmed, err) })
	})
}

func (c *Controller) resolveSave(gen int, confirmed string, err error) {
	if c.disposed || gen != c.gen || c.state != StateSaving {
		return // result of an abandoned write; drop it
	}
	if err != nil {
		c.state = StateFailed
		c.reason = err.Error()
		return
	}
	c.persisted = confirmed
	if c.editedWhileSaving {
		c.editedWhileSaving = false
		if c.draft == c.persisted {
			c.state = StateClean
		} else {
			c.state = StateDirty
		}
		return
	}
	c.draft = confirmed
	c.state = StateSaved
	c.deps.After(savedHold, func() { c.revertSaved(gen) })
}

func (c *Controller) revertSaved(gen int) {
	if c.disposed || gen != c.gen || c.state != StateSaved {
		return
	}
	c.state = StateClean
}

// ExternalRefresh adopts a persisted value that changed behind the
// controller's back. Only a Clean controller takes it as the draft too;
// an unsaved edit is never overwritten.
func (c *Controller) ExternalRefresh(v string) {
	if c.disposed {
		return
	}
	c.persisted = v
	if c.state == StateClean {
		c.draft = v
	}
}

// Dispose detaches the controller from its view. No write is issued; a
// still-dirty draft is discarded and the discard is logged. Results of
// in-flight writes arriving later are dropped.
func (c *Controller) Dispose() {
	if c.disposed {
		return
	}
	if c.state == StateDirty || c.state == StateFailed || (c.state == StateSaving && c.editedWhileSaving) {
		log.DiscardedEdit(c.key)
	}
	c.disposed = true
	c.gen++
}
