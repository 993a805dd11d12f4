package history

import (
	"context"

	"github.com/ZawYePhyo/Handy/gateway"
	"github.com/ZawYePhyo/Handy/notify"
)

type EntryState int

const (
	EntryIdle EntryState = iota
	EntryEditing
	EntrySaving
	EntryTranslating
	EntryError
)

func (s EntryState) String() string {
	switch s {
	case EntryIdle:
		return "idle"
	case EntryEditing:
		return "editing"
	case EntrySaving:
		return "saving"
	case EntryTranslating:
		return "translating"
	case EntryError:
		return "error"
	default:
		return "unknown"
	}
}

// Gateway operations the workflow issues.
const (
	OpUpdateText  = "update_history_entry_text"
	OpToggleSaved = "toggle_history_entry_saved"
	OpDelete      = "delete_history_entry"
	OpTranslate   = "translate_history_entry"
)

// Invoker issues one named remote operation and reports exactly one result.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any, done func(gateway.Result))
}

type entryState struct {
	state      EntryState
	reason     string
	revert     string // text snapshot taken at BeginEdit
	draft      string // edited text; survives a failed commit for retry
	hasDraft   bool
	derived    string // translation; ephemeral, cleared when text changes
	hasDerived bool
	gen        int
}

type Deps struct {
	Gateway Invoker
	Hub     *notify.Hub
	// Post schedules a continuation on the owning event loop.
	Post func(func())
}

// Workflow tracks mutation state per history entry. Mutations go through
// the gateway; local state is only a cache of what the view needs while
// a call is in flight. Not safe for concurrent use.
type Workflow struct {
	entries  map[int64]*entryState
	deps     Deps
	disposed bool

	// nextGen is workflow-wide, not per-entry: a state discarded by
	// SyncEntries and later recreated must never reuse a generation an
	// in-flight call was issued under.
	nextGen int
}

func NewWorkflow(deps Deps) *Workflow {
	if deps.Post == nil {
		deps.Post = func(fn func()) { fn() }
	}
	return &Workflow{entries: make(map[int64]*entryState), deps: deps}
}

func (w *Workflow) issueGen(st *entryState) int {
	w.nextGen++
	st.gen = w.nextGen
	return st.gen
}

func (w *Workflow) at(id int64) *entryState {
	st, ok := w.entries[id]
	if !ok {
		st = &entryState{}
		w.entries[id] = st
	}
	return st
}

func (w *Workflow) State(id int64) EntryState {
	if st, ok := w.entries[id]; ok {
		return st.state
	}
	return EntryIdle
}

func (w *Workflow) Reason(id int64) string {
	if st, ok := w.entries[id]; ok {
		return st.reason
	}
	return ""
}

// Text returns what the view should show for the entry: the local edit
// when one exists (in progress or failed), else the fetched text.
func (w *Workflow) Text(id int64, fetched string) string {
	if st, ok := w.entries[id]; ok && st.hasDraft {
		return st.draft
	}
	return fetched
}

func (w *Workflow) Derived(id int64) (string, bool) {
	if st, ok := w.entries[id]; ok && st.hasDerived {
		return st.derived, true
	}
	return "", false
}

// SyncEntries reconciles tracked state with the latest fetched list,
// discarding state for entries that no longer exist. Results of calls
// still in flight for a discarded entry are dropped when they land.
func (w *Workflow) SyncEntries(entries []Entry) {
	live := make(map[int64]bool, len(entries))
	for _, e := range entries {
		live[e.ID] = true
	}
	for id := range w.entries {
		if !live[id] {
			delete(w.entries, id)
		}
	}
}

// BeginEdit opens an inline edit for the entry. Only an Idle entry may
// enter editing; a busy one reports false.
func (w *Workflow) BeginEdit(e Entry) bool {
	if w.disposed {
		return false
	}
	st := w.at(e.ID)
	if st.state != EntryIdle && st.state != EntryError {
		return false
	}
	st.state = EntryEditing
	st.reason = ""
	st.revert = e.Text
	if !st.hasDraft {
		st.draft = e.Text
		st.hasDraft = true
	}
	return true
}

// EditDraft records the in-progress edit text.
func (w *Workflow) EditDraft(id int64, text string) {
	if w.disposed {
		return
	}
	st, ok := w.entries[id]
	if !ok || st.state != EntryEditing {
		return
	}
	st.draft = text
}

// CancelEdit discards the draft and reverts to the snapshot. No remote call.
func (w *Workflow) CancelEdit(id int64) {
	if w.disposed {
		return
	}
	st, ok := w.entries[id]
	if !ok || st.state != EntryEditing {
		return
	}
	st.state = EntryIdle
	st.draft = ""
	st.hasDraft = false
	st.reason = ""
}

// CommitEdit persists newText for the entry. On success the entry's
// translation is cleared (it belonged to the replaced text) and a
// history invalidation is emitted. On failure the edited text stays
// visible for retry; nothing reverts automatically.
func (w *Workflow) CommitEdit(id int64, newText string) bool {
	if w.disposed {
		return false
	}
	st, ok := w.entries[id]
	if !ok || st.state != EntryEditing {
		return false
	}
	st.state = EntrySaving
	st.draft = newText
	st.hasDraft = true
	gen := w.issueGen(st)

	args := map[string]any{"id": id, "new_text": newText}
	w.deps.Gateway.Invoke(context.Background(), OpUpdateText, args, func(res gateway.Result) {
		w.deps.Post(func() { w.resolveCommit(id, gen, res.Err) })
	})
	return true
}

func (w *Workflow) resolveCommit(id int64, gen int, err error) {
	st := w.alive(id, gen)
	if st == nil {
		return
	}
	if err != nil {
		st.state = EntryError
		st.reason = err.Error()
		return
	}
	st.state = EntryIdle
	st.draft = ""
	st.hasDraft = false
	// a translation of the replaced text is worse than none
	st.derived = ""
	st.hasDerived = false
	w.deps.Hub.Emit(notify.TopicHistory)
}

// Translate requests a translation of the entry's current text. A busy
// entry rejects the request; at most one call per entry is outstanding.
func (w *Workflow) Translate(e Entry) bool {
	if w.disposed {
		return false
	}
	st := w.at(e.ID)
	if st.state != EntryIdle && st.state != EntryError {
		return false
	}
	st.state = EntryTranslating
	st.reason = ""
	gen := w.issueGen(st)

	args := map[string]any{"text": e.Text}
	w.deps.Gateway.Invoke(context.Background(), OpTranslate, args, func(res gateway.Result) {
		w.deps.Post(func() { w.resolveTranslate(e.ID, gen, res) })
	})
	return true
}

func (w *Workflow) resolveTranslate(id int64, gen int, res gateway.Result) {
	st := w.alive(id, gen)
	if st == nil {
		return
	}
	if res.Err != nil {
		st.state = EntryError
		st.reason = res.Err.Error()
		return
	}
	text, _ := res.Value.(string)
	st.derived = text
	st.hasDerived = true
	st.state = EntryIdle
}

// ToggleSaved flips the entry's keep-forever flag.
func (w *Workflow) ToggleSaved(e Entry) bool {
	return w.simpleMutation(e.ID, OpToggleSaved, map[string]any{"id": e.ID})
}

// Delete removes the entry. The list view drops it on the invalidation
// re-fetch, which also discards its tracked state.
func (w *Workflow) Delete(e Entry) bool {
	return w.simpleMutation(e.ID, OpDelete, map[string]any{"id": e.ID})
}

func (w *Workflow) simpleMutation(id int64, op string, args map[string]any) bool {
	if w.disposed {
		return false
	}
	st := w.at(id)
	if st.state != EntryIdle && st.state != EntryError {
		return false
	}
	st.state = EntrySaving
	st.reason = ""
	gen := w.issueGen(st)

	w.deps.Gateway.Invoke(context.Background(), op, args, func(res gateway.Result) {
		w.deps.Post(func() { w.resolveSimple(id, gen, res.Err) })
	})
	return true
}

func (w *Workflow) resolveSimple(id int64, gen int, err error) {
	st := w.alive(id, gen)
	if st == nil {
		return
	}
	if err != nil {
		st.state = EntryError
		st.reason = err.Error()
		return
	}
	st.state = EntryIdle
	w.deps.Hub.Emit(notify.TopicHistory)
}

// alive filters zombie results: the workflow may be disposed, the entry
// gone from the latest list, or the call superseded.
func (w *Workflow) alive(id int64, gen int) *entryState {
	if w.disposed {
		return nil
	}
	st, ok := w.entries[id]
	if !ok || st.gen != gen {
		return nil
	}
	return st
}

// Dispose detaches the workflow; results of in-flight calls are dropped.
func (w *Workflow) Dispose() {
	w.disposed = true
}
