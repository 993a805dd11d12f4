package history

import (
	"context"
	"errors"
	"testing"

	"github.com/ZawYePhyo/Handy/gateway"
	"github.com/ZawYePhyo/Handy/notify"
)

type fakeGateway struct {
	calls   []string
	sent    []map[string]any
	pending []func(gateway.Result)
}

func (g *fakeGateway) Invoke(_ context.Context, name string, args map[string]any, done func(gateway.Result)) {
	g.calls = append(g.calls, name)
	g.sent = append(g.sent, args)
	g.pending = append(g.pending, done)
}

func (g *fakeGateway) resolve(t *testing.T, r gateway.Result) {
	t.Helper()
	if len(g.pending) == 0 {
		t.Fatal("no pending invocation to resolve")
	}
	done := g.pending[0]
	g.pending = g.pending[1:]
	done(r)
}

type wfFixture struct {
	wf  *Workflow
	gw  *fakeGateway
	hub *notify.Hub
}

func newWfFixture() *wfFixture {
	f := &wfFixture{gw: &fakeGateway{}, hub: notify.NewHub()}
	f.wf = NewWorkflow(Deps{
		Gateway: f.gw,
		Hub:     f.hub,
		Post:    func(fn func()) { fn() },
	})
	return f
}

func TestCommitEditSuccess(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "old"}

	signal, cancel := f.hub.Subscribe(notify.TopicHistory)
	defer cancel()

	if !f.wf.BeginEdit(e) {
		t.Fatal("BeginEdit rejected on idle entry")
	}
	f.wf.EditDraft(1, "new")
	if !f.wf.CommitEdit(1, "new") {
		t.Fatal("CommitEdit rejected while editing")
	}
	if f.wf.State(1) != EntrySaving {
		t.Fatalf("state = %v, want saving", f.wf.State(1))
	}

	f.gw.resolve(t, gateway.Result{})

	if f.wf.State(1) != EntryIdle {
		t.Errorf("state = %v, want idle", f.wf.State(1))
	}
	if f.gw.calls[0] != OpUpdateText {
		t.Errorf("operation = %q, want %q", f.gw.calls[0], OpUpdateText)
	}
	if got := gateway.String(f.gw.sent[0], "new_text"); got != "new" {
		t.Errorf("sent text = %q, want new", got)
	}
	select {
	case <-signal:
	default:
		t.Error("successful commit must emit a history invalidation")
	}
}

func TestCommitEditFailureKeepsEditedText(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "old"}

	f.wf.BeginEdit(e)
	f.wf.CommitEdit(1, "new")
	f.gw.resolve(t, gateway.Result{Err: errors.New("network")})

	if f.wf.State(1) != EntryError {
		t.Fatalf("state = %v, want error", f.wf.State(1))
	}
	if f.wf.Reason(1) != "network" {
		t.Errorf("reason = %q, want network", f.wf.Reason(1))
	}
	// the view keeps showing the user's edit, not the original
	if got := f.wf.Text(1, "old"); got != "new" {
		t.Errorf("exposed text = %q, want new", got)
	}
}

func TestCommitRetryAfterFailure(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "old"}

	f.wf.BeginEdit(e)
	f.wf.CommitEdit(1, "new")
	f.gw.resolve(t, gateway.Result{Err: errors.New("network")})

	// retry through the same entry points
	if !f.wf.BeginEdit(e) {
		t.Fatal("BeginEdit rejected after failure")
	}
	if got := f.wf.Text(1, "old"); got != "new" {
		t.Errorf("retry draft = %q, want the preserved edit", got)
	}
	f.wf.CommitEdit(1, "new")
	f.gw.resolve(t, gateway.Result{})
	if f.wf.State(1) != EntryIdle {
		t.Errorf("state = %v, want idle after retry", f.wf.State(1))
	}
}

func TestCommitClearsDerivedText(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "foo"}

	f.wf.Translate(e)
	f.gw.resolve(t, gateway.Result{Value: "bar"})
	if d, ok := f.wf.Derived(1); !ok || d != "bar" {
		t.Fatalf("derived = %q ok=%v, want bar", d, ok)
	}

	f.wf.BeginEdit(e)
	f.wf.CommitEdit(1, "replaced")
	f.gw.resolve(t, gateway.Result{})

	if _, ok := f.wf.Derived(1); ok {
		t.Error("stale translation survived a text edit")
	}
}

func TestCancelEditRevertsWithoutRemoteCall(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "old"}

	f.wf.BeginEdit(e)
	f.wf.EditDraft(1, "half-typed")
	f.wf.CancelEdit(1)

	if f.wf.State(1) != EntryIdle {
		t.Errorf("state = %v, want idle", f.wf.State(1))
	}
	if got := f.wf.Text(1, "old"); got != "old" {
		t.Errorf("text after cancel = %q, want old", got)
	}
	if len(f.gw.calls) != 0 {
		t.Errorf("cancel issued %d remote calls", len(f.gw.calls))
	}
}

func TestTranslateSuccess(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "foo"}

	if !f.wf.Translate(e) {
		t.Fatal("Translate rejected on idle entry")
	}
	if f.wf.State(1) != EntryTranslating {
		t.Fatalf("state = %v, want translating", f.wf.State(1))
	}
	if got := gateway.String(f.gw.sent[0], "text"); got != "foo" {
		t.Errorf("sent text = %q, want foo", got)
	}

	f.gw.resolve(t, gateway.Result{Value: "bar"})

	if f.wf.State(1) != EntryIdle {
		t.Errorf("state = %v, want idle", f.wf.State(1))
	}
	if d, ok := f.wf.Derived(1); !ok || d != "bar" {
		t.Errorf("derived = %q ok=%v, want bar", d, ok)
	}
}

func TestTranslateWhileInFlightIsRejected(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "foo"}

	if !f.wf.Translate(e) {
		t.Fatal("first Translate rejected")
	}
	if f.wf.Translate(e) {
		t.Error("second Translate accepted while first outstanding")
	}
	if len(f.gw.calls) != 1 {
		t.Fatalf("got %d gateway calls, want exactly 1", len(f.gw.calls))
	}
}

func TestTranslateFailure(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "foo"}

	f.wf.Translate(e)
	f.gw.resolve(t, gateway.Result{Err: errors.New("all models failed")})

	if f.wf.State(1) != EntryError {
		t.Fatalf("state = %v, want error", f.wf.State(1))
	}
	if f.wf.Reason(1) != "all models failed" {
		t.Errorf("reason = %q", f.wf.Reason(1))
	}
	if _, ok := f.wf.Derived(1); ok {
		t.Error("failed translate must not set derived text")
	}
}

func TestMutationsOnDifferentEntriesRunConcurrently(t *testing.T) {
	f := newWfFixture()

	f.wf.Translate(Entry{ID: 1, Text: "a"})
	f.wf.Translate(Entry{ID: 2, Text: "b"})
	if len(f.gw.calls) != 2 {
		t.Fatalf("got %d calls, want 2 (entries are independent)", len(f.gw.calls))
	}

	// resolve out of order
	f.gw.pending[0], f.gw.pending[1] = f.gw.pending[1], f.gw.pending[0]
	f.gw.resolve(t, gateway.Result{Value: "B"})
	f.gw.resolve(t, gateway.Result{Value: "A"})

	if d, _ := f.wf.Derived(1); d != "A" {
		t.Errorf("entry 1 derived = %q, want A", d)
	}
	if d, _ := f.wf.Derived(2); d != "B" {
		t.Errorf("entry 2 derived = %q, want B", d)
	}
}

func TestSyncEntriesDiscardsVanishedState(t *testing.T) {
	f := newWfFixture()

	f.wf.Translate(Entry{ID: 1, Text: "gone soon"})
	f.wf.SyncEntries([]Entry{{ID: 2, Text: "still here"}})

	// the in-flight result for entry 1 lands after it vanished
	f.gw.resolve(t, gateway.Result{Value: "zombie"})

	if f.wf.State(1) != EntryIdle {
		t.Errorf("vanished entry state = %v, want idle (untracked)", f.wf.State(1))
	}
	if _, ok := f.wf.Derived(1); ok {
		t.Error("zombie result applied to a vanished entry")
	}
}

func TestToggleSavedEmitsInvalidation(t *testing.T) {
	f := newWfFixture()
	signal, cancel := f.hub.Subscribe(notify.TopicHistory)
	defer cancel()

	f.wf.ToggleSaved(Entry{ID: 3})
	if f.gw.calls[0] != OpToggleSaved {
		t.Fatalf("operation = %q", f.gw.calls[0])
	}
	f.gw.resolve(t, gateway.Result{})

	select {
	case <-signal:
	default:
		t.Error("toggle must emit a history invalidation")
	}
}

func TestDeleteBusyEntryRejected(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "x"}

	f.wf.Translate(e)
	if f.wf.Delete(e) {
		t.Error("Delete accepted while translation in flight")
	}
	if len(f.gw.calls) != 1 {
		t.Errorf("got %d calls, want 1", len(f.gw.calls))
	}
}

func TestDisposedWorkflowDropsResults(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "foo"}

	f.wf.Translate(e)
	f.wf.Dispose()
	f.gw.resolve(t, gateway.Result{Value: "bar"})

	if _, ok := f.wf.Derived(1); ok {
		t.Error("disposed workflow applied a zombie result")
	}
	if f.wf.BeginEdit(e) {
		t.Error("disposed workflow accepted BeginEdit")
	}
}

func TestEntryStateStrings(t *testing.T) {
	for s, want := range map[EntryState]string{
		EntryIdle:        "idle",
		EntryEditing:     "editing",
		EntrySaving:      "saving",
		EntryTranslating: "translating",
		EntryError:       "error",
		EntryState(99):   "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("EntryState(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestRecreatedEntryStateRejectsOldResults(t *testing.T) {
	f := newWfFixture()
	e := Entry{ID: 1, Text: "foo"}

	f.wf.Translate(e)
	// the entry drops off the list with the call still in flight,
	// then reappears and a fresh translation starts
	f.wf.SyncEntries(nil)
	f.wf.SyncEntries([]Entry{e})
	f.wf.Translate(e)

	// the first call's result lands; it was issued against state that
	// no longer exists and must not satisfy the second call
	f.gw.resolve(t, gateway.Result{Value: "stale"})

	if f.wf.State(1) != EntryTranslating {
		t.Fatalf("state = %v, want translating (second call still out)", f.wf.State(1))
	}
	if _, ok := f.wf.Derived(1); ok {
		t.Error("result of a superseded call applied to recreated state")
	}

	f.gw.resolve(t, gateway.Result{Value: "fresh"})
	if d, _ := f.wf.Derived(1); d != "fresh" {
		t.Errorf("derived = %q, want fresh", d)
	}
}
