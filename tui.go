package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ZawYePhyo/Handy/clipboard"
	"github.com/ZawYePhyo/Handy/fieldsync"
	"github.com/ZawYePhyo/Handy/history"
	"github.com/ZawYePhyo/Handy/settings"
)

// TUI message types
type applyMsg struct{ fn func() } // continuation posted from an async completion
type settingsChangedMsg struct{}
type historyChangedMsg struct{}
type entriesLoadedMsg struct {
	entries []history.Entry
	err     error
}

type pane int

const (
	paneSettings pane = iota
	paneHistory
)

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

// postToUI schedules fn on the Bubble Tea update loop, which is the
// single thread all controller and workflow state lives on. Before the
// program starts (and in tests) it runs fn inline.
func postToUI(fn func()) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(applyMsg{fn})
		return
	}
	fn()
}

var (
	styleTitle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleDirty   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleSaved   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleText    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleDerived = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleCursor  = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	styleHelp    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

type tuiModel struct {
	app *App

	pane          pane
	width, height int

	entries []history.Entry
	cursor  int
	editing bool
	editID  int64 // entry being edited; survives list reloads, unlike cursor
	editBuf string
	status  string
}

func NewTUIProgram(app *App) *tea.Program {
	m := tuiModel{app: app}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func waitForSignal(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return msg
	}
}

func (m tuiModel) loadEntries() tea.Cmd {
	app := m.app
	return func() tea.Msg {
		limit := app.Settings.Current().HistoryLimit
		entries, err := app.History.Entries(context.Background(), limit)
		return entriesLoadedMsg{entries: entries, err: err}
	}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(
		m.loadEntries(),
		waitForSignal(m.app.settingsCh, settingsChangedMsg{}),
		waitForSignal(m.app.historyCh, historyChangedMsg{}),
	)
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case applyMsg:
		msg.fn()

	case settingsChangedMsg:
		// external edit of the settings file; never clobbers a dirty draft
		m.app.Field.ExternalRefresh(m.app.Settings.APIKey(settings.APIKeyGemini))
		return m, waitForSignal(m.app.settingsCh, settingsChangedMsg{})

	case historyChangedMsg:
		return m, tea.Batch(
			m.loadEntries(),
			waitForSignal(m.app.historyCh, historyChangedMsg{}),
		)

	case entriesLoadedMsg:
		if msg.err != nil {
			m.status = "history load failed: " + msg.err.Error()
			return m, nil
		}
		m.entries = msg.entries
		m.app.Workflow.SyncEntries(msg.entries)
		if m.cursor >= len(m.entries) {
			m.cursor = len(m.entries) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		// the edited entry may have been deleted out from under us
		if m.editing && !m.hasEntry(m.editID) {
			m.editing = false
			m.editBuf = ""
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.status = ""

	if m.editing {
		return m.handleEditKey(msg)
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		if m.pane == paneSettings {
			m.pane = paneHistory
		} else {
			m.pane = paneSettings
		}
		return m, nil
	}

	if m.pane == paneSettings {
		return m.handleSettingsKey(msg)
	}
	return m.handleHistoryKey(msg)
}

func (m tuiModel) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.app.Field
	switch msg.Type {
	case tea.KeyRunes:
		c.Edit(c.Draft() + string(msg.Runes))
	case tea.KeySpace:
		c.Edit(c.Draft() + " ")
	case tea.KeyBackspace:
		if d := c.Draft(); d != "" {
			c.Edit(d[:len(d)-1])
		}
	case tea.KeyEnter:
		c.Save()
	default:
		if msg.String() == "ctrl+s" {
			c.Save()
		}
	}
	return m, nil
}

func (m tuiModel) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.entries) == 0 {
		return m, nil
	}
	e := m.entries[m.cursor]
	wf := m.app.Workflow

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}
	case "e":
		if wf.BeginEdit(e) {
			m.editing = true
			m.editID = e.ID
			m.editBuf = wf.Text(e.ID, e.Text)
		} else {
			m.status = "entry is busy"
		}
	case "t":
		if !wf.Translate(e) {
			m.status = "entry is busy"
		}
	case "s":
		if !wf.ToggleSaved(e) {
			m.status = "entry is busy"
		}
	case "d":
		if !wf.Delete(e) {
			m.status = "entry is busy"
		}
	case "y":
		if err := clipboard.Copy(wf.Text(e.ID, e.Text)); err != nil {
			m.status = err.Error()
		} else {
			m.status = "copied to clipboard"
		}
	}
	return m, nil
}

func (m tuiModel) hasEntry(id int64) bool {
	for _, e := range m.entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (m tuiModel) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// address the edit by the id captured at BeginEdit, never by cursor:
	// a list reload while editing can shift indices under us
	id := m.editID
	wf := m.app.Workflow

	switch msg.Type {
	case tea.KeyEsc:
		wf.CancelEdit(id)
		m.editing = false
		m.editBuf = ""
	case tea.KeyEnter:
		if wf.CommitEdit(id, m.editBuf) {
			m.editing = false
			m.editBuf = ""
		}
	case tea.KeyBackspace:
		if m.editBuf != "" {
			m.editBuf = trimLastRune(m.editBuf)
			wf.EditDraft(id, m.editBuf)
		}
	case tea.KeySpace:
		m.editBuf += " "
		wf.EditDraft(id, m.editBuf)
	case tea.KeyRunes:
		m.editBuf += string(msg.Runes)
		wf.EditDraft(id, m.editBuf)
	}
	return m, nil
}

func trimLastRune(s string) string {
	runes := []rune(s)
	return string(runes[:len(runes)-1])
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.viewSettings())
	b.WriteString("\n")
	b.WriteString(m.viewHistory())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(styleDim.Render(m.status) + "\n")
	}
	b.WriteString(m.viewHelp())
	return b.String()
}

func (m tuiModel) viewSettings() string {
	c := m.app.Field

	marker := "  "
	if m.pane == paneSettings {
		marker = styleCursor.Render("> ")
	}

	var state string
	switch c.State() {
	case fieldsync.StateDirty:
		state = styleDirty.Render("[unsaved — enter to save]")
	case fieldsync.StateSaving:
		state = styleDim.Render("[saving…]")
	case fieldsync.StateSaved:
		state = styleSaved.Render("[✓ saved]")
	case fieldsync.StateFailed:
		state = styleError.Render("[save failed: " + c.Reason() + "]")
	}

	value := c.Draft()
	if value == "" {
		value = styleDim.Render("(not set)")
	} else {
		value = styleText.Render(value)
	}

	return styleTitle.Render("Settings") + "\n" +
		fmt.Sprintf("%sGemini API key: %s %s\n", marker, value, state)
}

func (m tuiModel) viewHistory() string {
	wf := m.app.Workflow

	var b strings.Builder
	b.WriteString(styleTitle.Render("History") + "\n")

	if len(m.entries) == 0 {
		b.WriteString(styleDim.Render("  No transcriptions yet") + "\n")
		return b.String()
	}

	for i, e := range m.entries {
		marker := "  "
		if m.pane == paneHistory && i == m.cursor {
			marker = styleCursor.Render("> ")
		}
		star := " "
		if e.Saved {
			star = styleSaved.Render("★")
		}

		text := wf.Text(e.ID, e.Text)
		if m.editing && e.ID == m.editID {
			text = m.editBuf + styleCursor.Render("▌")
		} else {
			text = styleText.Render(text)
		}

		var suffix string
		switch wf.State(e.ID) {
		case history.EntrySaving:
			suffix = " " + styleDim.Render("[saving…]")
		case history.EntryTranslating:
			suffix = " " + styleDim.Render("[translating…]")
		case history.EntryError:
			suffix = " " + styleError.Render("[error: "+wf.Reason(e.ID)+"]")
		}

		ts := time.Unix(e.Timestamp, 0).Format("Jan 2 15:04")
		b.WriteString(fmt.Sprintf("%s%s %s  %s%s\n", marker, star, styleDim.Render(ts), text, suffix))

		if derived, ok := wf.Derived(e.ID); ok {
			b.WriteString("      " + styleDerived.Render("→ "+derived) + "\n")
		}
	}
	return b.String()
}

func (m tuiModel) viewHelp() string {
	if m.editing {
		return styleHelp.Render("enter commit · esc cancel")
	}
	if m.pane == paneSettings {
		return styleHelp.Render("type to edit · enter save · tab history · q quit")
	}
	return styleHelp.Render("e edit · t translate · s keep · d delete · y copy · tab settings · q quit")
}
