// Package tui is the interactive terminal front end of the composer.
package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/session"
)

type State string

const (
	StateBrowse      State = "browse"
	StateEditText    State = "edit_text"
	StatePromptKey   State = "prompt_key"
	StatePromptImage State = "prompt_image"
)

type generateDoneMsg struct {
	mode gemini.Mode
	err  error
}

type actionDoneMsg struct {
	status string
	err    error
}

type elapsedKey struct {
	id   int64
	mode gemini.Mode
}

type Options struct {
	// SaveDir receives downloaded items; defaults to the working directory.
	SaveDir string
}

type Model struct {
	sess   *session.Session
	events *Events

	keys     KeyMap
	help     help.Model
	viewport viewport.Model
	editor   textarea.Model
	prompt   textinput.Model
	style    *Style

	state     State
	snap      session.Snapshot
	cursor    int
	editingID int64
	elapsed   map[elapsedKey]time.Duration
	status    string
	saveDir   string

	width  int
	height int
	// lineOffsets[i] is the first content line of item i.
	lineOffsets []int
}

func New(sess *session.Session, events *Events, opts Options) Model {
	if events == nil {
		events = NewEvents()
	}
	saveDir := opts.SaveDir
	if saveDir == "" {
		saveDir = "."
	}

	editor := textarea.New()
	editor.Placeholder = "Type the content of this item…"
	editor.ShowLineNumbers = false

	prompt := textinput.New()

	m := Model{
		sess:     sess,
		events:   events,
		keys:     DefaultKeyMap,
		help:     help.New(),
		viewport: viewport.New(0, 0),
		editor:   editor,
		prompt:   prompt,
		style:    DefaultStyles(),
		state:    StateBrowse,
		elapsed:  make(map[elapsedKey]time.Duration),
		saveDir:  saveDir,
	}
	m.snap = sess.Snapshot()
	m.keys.editing(false)
	return m
}

func (m Model) Init() tea.Cmd {
	return m.events.wait()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recomputeSize()
		return m, nil

	case refreshMsg:
		m.refresh()
		return m, m.events.wait()

	case tickMsg:
		m.elapsed[elapsedKey{msg.ItemID, msg.Mode}] = msg.Elapsed
		m.renderContent()
		return m, m.events.wait()

	case generateDoneMsg:
		if msg.err == nil {
			m.status = "Reply inserted."
		}
		m.refresh()
		return m, nil

	case actionDoneMsg:
		// Session failures surface as its notice; local file errors only carry a status.
		if msg.status != "" {
			m.status = msg.status
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case StateEditText:
			return m.updateEditor(msg)
		case StatePromptKey, StatePromptImage:
			return m.updatePrompt(msg)
		}
		return m.updateBrowse(msg)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	m.status = ""
	it, hasItem := m.current()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.recomputeSize()
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.renderContent()
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Nodes)-1 {
			m.cursor++
		}
		m.renderContent()
	case !hasItem:
		return m, nil

	case key.Matches(msg, m.keys.MoveUp):
		if moved, _ := m.sess.Move(ctx, it.ID, content.Up); moved {
			m.cursor--
		}
		m.refresh()
	case key.Matches(msg, m.keys.MoveDown):
		if moved, _ := m.sess.Move(ctx, it.ID, content.Down); moved {
			m.cursor++
		}
		m.refresh()
	case key.Matches(msg, m.keys.AddUser), key.Matches(msg, m.keys.AddModel):
		role := content.RoleUser
		if key.Matches(msg, m.keys.AddModel) {
			role = content.RoleModel
		}
		m.sess.AddAfter(ctx, role, it.ID)
		m.cursor++
		m.refresh()
	case key.Matches(msg, m.keys.Remove):
		_ = m.sess.Remove(ctx, it.ID)
		m.refresh()
	case key.Matches(msg, m.keys.Role):
		role := content.RoleModel
		if it.Role == content.RoleModel {
			role = content.RoleUser
		}
		_ = m.sess.SetRole(ctx, it.ID, role)
		m.refresh()
	case key.Matches(msg, m.keys.Type):
		_, _ = m.sess.ToggleType(ctx, it.ID)
		m.refresh()
	case key.Matches(msg, m.keys.Aspect):
		m.sess.CycleAspect(ctx)
		m.refresh()
	case key.Matches(msg, m.keys.Size):
		m.sess.CycleSize(ctx)
		m.refresh()
	case key.Matches(msg, m.keys.Clear):
		m.sess.Clear(ctx)
		m.cursor = 0
		m.refresh()

	case key.Matches(msg, m.keys.Edit):
		m.state = StateEditText
		m.editingID = it.ID
		m.editor.SetValue(it.Text)
		m.keys.editing(true)
		m.recomputeSize()
		cmd := m.editor.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Image):
		return m.openPrompt(StatePromptImage, it.ID, "Image file: ", textinput.EchoNormal)
	case key.Matches(msg, m.keys.APIKey):
		return m.openPrompt(StatePromptKey, 0, "API key: ", textinput.EchoPassword)

	case key.Matches(msg, m.keys.GenerateText):
		return m, m.generate(it.ID, gemini.ModeText)
	case key.Matches(msg, m.keys.GenerateImage):
		return m, m.generate(it.ID, gemini.ModeImage)
	case key.Matches(msg, m.keys.Download):
		return m, m.download(it.ID)
	}
	return m, nil
}

func (m Model) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		m.closeEditor()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		_ = m.sess.SetText(context.Background(), m.editingID, m.editor.Value())
		m.closeEditor()
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Cancel):
		m.closePrompt()
		return m, nil
	case msg.Type == tea.KeyEnter, key.Matches(msg, m.keys.Submit):
		value := strings.TrimSpace(m.prompt.Value())
		state, id := m.state, m.editingID
		m.closePrompt()

		if state == StatePromptKey {
			m.sess.SetAPIKey(context.Background(), value)
			m.status = "API key saved."
			if value == "" {
				m.status = "API key removed."
			}
			m.refresh()
			return m, nil
		}
		return m, m.loadImage(id, value)
	}

	var cmd tea.Cmd
	m.prompt, cmd = m.prompt.Update(msg)
	return m, cmd
}

func (m Model) openPrompt(state State, id int64, label string, echo textinput.EchoMode) (tea.Model, tea.Cmd) {
	m.state = state
	m.editingID = id
	m.prompt.Prompt = label
	m.prompt.EchoMode = echo
	m.prompt.SetValue("")
	m.keys.editing(true)
	m.recomputeSize()
	cmd := m.prompt.Focus()
	return m, cmd
}

func (m *Model) closeEditor() {
	m.editor.Blur()
	m.editor.Reset()
	m.state = StateBrowse
	m.editingID = 0
	m.keys.editing(false)
	m.recomputeSize()
}

func (m *Model) closePrompt() {
	m.prompt.Blur()
	m.prompt.Reset()
	m.state = StateBrowse
	m.editingID = 0
	m.keys.editing(false)
	m.recomputeSize()
}

// generate runs the call off the update loop; progress arrives as ticks and
// refreshes from the session.
func (m Model) generate(id int64, mode gemini.Mode) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		_, err := sess.Generate(context.Background(), id, mode)
		return generateDoneMsg{mode: mode, err: err}
	}
}

func (m Model) download(id int64) tea.Cmd {
	sess, dir := m.sess, m.saveDir
	return func() tea.Msg {
		f, err := sess.Export(id)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return actionDoneMsg{err: err, status: "Could not save " + path + ": " + err.Error()}
		}
		return actionDoneMsg{status: "Saved " + path}
	}
}

func (m Model) loadImage(id int64, path string) tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		if path == "" {
			return actionDoneMsg{}
		}
		data, err := os.ReadFile(expandHome(path))
		if err != nil {
			err = errors.Wrapf(err, "read %s", path)
			return actionDoneMsg{err: err, status: err.Error()}
		}
		if err := sess.SetImage(context.Background(), id, data, ""); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Image attached."}
	}
}

func (m *Model) refresh() {
	m.snap = m.sess.Snapshot()
	if m.cursor >= len(m.snap.Nodes) {
		m.cursor = len(m.snap.Nodes) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}

	live := make(map[elapsedKey]bool)
	for _, n := range m.snap.Nodes {
		if n.Pending.Image {
			live[elapsedKey{n.Item.ID, gemini.ModeImage}] = true
		}
		if n.Pending.Text {
			live[elapsedKey{n.Item.ID, gemini.ModeText}] = true
		}
	}
	for k := range m.elapsed {
		if !live[k] {
			delete(m.elapsed, k)
		}
	}
	m.renderContent()
}

func (m Model) current() (content.Item, bool) {
	if m.cursor < 0 || m.cursor >= len(m.snap.Nodes) {
		return content.Item{}, false
	}
	return m.snap.Nodes[m.cursor].Item, true
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
