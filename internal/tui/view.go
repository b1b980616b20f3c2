package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/view"
)

type Style struct {
	Title        lipgloss.Style
	Selected     lipgloss.Style
	Unselected   lipgloss.Style
	Header       lipgloss.Style
	Dim          lipgloss.Style
	Control      lipgloss.Style
	Disabled     lipgloss.Style
	Pending      lipgloss.Style
	Notice       lipgloss.Style
	Status       lipgloss.Style
	RoleUser     lipgloss.Style
	RoleModel    lipgloss.Style
	EditorBorder lipgloss.Style
}

func DefaultStyles() *Style {
	return &Style{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Selected:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("212")).Padding(0, 1),
		Unselected: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1),
		Header:     lipgloss.NewStyle().Bold(true),
		Dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		Control:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		Disabled:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")).Strikethrough(true),
		Pending:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Notice:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Status:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		RoleUser:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		RoleModel:  lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true),
		EditorBorder: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(lipgloss.Color("212")),
	}
}

func (m Model) View() string {
	if m.width == 0 {
		return "loading…"
	}

	parts := []string{m.headerView(), m.viewport.View()}
	if footer := m.footerView(); footer != "" {
		parts = append(parts, footer)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) headerView() string {
	key := "no API key (ctrl+k)"
	if m.snap.HasAPIKey {
		key = "API key set"
	}
	info := fmt.Sprintf("  %d items · aspect %s · size %s · %s",
		len(m.snap.Nodes), m.snap.Selection.AspectRatio, m.snap.Selection.ImageSize, key)
	return m.style.Title.Render("Gemini composer") + m.style.Dim.Render(info)
}

func (m Model) footerView() string {
	var lines []string
	if m.snap.Notice != "" {
		lines = append(lines, m.style.Notice.Render("⚠ "+m.snap.Notice))
	}
	if m.status != "" {
		lines = append(lines, m.style.Status.Render(m.status))
	}

	switch m.state {
	case StateEditText:
		lines = append(lines, m.style.EditorBorder.Render(m.editor.View()))
	case StatePromptKey, StatePromptImage:
		lines = append(lines, m.style.EditorBorder.Render(m.prompt.View()))
	}
	lines = append(lines, m.help.View(m.keys))
	return strings.Join(lines, "\n")
}

func (m *Model) recomputeSize() {
	if m.width == 0 {
		return
	}
	m.help.Width = m.width
	m.editor.SetWidth(m.width - 2)
	m.editor.SetHeight(6)
	m.prompt.Width = m.width - len(m.prompt.Prompt) - 2

	headerHeight := lipgloss.Height(m.headerView())
	footerHeight := lipgloss.Height(m.footerView())
	height := m.height - headerHeight - footerHeight
	if height < 1 {
		height = 1
	}
	m.viewport.Width = m.width
	m.viewport.Height = height
	m.renderContent()
}

// renderContent redraws every item into the viewport and keeps the cursor in
// view.
func (m *Model) renderContent() {
	if m.width == 0 {
		return
	}

	var b strings.Builder
	m.lineOffsets = m.lineOffsets[:0]
	line := 0
	for i, n := range m.snap.Nodes {
		block := m.nodeView(n, i == m.cursor)
		m.lineOffsets = append(m.lineOffsets, line)
		b.WriteString(block)
		b.WriteString("\n")
		line += lipgloss.Height(block)
	}
	m.viewport.SetContent(strings.TrimRight(b.String(), "\n"))

	if m.cursor >= len(m.lineOffsets) {
		return
	}
	top := m.lineOffsets[m.cursor]
	bottom := line
	if m.cursor+1 < len(m.lineOffsets) {
		bottom = m.lineOffsets[m.cursor+1]
	}
	switch {
	case top < m.viewport.YOffset:
		m.viewport.SetYOffset(top)
	case bottom > m.viewport.YOffset+m.viewport.Height:
		m.viewport.SetYOffset(bottom - m.viewport.Height)
	}
}

func (m Model) nodeView(n view.Node, selected bool) string {
	box := m.style.Unselected
	if selected {
		box = m.style.Selected
	}
	frame, _ := box.GetFrameSize()
	inner := m.width - frame
	if inner < 10 {
		inner = 10
	}

	roleStyle := m.style.RoleUser
	if n.Item.Role == content.RoleModel {
		roleStyle = m.style.RoleModel
	}
	header := fmt.Sprintf("%s %s %s",
		m.style.Header.Render(fmt.Sprintf("#%d", n.Index+1)),
		roleStyle.Render(string(n.Item.Role)),
		m.style.Dim.Render("· "+string(n.Item.Type)))

	lines := []string{header, m.bodyView(n, inner), m.controlsView(n)}
	return box.Width(inner).Render(strings.Join(lines, "\n"))
}

func (m Model) bodyView(n view.Node, width int) string {
	it := n.Item
	if n.State.ActivePanel == view.PanelImage {
		if !it.HasImage() {
			return m.style.Dim.Render("(no image; press i to attach a file)")
		}
		return fmt.Sprintf("🖼  %s · %s", it.MimeType, humanBytes(len(it.ImageData)*3/4))
	}

	if !it.HasText() {
		return m.style.Dim.Render("(empty; press enter to edit)")
	}
	if it.Role == content.RoleModel {
		return renderMarkdown(it.Text, width)
	}
	return lipgloss.NewStyle().Width(width).Render(it.Text)
}

func (m Model) controlsView(n view.Node) string {
	st := n.State
	var controls []string

	add := func(label string, enabled bool) {
		if enabled {
			controls = append(controls, m.style.Control.Render(label))
		} else {
			controls = append(controls, m.style.Disabled.Render(label))
		}
	}

	add("K/J move", st.Removable)
	add("x remove", st.Removable)
	if st.Visible.AspectRatio {
		add("[ "+m.snap.Selection.AspectRatio, true)
	}
	if st.Visible.ImageSize {
		add("] "+m.snap.Selection.ImageSize, true)
	}
	if st.Visible.GenerateText {
		if n.Pending.Text {
			controls = append(controls, m.style.Pending.Render("⏳ text "+view.Elapsed(m.elapsed[elapsedKey{n.Item.ID, gemini.ModeText}])))
		} else {
			add("g text", st.CanGenerate)
		}
	}
	if st.Visible.GenerateImage {
		if n.Pending.Image {
			controls = append(controls, m.style.Pending.Render("⏳ image "+view.Elapsed(m.elapsed[elapsedKey{n.Item.ID, gemini.ModeImage}])))
		} else {
			add("G image", st.CanGenerate)
		}
	}
	if st.Visible.Download {
		add("s save", st.CanDownload)
	}
	return strings.Join(controls, "  ")
}

func humanBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
