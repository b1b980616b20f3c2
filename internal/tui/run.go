package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"gemini-composer/internal/session"
)

// Run blocks until the user quits. The session must have been opened with
// the callbacks of events.
func Run(sess *session.Session, events *Events, opts Options) error {
	p := tea.NewProgram(New(sess, events, opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "run terminal ui")
	}
	return nil
}
