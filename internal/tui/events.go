package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"gemini-composer/internal/session"
	"gemini-composer/internal/view"
)

type refreshMsg struct{}

type tickMsg session.Tick

// Events carries session callbacks into the bubbletea loop. Patches and
// notices collapse into one pending refresh because the model re-reads the
// snapshot; ticks beyond the buffer are dropped.
type Events struct {
	dirty chan struct{}
	ticks chan session.Tick
}

func NewEvents() *Events {
	return &Events{
		dirty: make(chan struct{}, 1),
		ticks: make(chan session.Tick, 16),
	}
}

func (e *Events) OnPatch(view.Patch) { e.markDirty() }

func (e *Events) OnNotice(string) { e.markDirty() }

func (e *Events) OnTick(t session.Tick) {
	select {
	case e.ticks <- t:
	default:
	}
}

func (e *Events) markDirty() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

// wait blocks until the session reports something.
func (e *Events) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-e.dirty:
			return refreshMsg{}
		case t := <-e.ticks:
			return tickMsg(t)
		}
	}
}
