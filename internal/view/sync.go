package view

import (
	"sort"

	"gemini-composer/internal/content"
)

// Pending marks which generate controls of an item have a call outstanding.
type Pending struct {
	Image bool `json:"image,omitempty" yaml:"image,omitempty"`
	Text  bool `json:"text,omitempty" yaml:"text,omitempty"`
}

func (p Pending) Any() bool {
	return p.Image || p.Text
}

// Node is everything a surface needs to draw one item.
type Node struct {
	Index   int          `json:"index"`
	Total   int          `json:"total"`
	Item    content.Item `json:"item"`
	State   State        `json:"state"`
	Pending Pending      `json:"pending"`
}

// Patch is the result of one synchronization: the nodes that must be
// (re)rendered, the ids whose nodes must go, and the full current order.
type Patch struct {
	Changed []Node
	Removed []int64
	Order   []int64
}

func (p Patch) Empty() bool {
	return len(p.Changed) == 0 && len(p.Removed) == 0
}

// Synchronizer remembers the last node it handed out per item and reports only
// what differs on the next Sync. It is owned by a single session.
type Synchronizer struct {
	applied map[int64]Node
}

func NewSynchronizer() *Synchronizer {
	return &Synchronizer{applied: make(map[int64]Node)}
}

// Nodes derives the current node for every item without touching the
// synchronizer's memory.
func Nodes(items []content.Item, pending map[int64]Pending) []Node {
	out := make([]Node, 0, len(items))
	for i, it := range items {
		out = append(out, Node{
			Index:   i,
			Total:   len(items),
			Item:    it,
			State:   Derive(it, len(items)),
			Pending: pending[it.ID],
		})
	}
	return out
}

func (s *Synchronizer) Sync(items []content.Item, pending map[int64]Pending) Patch {
	var patch Patch
	next := make(map[int64]Node, len(items))

	for _, n := range Nodes(items, pending) {
		next[n.Item.ID] = n
		patch.Order = append(patch.Order, n.Item.ID)
		if prev, ok := s.applied[n.Item.ID]; ok && prev == n {
			continue
		}
		patch.Changed = append(patch.Changed, n)
	}

	for id := range s.applied {
		if _, ok := next[id]; !ok {
			patch.Removed = append(patch.Removed, id)
		}
	}

	sort.Slice(patch.Removed, func(i, j int) bool { return patch.Removed[i] < patch.Removed[j] })

	s.applied = next
	return patch
}

// Reset forgets everything so the next Sync reports every item as changed.
func (s *Synchronizer) Reset() {
	s.applied = make(map[int64]Node)
}
