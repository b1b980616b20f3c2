package content

import "errors"

var (
	ErrNotFound = errors.New("content item not found")
	ErrLastItem = errors.New("at least one content item is required")
)

type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

func ParseDirection(value string) (Direction, bool) {
	switch value {
	case "up", "-1":
		return Up, true
	case "down", "1", "+1":
		return Down, true
	}
	return 0, false
}

// List is the ordered conversation. It is not safe for concurrent use; the
// session that owns it serializes access.
type List struct {
	items []Item
	ids   *IDSource
}

// NewList builds a list from previously stored items. Zero or duplicate ids are
// replaced, and an empty input yields a single blank user item.
func NewList(ids *IDSource, items []Item) *List {
	if ids == nil {
		ids = NewIDSource(0)
	}
	l := &List{ids: ids}

	for _, it := range items {
		if it.ID > 0 {
			ids.Observe(it.ID)
		}
	}

	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if it.ID <= 0 || seen[it.ID] {
			it.ID = ids.Next()
		}
		seen[it.ID] = true
		l.items = append(l.items, normalize(it))
	}

	if len(l.items) == 0 {
		l.Append(RoleUser)
	}
	return l
}

func (l *List) Len() int {
	return len(l.items)
}

func (l *List) Items() []Item {
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List) Index(id int64) int {
	for i, it := range l.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (l *List) Get(id int64) (Item, bool) {
	idx := l.Index(id)
	if idx < 0 {
		return Item{}, false
	}
	return l.items[idx], true
}

func (l *List) Append(role Role) Item {
	it := l.blank(role)
	l.items = append(l.items, it)
	return it
}

func (l *List) InsertAfter(role Role, anchorID int64) Item {
	it := l.blank(role)
	l.insertAfter(it, anchorID)
	return it
}

// InsertExisting places a fully formed item (a model reply) after the anchor,
// or at the end when the anchor is gone.
func (l *List) InsertExisting(it Item, anchorID int64) Item {
	if it.ID <= 0 || l.Index(it.ID) >= 0 {
		it.ID = l.ids.Next()
	} else {
		l.ids.Observe(it.ID)
	}
	it = normalize(it)
	l.insertAfter(it, anchorID)
	return it
}

func (l *List) Remove(id int64) error {
	idx := l.Index(id)
	if idx < 0 {
		return ErrNotFound
	}
	if len(l.items) <= 1 {
		return ErrLastItem
	}
	l.items = append(l.items[:idx], l.items[idx+1:]...)
	return nil
}

// Move swaps the item with its neighbour. It reports false when the item is
// already at the boundary in that direction.
func (l *List) Move(id int64, dir Direction) (bool, error) {
	idx := l.Index(id)
	if idx < 0 {
		return false, ErrNotFound
	}
	if dir != Up && dir != Down {
		return false, nil
	}
	target := idx + int(dir)
	if target < 0 || target >= len(l.items) {
		return false, nil
	}
	l.items[idx], l.items[target] = l.items[target], l.items[idx]
	return true, nil
}

func (l *List) SetRole(id int64, role Role) error {
	return l.update(id, func(it *Item) { it.Role = ParseRole(string(role)) })
}

func (l *List) SetType(id int64, typ Type) error {
	return l.update(id, func(it *Item) { it.Type = ParseType(string(typ)) })
}

func (l *List) ToggleType(id int64) (Type, error) {
	var out Type
	err := l.update(id, func(it *Item) {
		if it.Type == TypeText {
			it.Type = TypeImage
		} else {
			it.Type = TypeText
		}
		out = it.Type
	})
	return out, err
}

func (l *List) SetText(id int64, text string) error {
	return l.update(id, func(it *Item) { it.Text = text })
}

// SetImage stores base64 data. Empty data clears the image; a missing mime
// type falls back to DefaultImageMime.
func (l *List) SetImage(id int64, data, mimeType string) error {
	return l.update(id, func(it *Item) {
		it.ImageData = data
		it.MimeType = mimeType
		*it = normalize(*it)
	})
}

// Clear drops everything and starts over with one blank user item.
func (l *List) Clear() Item {
	l.items = nil
	return l.Append(RoleUser)
}

func (l *List) blank(role Role) Item {
	return Item{
		ID:   l.ids.Next(),
		Role: ParseRole(string(role)),
		Type: TypeText,
	}
}

func (l *List) insertAfter(it Item, anchorID int64) {
	idx := l.Index(anchorID)
	if idx < 0 {
		l.items = append(l.items, it)
		return
	}
	l.items = append(l.items, Item{})
	copy(l.items[idx+2:], l.items[idx+1:])
	l.items[idx+1] = it
}

func (l *List) update(id int64, fn func(*Item)) error {
	idx := l.Index(id)
	if idx < 0 {
		return ErrNotFound
	}
	fn(&l.items[idx])
	return nil
}

func normalize(it Item) Item {
	it.Role = ParseRole(string(it.Role))
	it.Type = ParseType(string(it.Type))
	if it.ImageData == "" {
		it.MimeType = ""
	} else if it.MimeType == "" {
		it.MimeType = DefaultImageMime
	}
	return it
}
