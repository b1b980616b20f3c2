package content

import (
	"strings"
	"sync/atomic"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// ParseRole maps anything that is not "model" to RoleUser.
func ParseRole(value string) Role {
	if strings.TrimSpace(strings.ToLower(value)) == string(RoleModel) {
		return RoleModel
	}
	return RoleUser
}

type Type string

const (
	TypeText  Type = "text"
	TypeImage Type = "image"
)

// ParseType maps anything that is not "image" to TypeText.
func ParseType(value string) Type {
	if strings.TrimSpace(strings.ToLower(value)) == string(TypeImage) {
		return TypeImage
	}
	return TypeText
}

const DefaultImageMime = "image/png"

// Item is one conversational turn. Text is kept when Type is image so that
// toggling back restores it; ImageData and MimeType are set together or not at all.
type Item struct {
	ID        int64  `json:"id" yaml:"id"`
	Role      Role   `json:"role" yaml:"role"`
	Type      Type   `json:"type" yaml:"type"`
	Text      string `json:"text" yaml:"text"`
	ImageData string `json:"imageData,omitempty" yaml:"imageData,omitempty"`
	MimeType  string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
}

func (it Item) HasImage() bool {
	return it.ImageData != ""
}

func (it Item) HasText() bool {
	return strings.TrimSpace(it.Text) != ""
}

// IDSource hands out strictly increasing ids. Observe lets ids loaded from
// storage push the counter forward so new ids never collide with them.
type IDSource struct {
	last atomic.Int64
}

func NewIDSource(seed int64) *IDSource {
	s := &IDSource{}
	s.last.Store(seed)
	return s
}

func (s *IDSource) Next() int64 {
	return s.last.Add(1)
}

func (s *IDSource) Observe(id int64) {
	for {
		cur := s.last.Load()
		if id <= cur {
			return
		}
		if s.last.CompareAndSwap(cur, id) {
			return
		}
	}
}
