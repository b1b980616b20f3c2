// Package view derives what a rendered content item should look like from the
// model alone, so every surface (terminal, Telegram, HTTP) shares one set of rules.
package view

import (
	"fmt"
	"time"

	"gemini-composer/internal/content"
)

type Panel string

const (
	PanelText  Panel = "text"
	PanelImage Panel = "image"
)

// Controls lists which per-item controls are shown at all. Enabled/disabled
// is carried separately by State.
type Controls struct {
	AspectRatio   bool `json:"aspectRatio" yaml:"aspectRatio"`
	ImageSize     bool `json:"imageSize" yaml:"imageSize"`
	GenerateImage bool `json:"generateImage" yaml:"generateImage"`
	GenerateText  bool `json:"generateText" yaml:"generateText"`
	Download      bool `json:"download" yaml:"download"`
}

type State struct {
	// Removable also gates move up / move down.
	Removable   bool     `json:"removable" yaml:"removable"`
	CanDownload bool     `json:"canDownload" yaml:"canDownload"`
	CanGenerate bool     `json:"canGenerate" yaml:"canGenerate"`
	ActivePanel Panel    `json:"activePanel" yaml:"activePanel"`
	Visible     Controls `json:"visible" yaml:"visible"`
}

func Derive(item content.Item, listLen int) State {
	isUser := item.Role == content.RoleUser
	isModel := item.Role == content.RoleModel

	st := State{
		Removable:   listLen > 1,
		CanGenerate: isUser && (item.HasText() || item.HasImage()),
		ActivePanel: PanelText,
		Visible: Controls{
			AspectRatio:   isUser,
			ImageSize:     isUser,
			GenerateImage: isUser,
			GenerateText:  isUser,
			Download:      isModel,
		},
	}

	if item.Type == content.TypeImage {
		st.ActivePanel = PanelImage
	}

	if isModel {
		switch item.Type {
		case content.TypeImage:
			st.CanDownload = item.HasImage()
		default:
			st.CanDownload = item.HasText()
		}
	}

	return st
}

// Elapsed is the running-time label shown on a generate control while its
// call is outstanding.
func Elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
