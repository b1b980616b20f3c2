package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"gemini-composer/internal/session"
	"gemini-composer/internal/view"
)

func newKeyCmd(app *App) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "key [api-key]",
		Short: "Store the Gemini API key; no argument removes it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var apiKey string
			switch {
			case fromStdin:
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return writeErr(cmd, errors.Wrap(err, "read stdin"))
				}
				apiKey = strings.TrimSpace(string(raw))
			case len(args) == 1:
				apiKey = args[0]
			}

			ws, err := openWorkspace(cmd, app, nil, session.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.close()

			ws.sess.SetAPIKey(cmd.Context(), apiKey)
			if strings.TrimSpace(apiKey) == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "API key removed")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "API key saved")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the key from stdin")
	return cmd
}

func newCycleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "cycle <aspect|size>",
		Short:     "Advance the image aspect ratio or size to its next option",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"aspect", "size"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, app, nil, session.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.close()

			switch strings.ToLower(args[0]) {
			case "aspect", "aspect-ratio", "ar":
				sel := ws.sess.CycleAspect(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "aspect ratio %s\n", sel.AspectRatio)
			case "size", "image-size":
				sel := ws.sess.CycleSize(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "image size %s\n", sel.ImageSize)
			default:
				return writeErr(cmd, errors.Errorf("unknown setting %q (aspect|size)", args[0]))
			}
			return nil
		},
	}
}

func newClearCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every item and start over with one empty user item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, app, nil, session.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.close()

			it := ws.sess.Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "cleared; new item %d\n", it.ID)
			return nil
		},
	}
}

type dumpNode struct {
	Item    dumpItem     `json:"item" yaml:"item"`
	State   view.State   `json:"state" yaml:"state"`
	Pending view.Pending `json:"pending" yaml:"pending,omitempty"`
}

type dumpItem struct {
	ID         int64  `json:"id" yaml:"id"`
	Role       string `json:"role" yaml:"role"`
	Type       string `json:"type" yaml:"type"`
	Text       string `json:"text" yaml:"text"`
	MimeType   string `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	ImageData  string `json:"imageData,omitempty" yaml:"imageData,omitempty"`
	ImageBytes int    `json:"imageBytes,omitempty" yaml:"imageBytes,omitempty"`
}

type dumpDoc struct {
	Items       []dumpNode `json:"items" yaml:"items"`
	AspectRatio string     `json:"aspectRatio" yaml:"aspectRatio"`
	ImageSize   string     `json:"imageSize" yaml:"imageSize"`
	HasAPIKey   bool       `json:"hasApiKey" yaml:"hasApiKey"`
	Notice      string     `json:"notice,omitempty" yaml:"notice,omitempty"`
}

func newDumpCmd(app *App) *cobra.Command {
	var (
		format     string
		withImages bool
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print every item with its derived view state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, app, nil, session.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.close()

			doc := buildDump(ws.sess.Snapshot(), withImages)
			if err := writeDump(cmd.OutOrStdout(), doc, format); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "Output format (json|yaml)")
	cmd.Flags().BoolVar(&withImages, "images", false, "Include base64 image data")
	return cmd
}

func buildDump(snap session.Snapshot, withImages bool) dumpDoc {
	doc := dumpDoc{
		Items:       make([]dumpNode, 0, len(snap.Nodes)),
		AspectRatio: snap.Selection.AspectRatio,
		ImageSize:   snap.Selection.ImageSize,
		HasAPIKey:   snap.HasAPIKey,
		Notice:      snap.Notice,
	}
	for _, n := range snap.Nodes {
		it := dumpItem{
			ID:       n.Item.ID,
			Role:     string(n.Item.Role),
			Type:     string(n.Item.Type),
			Text:     n.Item.Text,
			MimeType: n.Item.MimeType,
		}
		if n.Item.HasImage() {
			it.ImageBytes = len(n.Item.ImageData) * 3 / 4
			if withImages {
				it.ImageData = n.Item.ImageData
			}
		}
		doc.Items = append(doc.Items, dumpNode{Item: it, State: n.State, Pending: n.Pending})
	}
	return doc
}

func writeDump(w io.Writer, doc dumpDoc, format string) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return errors.Errorf("unknown format %q (json|yaml)", format)
	}
}
