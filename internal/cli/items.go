package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gemini-composer/internal/content"
	"gemini-composer/internal/session"
	"gemini-composer/internal/view"
)

const previewWidth = 60

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the items of the conversation",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, app)
		},
	}
}

func runList(cmd *cobra.Command, app *App) error {
	ws, err := openWorkspace(cmd, app, nil, session.Options{})
	if err != nil {
		return writeErr(cmd, err)
	}
	defer ws.close()

	printList(cmd.OutOrStdout(), ws.sess.Snapshot())
	return nil
}

func printList(w io.Writer, snap session.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tROLE\tTYPE\tCONTENT")
	for _, n := range snap.Nodes {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", n.Index+1, n.Item.ID, n.Item.Role, n.Item.Type, preview(n))
	}
	_ = tw.Flush()

	key := "not set"
	if snap.HasAPIKey {
		key = "set"
	}
	fmt.Fprintf(w, "\naspect %s · size %s · API key %s\n", snap.Selection.AspectRatio, snap.Selection.ImageSize, key)
}

func preview(n view.Node) string {
	it := n.Item
	if n.State.ActivePanel == view.PanelImage {
		if !it.HasImage() {
			return "(no image)"
		}
		return fmt.Sprintf("[%s, %d bytes]", it.MimeType, len(it.ImageData)*3/4)
	}
	if !it.HasText() {
		return "(empty)"
	}
	text := strings.Join(strings.Fields(it.Text), " ")
	if r := []rune(text); len(r) > previewWidth {
		text = string(r[:previewWidth-1]) + "…"
	}
	return text
}

// resolveItem accepts a 1-based position or an item id.
func resolveItem(sess *session.Session, ref string) (content.Item, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(ref), "#"), 10, 64)
	if err != nil {
		return content.Item{}, errors.Errorf("invalid item reference %q", ref)
	}

	nodes := sess.Snapshot().Nodes
	if n >= 1 && n <= int64(len(nodes)) {
		return nodes[n-1].Item, nil
	}
	if it, ok := sess.Item(n); ok {
		return it, nil
	}
	return content.Item{}, content.ErrNotFound
}

// itemCmd is the shape shared by commands that act on one item.
func itemCmd(app *App, use, short string, args cobra.PositionalArgs, run func(cmd *cobra.Command, ws *workspace, it content.Item, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, app, nil, session.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.close()

			it, err := resolveItem(ws.sess, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := run(cmd, ws, it, args[1:]); err != nil {
				return writeErr(cmd, err)
			}
			return nil
		},
	}
}

func newAddCmd(app *App) *cobra.Command {
	var after string
	cmd := &cobra.Command{
		Use:   "add [user|model]",
		Short: "Add an empty text item at the end, or after --after",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd, app, nil, session.Options{})
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.close()

			role := content.RoleUser
			if len(args) == 1 {
				role = content.ParseRole(args[0])
			}

			var it content.Item
			if after != "" {
				anchor, err := resolveItem(ws.sess, after)
				if err != nil {
					return writeErr(cmd, err)
				}
				it = ws.sess.AddAfter(cmd.Context(), role, anchor.ID)
			} else {
				it = ws.sess.Add(cmd.Context(), role)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s item %d\n", it.Role, it.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&after, "after", "", "Insert after this item")
	return cmd
}

func newRemoveCmd(app *App) *cobra.Command {
	cmd := itemCmd(app, "rm <item>", "Remove an item", cobra.ExactArgs(1),
		func(cmd *cobra.Command, ws *workspace, it content.Item, _ []string) error {
			if err := ws.sess.Remove(cmd.Context(), it.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed item %d\n", it.ID)
			return nil
		})
	cmd.Aliases = []string{"remove"}
	return cmd
}

func newMoveCmd(app *App) *cobra.Command {
	return itemCmd(app, "move <item> <up|down>", "Swap an item with its neighbour", cobra.ExactArgs(2),
		func(cmd *cobra.Command, ws *workspace, it content.Item, args []string) error {
			dir, ok := content.ParseDirection(strings.ToLower(args[0]))
			if !ok {
				return errors.Errorf("direction must be up or down, got %q", args[0])
			}
			moved, err := ws.sess.Move(cmd.Context(), it.ID, dir)
			if err != nil {
				return err
			}
			if !moved {
				fmt.Fprintln(cmd.OutOrStdout(), "already at the edge")
				return nil
			}
			printList(cmd.OutOrStdout(), ws.sess.Snapshot())
			return nil
		})
}

func newRoleCmd(app *App) *cobra.Command {
	return itemCmd(app, "role <item> <user|model>", "Set the role of an item", cobra.ExactArgs(2),
		func(cmd *cobra.Command, ws *workspace, it content.Item, args []string) error {
			role := content.ParseRole(args[0])
			if err := ws.sess.SetRole(cmd.Context(), it.ID, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %d is now %s\n", it.ID, role)
			return nil
		})
}

func newTypeCmd(app *App) *cobra.Command {
	return itemCmd(app, "type <item> [text|image]", "Set or toggle the type of an item", cobra.RangeArgs(1, 2),
		func(cmd *cobra.Command, ws *workspace, it content.Item, args []string) error {
			var typ content.Type
			if len(args) == 0 {
				var err error
				if typ, err = ws.sess.ToggleType(cmd.Context(), it.ID); err != nil {
					return err
				}
			} else {
				typ = content.ParseType(args[0])
				if err := ws.sess.SetType(cmd.Context(), it.ID, typ); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %d is now %s\n", it.ID, typ)
			return nil
		})
}

func newTextCmd(app *App) *cobra.Command {
	return itemCmd(app, "text <item> [text...]", "Set the text of an item (reads stdin when no text is given)", cobra.MinimumNArgs(1),
		func(cmd *cobra.Command, ws *workspace, it content.Item, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "read stdin")
				}
				text = strings.TrimRight(string(raw), "\n")
			}
			return ws.sess.SetText(cmd.Context(), it.ID, text)
		})
}

func newImageCmd(app *App) *cobra.Command {
	return itemCmd(app, "image <item> <file|->", "Attach an image file to an item", cobra.ExactArgs(2),
		func(cmd *cobra.Command, ws *workspace, it content.Item, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errors.Wrapf(err, "read %s", args[0])
			}

			if err := ws.sess.SetImage(cmd.Context(), it.ID, data, ""); err != nil {
				return err
			}
			updated, _ := ws.sess.Item(it.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "attached %s to item %d\n", updated.MimeType, it.ID)
			return nil
		})
}
