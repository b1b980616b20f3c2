package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gemini-composer/internal/content"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/session"
	"gemini-composer/internal/view"
)

func newGenerateCmd(app *App) *cobra.Command {
	var modeFlag string
	cmd := &cobra.Command{
		Use:   "generate <item>",
		Short: "Send the conversation and insert the reply after the item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, ok := gemini.ParseMode(strings.ToLower(modeFlag))
			if !ok {
				return writeErr(cmd, errors.Errorf("mode must be text or image, got %q", modeFlag))
			}

			errOut := cmd.ErrOrStderr()
			progress := isTTY(errOut)
			hooks := session.Options{}
			if progress {
				hooks.OnTick = func(t session.Tick) {
					fmt.Fprintf(errOut, "\rgenerating %s… %s", t.Mode, view.Elapsed(t.Elapsed))
				}
			}

			ws, err := openWorkspace(cmd, app, nil, hooks)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer ws.close()

			it, err := resolveItem(ws.sess, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}

			reply, err := ws.sess.Generate(cmd.Context(), it.ID, mode)
			if progress {
				fmt.Fprintln(errOut)
			}
			if err != nil {
				return writeErr(cmd, err)
			}

			out := cmd.OutOrStdout()
			if reply.Type == content.TypeImage {
				fmt.Fprintf(out, "inserted image item %d (%s)\n", reply.ID, reply.MimeType)
				return nil
			}
			fmt.Fprintln(out, reply.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&modeFlag, "mode", string(gemini.ModeText), "Reply modality (text|image)")
	return cmd
}

func newDownloadCmd(app *App) *cobra.Command {
	var out string
	cmd := itemCmd(app, "download <item>", "Save the text or image of a model item", cobra.ExactArgs(1),
		func(cmd *cobra.Command, ws *workspace, it content.Item, _ []string) error {
			f, err := ws.sess.Export(it.ID)
			if err != nil {
				return err
			}

			if out == "-" {
				_, err := cmd.OutOrStdout().Write(f.Data)
				return err
			}
			path := out
			if path == "" {
				path = f.Name
			}
			if err := os.WriteFile(path, f.Data, 0o644); err != nil {
				return errors.Wrapf(err, "write %s", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
			return nil
		})
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file; - writes to stdout (default: generated name)")
	return cmd
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
