// Package cli is the composer command line. Without a subcommand it starts
// the terminal UI.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gemini-composer/internal/config"
	"gemini-composer/internal/gemini"
	"gemini-composer/internal/httpclient"
	"gemini-composer/internal/logging"
	"gemini-composer/internal/session"
	"gemini-composer/internal/store"
	"gemini-composer/internal/tui"
)

type App struct {
	Config   config.Config
	DBPath   string
	LogLevel string

	// newGenerator builds the Gemini client; tests replace it.
	newGenerator func(cfg config.Config, logger zerolog.Logger) session.Generator
	// interactive reports whether the root command should open the TUI.
	interactive func(cmd *cobra.Command) bool
}

func NewRootCmd(cfg config.Config) *cobra.Command {
	return newRootCmd(&App{Config: cfg})
}

func newRootCmd(app *App) *cobra.Command {
	if app.newGenerator == nil {
		app.newGenerator = newGeminiClient
	}
	if app.interactive == nil {
		app.interactive = isTerminal
	}

	cmd := &cobra.Command{
		Use:           "composer",
		Short:         "Compose Gemini conversations from text and image items",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: strings.TrimSpace(`
  # Start the interactive terminal UI
  composer

  # Scriptable commands; items are addressed by position (1, 2, ...) or id
  composer add user
  composer text 2 "draw a cat wearing a hat"
  composer generate 2 --mode image
  composer download 3 --out cat.png
`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI on a terminal, listing otherwise.
			if app.interactive(cmd) {
				return runTUI(cmd, app)
			}
			return runList(cmd, app)
		},
	}

	cmd.PersistentFlags().StringVar(&app.DBPath, "db", app.Config.DBPath, "Path to the composer database (env COMPOSER_DB)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", app.Config.LogLevel, "Log level (debug|info|warn|error)")

	cmd.AddCommand(newListCmd(app))
	cmd.AddCommand(newAddCmd(app))
	cmd.AddCommand(newRemoveCmd(app))
	cmd.AddCommand(newMoveCmd(app))
	cmd.AddCommand(newRoleCmd(app))
	cmd.AddCommand(newTypeCmd(app))
	cmd.AddCommand(newTextCmd(app))
	cmd.AddCommand(newImageCmd(app))
	cmd.AddCommand(newGenerateCmd(app))
	cmd.AddCommand(newDownloadCmd(app))
	cmd.AddCommand(newKeyCmd(app))
	cmd.AddCommand(newCycleCmd(app))
	cmd.AddCommand(newClearCmd(app))
	cmd.AddCommand(newDumpCmd(app))

	return cmd
}

// workspace is one opened session over the database; close releases it.
type workspace struct {
	sess   *session.Session
	logger zerolog.Logger
	close  func()
}

func openWorkspace(cmd *cobra.Command, app *App, logOut io.Writer, hooks session.Options) (*workspace, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if logOut == nil {
		logOut = cmd.ErrOrStderr()
	}
	logger := logging.New(app.LogLevel, app.Config.LogFormat, logOut)

	kv, err := store.OpenSQLite(ctx, app.DBPath)
	if err != nil {
		return nil, err
	}

	hooks.KV = kv
	hooks.Logger = logger
	hooks.Generator = app.newGenerator(app.Config, logger)
	hooks.APIKey = app.Config.GeminiAPIKey
	hooks.Policy = session.SubmitPolicy(app.Config.SubmitPolicy)
	hooks.RequestTimeout = app.Config.RequestTimeout()

	sess, err := session.Open(ctx, hooks)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	return &workspace{
		sess:   sess,
		logger: logger,
		close: func() {
			if err := kv.Close(); err != nil {
				logger.Warn().Err(err).Msg("close database")
			}
		},
	}, nil
}

func newGeminiClient(cfg config.Config, logger zerolog.Logger) session.Generator {
	return gemini.New(gemini.Options{
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		ImageModel: cfg.ImageModel,
		TextModel:  cfg.TextModel,
		HTTPClient: httpclient.New(httpclient.Options{
			PreferIPv4: cfg.PreferIPv4,
			Timeout:    cfg.HTTPTimeout(),
			Logger:     logger,
		}),
		Logger: logger,
	})
}

func runTUI(cmd *cobra.Command, app *App) error {
	// The terminal belongs to the UI, so logs go to a file next to the database.
	logPath := filepath.Join(filepath.Dir(app.DBPath), "composer.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return writeErr(cmd, errors.Wrap(err, "open log file"))
	}
	defer logFile.Close()

	events := tui.NewEvents()
	ws, err := openWorkspace(cmd, app, logFile, session.Options{
		OnPatch:  events.OnPatch,
		OnNotice: events.OnNotice,
		OnTick:   events.OnTick,
	})
	if err != nil {
		return writeErr(cmd, err)
	}
	defer ws.close()

	return tui.Run(ws.sess, events, tui.Options{})
}

func isTerminal(cmd *cobra.Command) bool {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isatty.IsTerminal(in.Fd()) {
		return false
	}
	out, ok := cmd.OutOrStdout().(*os.File)
	return ok && isatty.IsTerminal(out.Fd())
}

// writeErr prints the user-facing message for err and returns err so the
// process exits non-zero.
func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), session.Message(err))
	return err
}
