package main

import (
	"context"
	"fmt"
	"os"

	"github.com/RichardoC/padchat/internal/api"
	"github.com/RichardoC/padchat/internal/config"
	"github.com/RichardoC/padchat/internal/db"
	"github.com/RichardoC/padchat/internal/llm"
	"github.com/RichardoC/padchat/internal/logging"
	"github.com/RichardoC/padchat/internal/session"
	"github.com/RichardoC/padchat/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v, envErr := config.NewViper()

	root := &cobra.Command{
		Use:   "padchat",
		Short: "Terminal chat client for a chat log backend",
		Long: `padchat sends prompts to a chat backend and shows the shared chat log.

Keys:
  enter         send the prompt
  alt+enter     insert a newline
  ctrl+t        switch model
  ctrl+l        clear the chat log
  ctrl+r        reload the chat log
  ctrl+c        quit`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return envErr
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg)
		},
	}
	if err := config.BindFlags(root.PersistentFlags(), v); err != nil {
		panic(err)
	}

	root.AddCommand(newDiagnosticsCmd(v))
	return root
}

func runChat(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogFile, cfg.Verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer logging.CaptureStdLog(logger)()

	state := session.NewState(cfg.Model, cfg.AltModel)
	sessionID := state.ID.String()

	client, err := api.New(cfg.BackendURL,
		api.WithAPIKey(cfg.APIKey),
		api.WithSessionID(sessionID),
	)
	if err != nil {
		return err
	}

	opts := []session.ControllerOption{session.WithTimeout(cfg.Timeout)}
	if cfg.DiagnosticsDB != "" {
		database, err := db.New(cfg.DiagnosticsDB)
		if err != nil {
			logger.Error("failed to initialize database",
				zap.Error(err),
				zap.String("dbPath", cfg.DiagnosticsDB))
			return fmt.Errorf("failed to open diagnostics db: %w", err)
		}
		defer database.Close()
		opts = append(opts, session.WithJournal(database))
	}

	coord := session.NewCoordinator(cfg.ConflictPolicy)
	controller := session.NewController(client, coord, logger, sessionID, opts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("Starting chat session",
		zap.String("session_id", sessionID),
		zap.String("backend_url", cfg.BackendURL),
		zap.String("model", cfg.Model),
		zap.Stringer("conflict_policy", coord.Policy()),
		zap.Bool("estimate_tokens", cfg.EstimateTokens))

	model := ui.New(ctx, controller, state, uiOptions(cfg, logger))

	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		logger.Error("Program exited with error", zap.Error(err))
		return fmt.Errorf("failed to run ui: %w", err)
	}

	logger.Info("Chat session ended", zap.String("session_id", sessionID))
	return nil
}

func uiOptions(cfg *config.Config, logger *zap.Logger) ui.Options {
	opts := ui.Options{Markdown: cfg.Markdown, Logger: logger}
	// The tokenizer may fetch its encoding over the network on first use.
	if cfg.EstimateTokens {
		opts.Estimator = llm.New()
	}
	return opts
}

func newDiagnosticsCmd(v *viper.Viper) *cobra.Command {
	var (
		limit     int
		sessionID string
		asJSON    bool
		purge     bool
	)

	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show journaled backend exchanges",
		Long: `Print the most recent exchanges recorded in the diagnostics database.

The database is the file given by --diagnostics-db (or CHAT_DIAGNOSTICS_DB).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := v.GetString(config.KeyDiagnosticsDB)
			if path == "" {
				return fmt.Errorf("no diagnostics database configured (set --%s)", config.KeyDiagnosticsDB)
			}
			database, err := db.New(path)
			if err != nil {
				return fmt.Errorf("failed to open diagnostics db: %w", err)
			}
			defer database.Close()

			ctx := cmd.Context()
			if purge {
				if sessionID == "" {
					return fmt.Errorf("--purge needs --session")
				}
				if err := database.DeleteSession(ctx, sessionID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted exchanges of session %s\n", sessionID)
				return nil
			}

			exchanges, err := database.RecentExchanges(ctx, sessionID, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), exchanges)
			}
			return writeTable(cmd.OutOrStdout(), exchanges)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of exchanges to show")
	cmd.Flags().StringVar(&sessionID, "session", "", "only show this session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	cmd.Flags().BoolVar(&purge, "purge", false, "delete the exchanges of --session")
	return cmd
}
