package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"research-chat/backend/pkg/config"
	"research-chat/backend/pkg/di"
	"research-chat/backend/pkg/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "chatlog",
		Short:         "Inspect and export the research chat log",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default config.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newStatsCmd(opts),
		newExportCmd(opts),
		newConversationCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, *logger.Logger, error) {
	loadOpts := config.DefaultOptions()
	if o.configFile != "" {
		loadOpts.ConfigFile = o.configFile
	}
	cfg, err := config.Load(loadOpts)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Local.Enabled {
		return nil, nil, fmt.Errorf("local sink is disabled; nothing to read")
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = o.logLevel
	logConfig.JSON = false
	return cfg, logger.New(logConfig), nil
}

func (o *rootOptions) container(ctx context.Context) (*di.Container, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, err
	}
	return di.NewLogOnly(ctx, cfg, log)
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print message, session and conversation counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			stats, err := c.ConversationLogger.GetStats(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out, filter string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export messages as CSV",
		Long: "Export messages as CSV. --filter takes a CEL expression over\n" +
			"session_id, conversation_id, message, role, created_at and created_ts,\n" +
			"for example: created_at >= \"2025-01-01\" && role == \"user\"",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			if out == "" || out == "-" {
				rows, err := c.ConversationLogger.WriteCSV(ctx, cmd.OutOrStdout(), filter)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%d rows\n", rows)
				return nil
			}
			if err := c.ConversationLogger.ExportToCSV(ctx, out, filter); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, stdout when empty or -")
	cmd.Flags().StringVar(&filter, "filter", "", "CEL filter expression")
	return cmd
}

func newConversationCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "conversation <id>",
		Short: "Print the logged messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close(ctx)

			messages, err := c.ConversationLogger.GetConversation(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), messages)
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the local sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			db, err := di.OpenLocal(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Local.Driver)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
