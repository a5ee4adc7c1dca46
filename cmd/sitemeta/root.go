package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/sitemeta/internal/app"
	"github.com/MrSnakeDoc/sitemeta/internal/config"
	"github.com/MrSnakeDoc/sitemeta/internal/domain"
	"github.com/MrSnakeDoc/sitemeta/internal/logger"
	"github.com/MrSnakeDoc/sitemeta/internal/version"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "sitemeta",
		Short:         "Resolve website metadata and accent colors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(opts),
		newResolveCmd(opts),
		newColorCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// setup loads the configuration and builds the application. The caller owns
// the returned App and must Close it.
func (o *rootOptions) setup(ctx context.Context) (*app.App, *config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	return a, cfg, nil
}

// closeApp drains pending write-backs within the configured shutdown window.
func closeApp(a *app.App, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		return fmt.Errorf("pending writes abandoned: %w", err)
	}
	return nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, _, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var incognito bool

	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Resolve a URL and print its metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}

			mode := domain.Persisting
			if incognito {
				mode = domain.ReadOnly
			}
			website := a.Pipeline().Resolve(cmd.Context(), args[0], mode)

			if err := writeJSON(cmd.OutOrStdout(), website); err != nil {
				_ = closeApp(a, cfg)
				return err
			}
			return closeApp(a, cfg)
		},
	}
	cmd.Flags().BoolVar(&incognito, "incognito", false, "resolve without recording the visit")
	return cmd
}

func newColorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "color <url>",
		Short: "Resolve the accent color of a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}

			website := a.Pipeline().Resolve(cmd.Context(), args[0], domain.ReadOnly)
			wc := a.Colors().ResolveColor(cmd.Context(), website)

			if err := writeJSON(cmd.OutOrStdout(), wc); err != nil {
				_ = closeApp(a, cfg)
				return err
			}
			return closeApp(a, cfg)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
