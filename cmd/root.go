// Package cmd defines the CLI commands for the assessor-scraper executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/app"
	"github.com/parcelworks/assessor-scraper/internal/config"
)

var (
	cfgFile     string
	workersFlag int
	limitFlag   int
	noResume    bool
)

type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. It is a variable so tests can swap in
// a factory that builds against in-memory backends.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.Build(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assessor-scraper",
		Short: "Scrapes a municipal property assessment site",
		Long: `assessor-scraper walks a Vision-style municipal assessment site in
four stages: the A-Z street index, per-street parcel listings, parcel detail
pages, and property media. Progress is stored durably after every item, so an
interrupted run resumes where it stopped.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if workersFlag > 0 {
				cfg.Scraper.Workers = workersFlag
			}
			if limitFlag > 0 {
				cfg.Scraper.StreetLimit = limitFlag
			}

			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, ok := cmd.Context().Value(appKey).(*app.App); ok && a != nil {
				a.Close(cmd.Context())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (YAML)")
	cmd.PersistentFlags().IntVar(&workersFlag, "workers", 0, "override the configured browser session count")
	cmd.PersistentFlags().IntVar(&limitFlag, "limit", 0, "cap the number of streets processed")
	cmd.PersistentFlags().BoolVar(&noResume, "no-resume", false, "ignore stored progress and rerun every stage")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStageCmds()...)
	cmd.AddCommand(
		newStreetCmd(),
		newStatusCmd(),
		newResetCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute runs the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
