package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parcelworks/assessor-scraper/internal/pipeline"
	"github.com/parcelworks/assessor-scraper/internal/progress"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full scrape pipeline",
		Long: `Runs every stage in order: streets, listings, details, media. The
status API is served for the duration of the run. Stages already completed in
a previous run are skipped unless --no-resume is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := a.Run(cmd.Context(), !noResume)
			logSummary(a.Logger(), summary)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newStageCmds() []*cobra.Command {
	stages := []struct {
		use   string
		short string
		stage progress.Stage
	}{
		{"streets", "Scrape the A-Z street index", progress.StageStreets},
		{"listings", "Scrape parcel listings for unscraped streets", progress.StageListings},
		{"details", "Scrape detail pages for pending parcels", progress.StageDetails},
		{"media", "Download pending property media", progress.StageMedia},
	}

	cmds := make([]*cobra.Command, 0, len(stages))
	for _, s := range stages {
		stage := s.stage
		cmds = append(cmds, &cobra.Command{
			Use:   s.use,
			Short: s.short,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runStage(cmd.Context(), stage)
			},
		})
	}
	return cmds
}

func runStage(ctx context.Context, stage progress.Stage) error {
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipe, err := a.Pipeline(ctx)
	if err != nil {
		return err
	}
	summary, err := pipe.RunStage(ctx, stage, !noResume)
	logSummary(a.Logger(), summary)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newStreetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "street <name>",
		Short: "Scrape one street's listings and parcel details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pipe, err := a.Pipeline(ctx)
			if err != nil {
				return err
			}
			summary, err := pipe.RunStreet(ctx, args[0])
			logSummary(a.Logger(), summary)
			return err
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve only the status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.Serve(cmd.Context())
		},
	}
}

func logSummary(logger *zap.Logger, summary pipeline.Summary) {
	logger.Info("summary",
		zap.String("run_id", summary.RunID),
		zap.Int("streets", summary.Streets),
		zap.Int("streets_failed", summary.StreetsFailed),
		zap.Int("parcels", summary.Parcels),
		zap.Int("parcels_failed", summary.ParcelsFailed),
		zap.Int("media_downloaded", summary.MediaDownloaded),
		zap.Int("media_skipped", summary.MediaSkipped),
		zap.Int("media_failed", summary.MediaFailed),
		zap.Duration("duration", summary.Duration),
	)
}
