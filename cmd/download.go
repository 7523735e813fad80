package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/tanq16/arcfetch/internal/cache"
	"github.com/tanq16/arcfetch/internal/config"
	archttp "github.com/tanq16/arcfetch/internal/downloaders/http"
	"github.com/tanq16/arcfetch/internal/mirror"
	"github.com/tanq16/arcfetch/internal/naming"
	"github.com/tanq16/arcfetch/internal/output"
	"github.com/tanq16/arcfetch/internal/resolver"
	"github.com/tanq16/arcfetch/internal/scheduler"
	"github.com/tanq16/arcfetch/internal/site"
	"github.com/tanq16/arcfetch/internal/tagdb"
	"github.com/tanq16/arcfetch/internal/utils"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download [--favcat N] [--output DIR]",
		Short: "Download the archive of every gallery in a favorites folder (default command)",
		Args:  cobra.NoArgs,
		RunE:  runDownload,
	}
	addDownloadFlags(cmd)
	return cmd
}

func runDownload(cmd *cobra.Command, args []string) error {
	logger := utils.GetLogger("cmd/download")
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tmpl, err := naming.Parse(cfg.FilenameRule)
	if err != nil {
		return err
	}
	q, err := utils.ParseQuality(cfg.Quality)
	if err != nil {
		return err
	}
	if !utils.IsDir(cfg.OutputDir) {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("create output folder: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	siteClient := site.NewClient(utils.NewArcHTTPClient(siteHTTPConfig(cfg)), cfg.BaseURL(), cfg.APIURL)
	if err := siteClient.Probe(ctx); err != nil {
		if errors.Is(err, site.ErrBadCookie) {
			return fmt.Errorf("the site rejected the configured cookies, run `arcfetch config init`: %w", err)
		}
		return err
	}
	logger.Info().Str("site", siteClient.BaseURL()).Msg("cookies accepted")

	refs, hit, err := cache.LoadOrEnumerate(ctx, cfg.CacheFile, refresh, func(ctx context.Context) ([]utils.GalleryRef, error) {
		output.PrintPending(fmt.Sprintf("Enumerating favorites (favcat=%d)", cfg.Favcat))
		return site.NewEnumerator(siteClient).Enumerate(ctx, cfg.Favcat)
	})
	if err != nil {
		return err
	}
	if hit {
		output.PrintInfo(fmt.Sprintf("Loaded %d galleries from %s (use --refresh to enumerate again)", len(refs), cfg.CacheFile))
	} else {
		output.PrintInfo(fmt.Sprintf("Found %d galleries, saved to %s", len(refs), cfg.CacheFile))
	}
	if len(refs) == 0 {
		output.PrintWarning("Nothing to download")
		return nil
	}

	connections := cfg.EffectiveThreads()
	if connections < cfg.ThreadCount {
		logger.Warn().Msgf("thread_count reduced to %d to stay within %d connections", connections, cfg.MaxConnections)
	}
	dlClient := utils.NewArcHTTPClient(downloadHTTPConfig(cfg, connections))
	sched := &scheduler.Scheduler{
		Meta:     siteClient,
		Resolver: resolver.New(siteClient, dlClient, cfg.MaxRefresh),
		Downloader: archttp.NewParallelDownloader(dlClient, archttp.FetchOptions{
			MaxAttempts: cfg.Retry.Attempts,
			RetryDelay:  cfg.Retry.Delay,
			Timeout:     cfg.Retry.Timeout,
		}),
		Output: output.NewManager(),
		Options: scheduler.Options{
			OutputDir:     cfg.OutputDir,
			Template:      tmpl,
			Quality:       q,
			MaxWorkers:    cfg.MaxWorkers,
			Threads:       connections,
			WriteMetadata: cfg.WriteMetadata,
		},
	}
	if tmpl.Uses(naming.FieldGroupTranslate) {
		if db := loadTagDB(ctx, cfg, "", logger); db != nil {
			sched.Tags = db
		}
	}
	if cfg.Mirror.S3 != "" {
		m, err := mirror.New(ctx, cfg.Mirror.S3, cfg.Mirror.Profile)
		if err != nil {
			return err
		}
		sched.Mirror = m
	}

	sched.Output.StartDisplay()
	summary := sched.Run(ctx, refs)
	sched.Output.StopDisplay()

	fmt.Println()
	output.PrintInfo(fmt.Sprintf("Downloaded %s in total", utils.FormatBytes(uint64(utils.TotalDownloaded.Load()))))
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d galleries failed", summary.Failed, summary.Total)
	}
	output.PrintSuccess(fmt.Sprintf("%d downloaded, %d already present", summary.Succeeded, summary.Skipped))
	return nil
}

// loadTagDB returns nil when the database cannot be fetched; group_tra then falls back to raw names.
func loadTagDB(ctx context.Context, cfg config.Config, releaseURL string, logger zerolog.Logger) *tagdb.DB {
	client := utils.NewArcHTTPClient(githubHTTPConfig(cfg)).HTTPClient()
	db, err := tagdb.NewLoader(client, cfg.GitHubToken, releaseURL).Load(ctx)
	if err != nil {
		output.PrintWarning("Tag translation database unavailable, using raw group names")
		logger.Warn().Err(err).Msg("tag database load failed")
		return nil
	}
	output.PrintDetail(fmt.Sprintf("Loaded tag translations %s (%d groups)", db.Version, db.Len()))
	return db
}
