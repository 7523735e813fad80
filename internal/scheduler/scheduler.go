package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/naming"
	"github.com/tanq16/arcfetch/internal/output"
	"github.com/tanq16/arcfetch/internal/resolver"
	"github.com/tanq16/arcfetch/internal/site"
	"github.com/tanq16/arcfetch/internal/utils"
)

type MetadataSource interface {
	Metadata(ctx context.Context, ref utils.GalleryRef) (*site.GalleryMetadata, error)
}

type LinkResolver interface {
	Resolve(ctx context.Context, ref utils.GalleryRef, q utils.Quality) resolver.Result
}

type Downloader interface {
	Download(ctx context.Context, url, outputPath string, threads int, progress utils.ProgressFunc) error
}

type Translator interface {
	TranslateGroup(raw string) string
}

type Mirror interface {
	Upload(ctx context.Context, localPath, rel string) (string, error)
}

type Options struct {
	OutputDir     string
	Template      *naming.Template
	Quality       utils.Quality
	MaxWorkers    int
	Threads       int
	WriteMetadata bool
}

// Summary is the aggregate result of a run. Failures never stop other galleries.
type Summary struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

type Scheduler struct {
	Meta       MetadataSource
	Resolver   LinkResolver
	Downloader Downloader
	Tags       Translator // optional
	Mirror     Mirror     // optional
	Output     *output.Manager
	Options    Options
	Now        func() time.Time
}

var errSkipped = errors.New("archive already exists")

// Run processes every gallery with Options.MaxWorkers workers.
func (s *Scheduler) Run(ctx context.Context, refs []utils.GalleryRef) Summary {
	if s.Now == nil {
		s.Now = time.Now
	}
	summary := Summary{Total: len(refs)}
	if len(refs) == 0 {
		return summary
	}

	jobCh := make(chan utils.GalleryRef, len(refs))
	for _, ref := range refs {
		jobCh <- ref
	}
	close(jobCh)

	var mu sync.Mutex
	var wg sync.WaitGroup
	workers := max(1, min(s.Options.MaxWorkers, len(refs)))
	log.Info().Str("op", "scheduler/run").Msgf("processing %d galleries with %d workers and %d connections each", len(refs), workers, s.Options.Threads)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range jobCh {
				err := s.processGallery(ctx, ref)
				mu.Lock()
				switch {
				case err == nil:
					summary.Succeeded++
				case errors.Is(err, errSkipped):
					summary.Skipped++
				default:
					summary.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	log.Info().Str("op", "scheduler/run").Msgf("finished: %d succeeded, %d skipped, %d failed", summary.Succeeded, summary.Skipped, summary.Failed)
	return summary
}

func (s *Scheduler) processGallery(ctx context.Context, ref utils.GalleryRef) error {
	id := s.Output.Register(ref.String())
	logger := log.With().Str("task", uuid.NewString()).Str("gallery", ref.String()).Logger()
	fail := func(stage string, err error) error {
		err = fmt.Errorf("%s: %w", stage, err)
		logger.Error().Str("op", "scheduler/process").Err(err).Msg("gallery failed")
		s.Output.ReportError(id, err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return fail("cancelled", err)
	}

	s.Output.SetMessage(id, fmt.Sprintf("Fetching metadata for %s", ref))
	meta, err := s.Meta.Metadata(ctx, ref)
	if err != nil {
		return fail("metadata", err)
	}
	values, err := s.values(ref, meta)
	if err != nil {
		return fail("metadata", err)
	}
	outputPath, err := s.Options.Template.Path(s.Options.OutputDir, values)
	if err != nil {
		return fail("filename", err)
	}
	rel, err := filepath.Rel(s.Options.OutputDir, outputPath)
	if err != nil {
		rel = filepath.Base(outputPath)
	}
	if utils.FileExists(outputPath) {
		logger.Info().Str("op", "scheduler/process").Msgf("skipping existing %s", outputPath)
		s.Output.Skip(id, fmt.Sprintf("Already downloaded %s", rel))
		return errSkipped
	}

	s.Output.SetMessage(id, fmt.Sprintf("Resolving archive link for %s", rel))
	res := s.Resolver.Resolve(ctx, ref, s.Options.Quality)
	if res.Kind != resolver.Resolved {
		return fail(fmt.Sprintf("archive link %s", res.Kind), res.Err())
	}
	logger.Debug().Str("op", "scheduler/process").Str("quality", string(res.Quality)).Int("refreshes", res.Refreshes).Msg("archive link resolved")

	s.Output.SetMessage(id, fmt.Sprintf("Downloading %s", rel))
	progress := func(downloaded, total int64) {
		s.Output.SetProgress(id, downloaded, total)
	}
	if err := s.Downloader.Download(ctx, res.URL, outputPath, s.Options.Threads, progress); err != nil {
		return fail("download", err)
	}

	sidecar := ""
	if s.Options.WriteMetadata {
		sidecar, err = writeSidecar(outputPath, meta)
		if err != nil {
			return fail("metadata sidecar", err)
		}
	}
	if s.Mirror != nil {
		s.Output.SetMessage(id, fmt.Sprintf("Mirroring %s", rel))
		if err := s.mirror(ctx, logger, outputPath, rel, sidecar); err != nil {
			return fail("mirror", err)
		}
	}
	s.Output.Complete(id, fmt.Sprintf("Saved %s", rel))
	logger.Info().Str("op", "scheduler/process").Msgf("saved %s", outputPath)
	return nil
}

func (s *Scheduler) values(ref utils.GalleryRef, meta *site.GalleryMetadata) (naming.Values, error) {
	posted, err := meta.PostedTime()
	if err != nil {
		return naming.Values{}, err
	}
	group := meta.Group()
	translated := ""
	if s.Tags != nil && group != "" {
		translated = s.Tags.TranslateGroup(group)
	}
	return naming.Values{
		Title:           meta.Title,
		TitleJpn:        meta.TitleJpn,
		GID:             ref.GID,
		Posted:          posted,
		Now:             s.Now(),
		Group:           group,
		GroupTranslated: translated,
	}, nil
}

func (s *Scheduler) mirror(ctx context.Context, logger zerolog.Logger, outputPath, rel, sidecar string) error {
	dest, err := s.Mirror.Upload(ctx, outputPath, rel)
	if err != nil {
		return err
	}
	logger.Info().Str("op", "scheduler/mirror").Msgf("mirrored to %s", dest)
	if sidecar != "" {
		if _, err := s.Mirror.Upload(ctx, sidecar, sidecarPath(rel)); err != nil {
			return err
		}
	}
	return nil
}

func sidecarPath(archive string) string {
	return strings.TrimSuffix(archive, naming.ArchiveExt) + ".json"
}

func writeSidecar(archive string, meta *site.GalleryMetadata) (string, error) {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	path := sidecarPath(archive)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
