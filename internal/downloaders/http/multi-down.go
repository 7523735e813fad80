package archttp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/utils"
	"golang.org/x/sync/errgroup"
)

// PartitionChunks splits [0, total) into n contiguous ranges. n is clamped
// to [1, total]; the last chunk absorbs the remainder.
func PartitionChunks(total int64, n int) []utils.DownloadChunk {
	if total <= 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}
	if int64(n) > total {
		n = int(total)
	}
	block := total / int64(n)
	chunks := make([]utils.DownloadChunk, n)
	for i := 0; i < n; i++ {
		start := int64(i) * block
		end := start + block - 1
		if i == n-1 {
			end = total - 1
		}
		chunks[i] = utils.DownloadChunk{ID: i, StartByte: start, EndByte: end}
	}
	return chunks
}

// Download probes the URL for its size and fetches it with the given number of parallel chunks.
func (d *ParallelDownloader) Download(ctx context.Context, url, outputPath string, threads int, progress utils.ProgressFunc) error {
	size, err := d.Probe(ctx, url)
	if err != nil {
		log.Error().Str("op", "http/multi-down").Err(err).Msgf("could not determine size of %s", url)
		return err
	}
	return d.Run(ctx, utils.DownloadTask{
		URL:        url,
		OutputPath: outputPath,
		TotalSize:  size,
		Chunks:     threads,
	}, progress)
}

// Run downloads a task whose size is already known. Nothing is written to
// disk unless every chunk succeeds.
func (d *ParallelDownloader) Run(ctx context.Context, task utils.DownloadTask, progress utils.ProgressFunc) error {
	chunks := PartitionChunks(task.TotalSize, task.Chunks)
	if len(chunks) == 0 {
		return ErrEmptyResource
	}
	log.Debug().Str("op", "http/multi-down").Int("chunks", len(chunks)).Int64("size", task.TotalSize).Msgf("starting download of %s", task.OutputPath)

	var streamed atomic.Int64
	report := func(n int64) {
		current := streamed.Add(n)
		if progress != nil {
			progress(current, task.TotalSize)
		}
	}
	fetcher := &ChunkFetcher{
		Client:      d.client,
		MaxAttempts: d.opts.MaxAttempts,
		RetryDelay:  d.opts.RetryDelay,
		Timeout:     d.opts.Timeout,
		OnBytes:     report,
	}

	slots := make([][]byte, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(chunks))
	for _, chunk := range chunks {
		chunk := chunk
		g.Go(func() error {
			result := fetcher.Fetch(gctx, task.URL, chunk)
			if result.Err != nil {
				return result.Err
			}
			slots[result.ID] = result.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var chunkErr *ChunkError
		if errors.As(err, &chunkErr) {
			log.Error().Str("op", "http/multi-down").Int("chunk", chunkErr.Index).Err(chunkErr.Err).Msgf("aborting %s", task.OutputPath)
		}
		return err
	}
	if progress != nil {
		progress(task.TotalSize, task.TotalSize)
	}
	if err := assembleFile(task.OutputPath, slots); err != nil {
		return err
	}
	utils.TotalDownloaded.Add(task.TotalSize)
	return nil
}

func assembleFile(outputPath string, slots [][]byte) error {
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &FilesystemError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	partPath := outputPath + ".part"
	file, err := os.Create(partPath)
	if err != nil {
		return &FilesystemError{Op: "create", Path: partPath, Err: err}
	}
	fail := func(op string, err error) error {
		file.Close()
		os.Remove(partPath)
		return &FilesystemError{Op: op, Path: partPath, Err: err}
	}
	for i, data := range slots {
		if _, err := file.Write(data); err != nil {
			return fail(fmt.Sprintf("write chunk %d", i), err)
		}
	}
	if err := file.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(partPath)
		return &FilesystemError{Op: "close", Path: partPath, Err: err}
	}
	if err := os.Rename(partPath, outputPath); err != nil {
		os.Remove(partPath)
		return &FilesystemError{Op: "rename", Path: outputPath, Err: err}
	}
	log.Debug().Str("op", "http/multi-down").Msgf("assembled %s from %d chunks", outputPath, len(slots))
	return nil
}
