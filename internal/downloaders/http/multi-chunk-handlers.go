package archttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/utils"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
	DefaultTimeout     = 10 * time.Second
)

var errIdleTimeout = errors.New("no data received within timeout")

// ChunkFetcher downloads one byte range with a fixed delay between attempts.
type ChunkFetcher struct {
	Client      utils.HTTPDoer
	MaxAttempts int
	RetryDelay  time.Duration
	// Timeout bounds the wait for response headers and every gap between body reads.
	Timeout time.Duration
	// OnBytes, if set, sees streamed byte counts; a failed attempt reports its bytes back as a negative delta.
	OnBytes func(n int64)
}

func (f *ChunkFetcher) attempts() int {
	if f.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return f.MaxAttempts
}

func (f *ChunkFetcher) timeout() time.Duration {
	if f.Timeout <= 0 {
		return DefaultTimeout
	}
	return f.Timeout
}

// Fetch never returns an error value: a chunk that runs out of attempts comes back with Err set to a *ChunkError.
func (f *ChunkFetcher) Fetch(ctx context.Context, url string, chunk utils.DownloadChunk) utils.ChunkResult {
	maxAttempts := f.attempts()
	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++
		data, err := f.fetchOnce(ctx, url, chunk)
		if err == nil {
			return utils.ChunkResult{ID: chunk.ID, Data: data}
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Debug().Str("op", "http/chunk").Int("chunk", chunk.ID).Int("attempt", attempt).Err(err).Msg("chunk attempt failed")
		if attempt < maxAttempts && !sleepCtx(ctx, f.RetryDelay) {
			break
		}
	}
	log.Error().Str("op", "http/chunk").Int("chunk", chunk.ID).Int("attempts", attempt).Err(lastErr).Msg("chunk retries exhausted")
	return utils.ChunkResult{ID: chunk.ID, Err: &ChunkError{Index: chunk.ID, Attempts: attempt, Err: lastErr}}
}

func (f *ChunkFetcher) fetchOnce(ctx context.Context, url string, chunk utils.DownloadChunk) ([]byte, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	timeout := f.timeout()
	var idle atomic.Bool
	timer := time.AfterFunc(timeout, func() {
		idle.Store(true)
		cancel()
	})
	defer timer.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", chunk.StartByte, chunk.EndByte))
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, idleErr(idle.Load(), err)
	}
	defer resp.Body.Close()

	expected := chunk.Size()
	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK && resp.ContentLength == expected:
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	buf := bytes.NewBuffer(make([]byte, 0, expected))
	reader := &idleReader{r: io.LimitReader(resp.Body, expected+1), timer: timer, timeout: timeout, onBytes: f.OnBytes}
	n, err := io.Copy(buf, reader)
	if err != nil {
		f.reportBytes(-reader.read)
		return nil, idleErr(idle.Load(), err)
	}
	if n != expected {
		f.reportBytes(-reader.read)
		return nil, fmt.Errorf("size mismatch: expected %d bytes, got %d", expected, n)
	}
	return buf.Bytes(), nil
}

func (f *ChunkFetcher) reportBytes(n int64) {
	if f.OnBytes != nil && n != 0 {
		f.OnBytes(n)
	}
}

func idleErr(idle bool, err error) error {
	if idle {
		return fmt.Errorf("%w: %v", errIdleTimeout, err)
	}
	return err
}

// idleReader pushes the idle deadline forward on every successful read.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
	onBytes func(n int64)
	read    int64
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.timeout)
		r.read += int64(n)
		if r.onBytes != nil {
			r.onBytes(int64(n))
		}
	}
	return n, err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
