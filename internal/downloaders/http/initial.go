package archttp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/utils"
)

// FetchOptions tunes the per-chunk retry policy.
type FetchOptions struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Timeout     time.Duration
}

func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		Timeout:     DefaultTimeout,
	}
}

type ParallelDownloader struct {
	client utils.HTTPDoer
	opts   FetchOptions
}

func NewParallelDownloader(client utils.HTTPDoer, opts FetchOptions) *ParallelDownloader {
	return &ParallelDownloader{client: client, opts: opts}
}

// Probe issues a HEAD request and returns the advertised Content-Length.
func (d *ParallelDownloader) Probe(ctx context.Context, url string) (int64, error) {
	timeout := d.opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error sending HEAD request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return 0, ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("HEAD request failed with status code: %d", resp.StatusCode)
	}

	header := resp.Header.Get("Content-Length")
	if header == "" {
		return 0, ErrSizeUnknown
	}
	size, err := strconv.ParseInt(header, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("%w: invalid Content-Length %q", ErrSizeUnknown, header)
	}
	if size == 0 {
		return 0, ErrEmptyResource
	}
	log.Debug().Str("op", "http/initial").Int64("size", size).Msg("content length determined")
	return size, nil
}
