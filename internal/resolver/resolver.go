package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/site"
	"github.com/tanq16/arcfetch/internal/utils"
)

const DefaultMaxRefresh = 3

var ErrLinkExpired = errors.New("archive link still expired after refreshing")

// Site is the part of the site client the resolver drives.
type Site interface {
	Archiver(ctx context.Context, ref utils.GalleryRef) (*site.ArchiverPage, error)
	RequestArchive(ctx context.Context, ref utils.GalleryRef, q utils.Quality) (string, error)
	InvalidateSessions(ctx context.Context, ref utils.GalleryRef) error
}

type State int

const (
	StateUnresolved State = iota
	StateLinkIssued
	StateLinkExpired
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateLinkIssued:
		return "link-issued"
	case StateLinkExpired:
		return "link-expired"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Kind int

const (
	Resolved Kind = iota
	Expired
	Terminal
)

func (k Kind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Expired:
		return "expired"
	case Terminal:
		return "terminal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is the outcome of one resolution. URL is set only when Kind is Resolved.
type Result struct {
	Kind      Kind
	URL       string
	Quality   utils.Quality
	Cost      int64
	Refreshes int
	Reason    error
}

func (r Result) Err() error {
	if r.Kind == Resolved {
		return nil
	}
	return r.Reason
}

type Resolver struct {
	site       Site
	probe      utils.HTTPDoer
	maxRefresh int
}

// New builds a resolver. probe checks issued links and should not carry site cookies.
func New(s Site, probe utils.HTTPDoer, maxRefresh int) *Resolver {
	if maxRefresh < 0 {
		maxRefresh = DefaultMaxRefresh
	}
	return &Resolver{site: s, probe: probe, maxRefresh: maxRefresh}
}

// SelectQuality falls back to the original archive when no resample is offered.
func SelectQuality(page *site.ArchiverPage, want utils.Quality) utils.Quality {
	if want == utils.QualityResample && !page.Resample.Available {
		return utils.QualityOriginal
	}
	return want
}

// CheckFunds fails with site.ErrInsufficientCredit when the shown balance cannot cover opt.
func CheckFunds(page *site.ArchiverPage, opt site.ArchiveOption) error {
	if opt.Free || !page.Funds.Known {
		return nil
	}
	if page.Funds.GP < opt.Cost {
		return fmt.Errorf("%w: cost %d GP, balance %d GP and %d credits", site.ErrInsufficientCredit, opt.Cost, page.Funds.GP, page.Funds.Credits)
	}
	return nil
}

func (r *Resolver) Resolve(ctx context.Context, ref utils.GalleryRef, want utils.Quality) Result {
	page, err := r.site.Archiver(ctx, ref)
	if err != nil {
		return Result{Kind: Terminal, Quality: want, Reason: err}
	}
	quality := SelectQuality(page, want)
	if quality != want {
		log.Info().Str("op", "resolver/resolve").Str("gallery", ref.String()).Msg("resample archive not offered, using original")
	}
	opt := page.Option(quality)
	result := Result{Quality: quality, Cost: opt.Cost}
	if !opt.Available {
		result.Kind, result.Reason = Terminal, fmt.Errorf("%w: no %s archive offered", site.ErrUnavailable, quality)
		return result
	}
	if !opt.Free && !page.Funds.Known {
		log.Warn().Str("op", "resolver/resolve").Str("gallery", ref.String()).Msg("could not read GP balance, requesting anyway")
	}
	if err := CheckFunds(page, opt); err != nil {
		result.Kind, result.Reason = Terminal, err
		return result
	}

	state := StateUnresolved
	var link string
	for {
		log.Debug().Str("op", "resolver/resolve").Str("gallery", ref.String()).Stringer("state", state).Msg("resolver step")
		switch state {
		case StateUnresolved:
			link, err = r.site.RequestArchive(ctx, ref, quality)
			if err != nil {
				result.Reason, state = err, StateTerminated
				continue
			}
			state = StateLinkIssued

		case StateLinkIssued:
			expired, err := r.isExpired(ctx, link)
			if err != nil {
				result.Reason, state = err, StateTerminated
				continue
			}
			if !expired {
				result.Kind, result.URL = Resolved, link
				return result
			}
			state = StateLinkExpired

		case StateLinkExpired:
			if result.Refreshes >= r.maxRefresh {
				result.Kind, result.Reason = Expired, ErrLinkExpired
				return result
			}
			result.Refreshes++
			if err := r.site.InvalidateSessions(ctx, ref); err != nil {
				result.Reason, state = fmt.Errorf("session invalidation failed: %w", err), StateTerminated
				continue
			}
			link, err = r.site.RequestArchive(ctx, ref, quality)
			if err != nil {
				result.Reason, state = err, StateTerminated
				continue
			}
			state = StateLinkIssued

		case StateTerminated:
			result.Kind = Terminal
			return result
		}
	}
}

// isExpired reports whether the issued link answers 401.
func (r *Resolver) isExpired(ctx context.Context, link string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return false, fmt.Errorf("invalid archive link %q: %w", link, err)
	}
	resp, err := r.probe.Do(req)
	if err != nil {
		return false, fmt.Errorf("error probing archive link: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusUnauthorized, nil
}
