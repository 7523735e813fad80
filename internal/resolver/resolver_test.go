package resolver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/tanq16/arcfetch/internal/site"
	"github.com/tanq16/arcfetch/internal/utils"
)

type fakeSite struct {
	mu            sync.Mutex
	page          *site.ArchiverPage
	pageErr       error
	requestErr    error
	invalidateErr error
	requested     []utils.Quality
	invalidations int
}

func (f *fakeSite) Archiver(ctx context.Context, ref utils.GalleryRef) (*site.ArchiverPage, error) {
	return f.page, f.pageErr
}

func (f *fakeSite) RequestArchive(ctx context.Context, ref utils.GalleryRef, q utils.Quality) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, q)
	if f.requestErr != nil {
		return "", f.requestErr
	}
	return "https://h.example/archive/" + string(q) + "/?start=1", nil
}

func (f *fakeSite) InvalidateSessions(ctx context.Context, ref utils.GalleryRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidations++
	return f.invalidateErr
}

// probeSequence answers HEAD probes with the given statuses, repeating the last one.
type probeSequence struct {
	mu       sync.Mutex
	statuses []int
	calls    int
}

func (p *probeSequence) Do(req *http.Request) (*http.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := min(p.calls, len(p.statuses)-1)
	p.calls++
	return &http.Response{StatusCode: p.statuses[i], Body: http.NoBody, Header: make(http.Header)}, nil
}

func freePage() *site.ArchiverPage {
	return &site.ArchiverPage{
		Original: site.ArchiveOption{Available: true, Free: true},
		Resample: site.ArchiveOption{Available: true, Cost: 500},
		Funds:    site.Funds{Known: true, GP: 1000, Credits: 10},
	}
}

var ref = utils.GalleryRef{GID: 1, Token: "abc"}

func TestResolveFirstLinkLive(t *testing.T) {
	fs := &fakeSite{page: freePage()}
	res := New(fs, &probeSequence{statuses: []int{http.StatusOK}}, 3).Resolve(context.Background(), ref, utils.QualityOriginal)
	if res.Kind != Resolved || res.URL != "https://h.example/archive/original/?start=1" {
		t.Fatalf("result = %+v", res)
	}
	if res.Refreshes != 0 || fs.invalidations != 0 {
		t.Errorf("unexpected refresh: %+v, invalidations=%d", res, fs.invalidations)
	}
}

func TestResolveRefreshesExpiredLink(t *testing.T) {
	fs := &fakeSite{page: freePage()}
	probe := &probeSequence{statuses: []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusOK}}
	res := New(fs, probe, 3).Resolve(context.Background(), ref, utils.QualityResample)
	if res.Kind != Resolved {
		t.Fatalf("result = %+v", res)
	}
	if res.Refreshes != 2 || fs.invalidations != 2 || len(fs.requested) != 3 {
		t.Errorf("refreshes=%d invalidations=%d requests=%d", res.Refreshes, fs.invalidations, len(fs.requested))
	}
}

func TestResolveGivesUpAfterMaxRefresh(t *testing.T) {
	fs := &fakeSite{page: freePage()}
	probe := &probeSequence{statuses: []int{http.StatusUnauthorized}}
	res := New(fs, probe, 3).Resolve(context.Background(), ref, utils.QualityOriginal)
	if res.Kind != Expired || !errors.Is(res.Err(), ErrLinkExpired) {
		t.Fatalf("result = %+v", res)
	}
	if fs.invalidations != 3 || probe.calls != 4 {
		t.Errorf("invalidations=%d probes=%d, want 3 and 4", fs.invalidations, probe.calls)
	}
}

func TestResolveTerminalOutcomes(t *testing.T) {
	lowFunds := freePage()
	lowFunds.Original = site.ArchiveOption{Available: true, Cost: 5000}
	noResample := freePage()
	noResample.Resample = site.ArchiveOption{}

	tests := []struct {
		name    string
		site    *fakeSite
		want    utils.Quality
		wantErr error
	}{
		{"unavailable gallery", &fakeSite{pageErr: site.ErrUnavailable}, utils.QualityOriginal, site.ErrUnavailable},
		{"balance below cost", &fakeSite{page: lowFunds}, utils.QualityOriginal, site.ErrInsufficientCredit},
		{"site reports no funds", &fakeSite{page: freePage(), requestErr: site.ErrInsufficientCredit}, utils.QualityOriginal, site.ErrInsufficientCredit},
		{"rate limited", &fakeSite{page: freePage(), requestErr: site.ErrRateLimited}, utils.QualityOriginal, site.ErrRateLimited},
		{"invalidation fails", &fakeSite{page: noResample, invalidateErr: &site.StatusError{Op: "session invalidation", StatusCode: 500}}, utils.QualityOriginal, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &probeSequence{statuses: []int{http.StatusUnauthorized}}
			res := New(tt.site, probe, 3).Resolve(context.Background(), ref, tt.want)
			if res.Kind != Terminal || res.URL != "" {
				t.Fatalf("result = %+v, want terminal", res)
			}
			if tt.wantErr != nil && !errors.Is(res.Err(), tt.wantErr) {
				t.Errorf("reason = %v, want %v", res.Reason, tt.wantErr)
			}
			if tt.wantErr == nil {
				var statusErr *site.StatusError
				if !errors.As(res.Err(), &statusErr) {
					t.Errorf("reason = %v, want StatusError", res.Reason)
				}
			}
		})
	}
}

func TestResolveFallsBackToOriginal(t *testing.T) {
	page := freePage()
	page.Resample = site.ArchiveOption{}
	fs := &fakeSite{page: page}
	res := New(fs, &probeSequence{statuses: []int{http.StatusOK}}, 3).Resolve(context.Background(), ref, utils.QualityResample)
	if res.Kind != Resolved || res.Quality != utils.QualityOriginal {
		t.Fatalf("result = %+v", res)
	}
	if len(fs.requested) != 1 || fs.requested[0] != utils.QualityOriginal {
		t.Errorf("requested %v", fs.requested)
	}
}
