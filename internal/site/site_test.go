package site

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tanq16/arcfetch/internal/utils"
)

const archiverHTML = `<html><body>
<div><p>Download Cost: <strong>1,234 GP</strong></p><p>Estimated Size: <strong>512.5 MiB</strong></p></div>
<div><p>Download Cost: <strong>Free!</strong></p><p>Estimated Size: <strong>1.5 GiB</strong></p></div>
<p>[?] 98,765 GP [?] 4,321 Credits</p>
</body></html>`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	httpClient := utils.NewArcHTTPClient(utils.HTTPClientConfig{
		Cookies: map[string]string{"ipb_member_id": "42", "ipb_pass_hash": "abc"},
	})
	return NewClient(httpClient, server.URL, server.URL+"/api.php")
}

func TestParseArchiverPage(t *testing.T) {
	page, err := ParseArchiverPage([]byte(archiverHTML))
	if err != nil {
		t.Fatalf("ParseArchiverPage: %v", err)
	}
	if !page.Original.Available || page.Original.Free || page.Original.Cost != 1234 {
		t.Errorf("original = %+v", page.Original)
	}
	if page.Original.SizeMiB != 512.5 {
		t.Errorf("original size = %v MiB", page.Original.SizeMiB)
	}
	if !page.Resample.Free || page.Resample.Cost != 0 || page.Resample.SizeMiB != 1536 {
		t.Errorf("resample = %+v", page.Resample)
	}
	if !page.Funds.Known || page.Funds.GP != 98765 || page.Funds.Credits != 4321 {
		t.Errorf("funds = %+v", page.Funds)
	}
	if got := page.Option(utils.QualityResample); got != page.Resample {
		t.Errorf("Option(resample) = %+v", got)
	}
}

func TestParseArchiverPageEdgeCases(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		_, err := ParseArchiverPage([]byte("<p>This gallery is currently unavailable.</p>"))
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})
	t.Run("resample not offered", func(t *testing.T) {
		html := `<strong>Free!</strong><strong>10 MiB</strong><strong>N/A</strong><strong>N/A</strong>`
		page, err := ParseArchiverPage([]byte(html))
		if err != nil {
			t.Fatal(err)
		}
		if page.Resample.Available || !page.Original.Free || page.Funds.Known {
			t.Errorf("page = %+v", page)
		}
	})
	t.Run("truncated page", func(t *testing.T) {
		if _, err := ParseArchiverPage([]byte(`<strong>Free!</strong>`)); err == nil {
			t.Fatal("expected error for missing cost fields")
		}
	})
}

func TestParseArchiveLink(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"link", `<p>Locating archive server...</p><a href="https://h.example/archive/1/abc/">Click here</a>`, "https://h.example/archive/1/abc/?start=1", nil},
		{"no funds", "You do not have enough funds to download this archive. Obtain some Credits or GP and try again.", "", ErrInsufficientCredit},
		{"throttled", "This IP address has been temporarily banned due to an excessive request rate.", "", ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArchiveLink([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("parseArchiveLink = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestArchiverRoundTrip(t *testing.T) {
	var invalidated atomic.Bool
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/archiver.php" || r.URL.Query().Get("gid") != "123" || r.URL.Query().Get("token") != "abcdef" {
			http.NotFound(w, r)
			return
		}
		if !strings.Contains(r.Header.Get("Cookie"), "ipb_member_id=42") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Method == http.MethodGet {
			io.WriteString(w, archiverHTML)
			return
		}
		r.ParseForm()
		switch {
		case r.PostForm.Get("invalidate_sessions") == "1":
			invalidated.Store(true)
		case r.PostForm.Get("dltype") == "res" && r.PostForm.Get("dlcheck") == "Download Resample Archive":
			io.WriteString(w, `<a href="https://h.example/archive/123/res/">go</a>`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	ref := utils.GalleryRef{GID: 123, Token: "abcdef"}
	ctx := context.Background()

	page, err := client.Archiver(ctx, ref)
	if err != nil {
		t.Fatalf("Archiver: %v", err)
	}
	if page.Original.Cost != 1234 {
		t.Errorf("original cost = %d", page.Original.Cost)
	}
	link, err := client.RequestArchive(ctx, ref, utils.QualityResample)
	if err != nil || link != "https://h.example/archive/123/res/?start=1" {
		t.Errorf("RequestArchive = %q, %v", link, err)
	}
	_, err = client.RequestArchive(ctx, ref, utils.QualityOriginal)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected StatusError 400, got %v", err)
	}
	if err := client.InvalidateSessions(ctx, ref); err != nil || !invalidated.Load() {
		t.Errorf("InvalidateSessions = %v, invalidated=%v", err, invalidated.Load())
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{"ok", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "<html>favorites</html>")
		}, nil},
		{"empty page", func(w http.ResponseWriter, r *http.Request) {}, ErrBadCookie},
		{"bounced", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/favorites.php" {
				http.Redirect(w, r, "/bounce_login.php?b=d&bt=1-6", http.StatusFound)
				return
			}
			io.WriteString(w, "login")
		}, ErrBadCookie},
		{"redirected to front page", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/favorites.php" {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			io.WriteString(w, "<html>front page</html>")
		}, ErrBadCookie},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestClient(t, tt.handler).Probe(context.Background())
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProbeSendsCookiesAndReportsStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "ipb_member_id=42; ipb_pass_hash=abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	err := client.Probe(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
}

func favoritesHandler(pages [][]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("favcat") == "" {
			io.WriteString(w, `<div class="fp"><div class="i" title="Main"></div></div><div class="fp"><div class="i" title="Doujin"></div></div>`)
			return
		}
		page := 0
		fmt.Sscanf(r.URL.Query().Get("next"), "%d", &page)
		var b strings.Builder
		b.WriteString("<table>")
		for _, link := range pages[page] {
			fmt.Fprintf(&b, `<tr><td class="gl3c glname"><a href="%s"><div class="glink">title</div></a></td></tr>`, link)
		}
		b.WriteString("</table>")
		if page+1 < len(pages) {
			fmt.Fprintf(&b, `<a id="unext" href="/favorites.php?favcat=%s&next=%d">Next</a>`, r.URL.Query().Get("favcat"), page+1)
		}
		io.WriteString(w, b.String())
	}
}

func TestEnumerate(t *testing.T) {
	pages := [][]string{
		{"https://e-hentai.org/g/1/aaaa/", "https://e-hentai.org/g/2/bbbb/"},
		{"https://e-hentai.org/g/3/cccc/", "https://e-hentai.org/about"},
		{"https://e-hentai.org/g/4/dddd/"},
	}
	client := newTestClient(t, favoritesHandler(pages))
	enum := NewEnumerator(client)

	first, err := enum.Enumerate(context.Background(), 0)
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	var gids []int64
	for _, ref := range first {
		gids = append(gids, ref.GID)
	}
	if fmt.Sprint(gids) != "[1 2 3 4]" {
		t.Fatalf("gids = %v, want [1 2 3 4]", gids)
	}

	second, err := enum.Enumerate(context.Background(), 0)
	if err != nil {
		t.Fatalf("second Enumerate: %v", err)
	}
	if fmt.Sprint(second) != fmt.Sprint(first) {
		t.Errorf("enumeration not stable: %v vs %v", second, first)
	}

	folders, err := enum.FavoriteFolders(context.Background())
	if err != nil {
		t.Fatalf("FavoriteFolders: %v", err)
	}
	if strings.Join(folders, ",") != "Main,Doujin" {
		t.Errorf("folders = %v", folders)
	}
}

func TestEnumerateCancelledMidway(t *testing.T) {
	pages := [][]string{
		{"https://e-hentai.org/g/1/aaaa/"},
		{"https://e-hentai.org/g/2/bbbb/"},
		{"https://e-hentai.org/g/3/cccc/"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var served atomic.Int32
	pagesHandler := favoritesHandler(pages)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) == 2 {
			cancel()
		}
		pagesHandler(w, r)
	}))

	refs, err := NewEnumerator(client).Enumerate(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if refs != nil {
		t.Errorf("refs = %v, want nil on cancellation", refs)
	}
	if n := served.Load(); n != 2 {
		t.Errorf("served %d pages, want 2", n)
	}
}

func TestEnumerateErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		_, err := NewEnumerator(client).Enumerate(context.Background(), 1)
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected StatusError 503, got %v", err)
		}
	})
	t.Run("empty page", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
		}))
		_, err := NewEnumerator(client).Enumerate(context.Background(), 1)
		if !errors.Is(err, ErrBadCookie) {
			t.Fatalf("expected ErrBadCookie, got %v", err)
		}
	})
}

func TestMetadata(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method  string  `json:"method"`
			GIDList [][]any `json:"gidlist"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "gdata" || len(req.GIDList) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.GIDList[0][1] == "dead" {
			io.WriteString(w, `{"gmetadata":[{"gid":9,"error":"Key missing, or incorrect key provided."}]}`)
			return
		}
		io.WriteString(w, `{"gmetadata":[{"gid":123,"token":"abcdef","title":"[Circle (Artist)] Title","title_jpn":"","posted":"1700000000","tags":["language:english","group:circle","artist:artist"]}]}`)
	}))

	meta, err := client.Metadata(context.Background(), utils.GalleryRef{GID: 123, Token: "abcdef"})
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if meta.Title != "[Circle (Artist)] Title" || meta.Group() != "circle" {
		t.Errorf("meta = %+v", meta)
	}
	posted, err := meta.PostedTime()
	if err != nil || posted.Unix() != 1700000000 {
		t.Errorf("PostedTime = %v, %v", posted, err)
	}

	_, err = client.Metadata(context.Background(), utils.GalleryRef{GID: 9, Token: "dead"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
