package site

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/utils"
)

const (
	EHentaiURL  = "https://e-hentai.org"
	ExHentaiURL = "https://exhentai.org"
	APIURL      = "https://api.e-hentai.org/api.php"
)

var (
	ErrUnavailable        = errors.New("gallery is currently unavailable")
	ErrBadCookie          = errors.New("session cookies were rejected")
	ErrInsufficientCredit = errors.New("not enough GP or credits for this archive")
	ErrRateLimited        = errors.New("this IP address has been temporarily limited")
)

// StatusError reports a site response with an unexpected HTTP status.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d", e.Op, e.StatusCode)
}

// Client talks to the gallery site with the session cookies configured on its HTTP client.
type Client struct {
	http    *utils.ArcHTTPClient
	baseURL string
	apiURL  string
}

func NewClient(httpClient *utils.ArcHTTPClient, baseURL, apiURL string) *Client {
	if baseURL == "" {
		baseURL = EHentaiURL
	}
	if apiURL == "" {
		apiURL = APIURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiURL:  apiURL,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) archiverURL(ref utils.GalleryRef) string {
	return fmt.Sprintf("%s/archiver.php?gid=%d&token=%s", c.baseURL, ref.GID, url.QueryEscape(ref.Token))
}

func (c *Client) favoritesURL(favcat int) string {
	if favcat < 0 || favcat >= 10 {
		return c.baseURL + "/favorites.php?favcat=all"
	}
	return fmt.Sprintf("%s/favorites.php?favcat=%d", c.baseURL, favcat)
}

func (c *Client) get(ctx context.Context, target string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating request: %w", err)
	}
	return c.do(req)
}

func (c *Client) postForm(ctx context.Context, target string, form url.Values) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("error reading response: %w", err)
	}
	return resp, body, nil
}

// Probe checks that the configured cookies open the favorites page. Redirects are not
// followed, since a rejected session is answered with a redirect to the login flow.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/favorites.php", nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	c.http.ApplyHeaders(req.Header)
	noRedirect := *c.http.HTTPClient()
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return fmt.Errorf("%w: redirected to %s", ErrBadCookie, resp.Header.Get("Location"))
	case resp.StatusCode != http.StatusOK:
		return &StatusError{Op: "cookie probe", StatusCode: resp.StatusCode}
	case len(body) == 0:
		// exhentai answers an unauthenticated session with an empty page
		return fmt.Errorf("%w: empty favorites page", ErrBadCookie)
	}
	log.Debug().Str("op", "site/client").Msg("session cookies accepted")
	return nil
}
