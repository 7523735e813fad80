package tagdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	LatestReleaseURL = "https://api.github.com/repos/EhTagTranslation/Database/releases/latest"
	AssetName        = "db.text.json"
	groupNamespace   = "group"
)

// DB maps raw tags to their translated names. A nil DB translates nothing.
type DB struct {
	Version string
	groups  map[string]string
}

func New(version string, groups map[string]string) *DB {
	return &DB{Version: version, groups: groups}
}

// TranslateGroup returns the translated group name, or "" when unknown.
func (d *DB) TranslateGroup(raw string) string {
	if d == nil {
		return ""
	}
	return d.groups[raw]
}

func (d *DB) Len() int {
	if d == nil {
		return 0
	}
	return len(d.groups)
}

type release struct {
	TagName string `json:"tag_name"`
	Assets  []struct {
		Name        string `json:"name"`
		DownloadURL string `json:"browser_download_url"`
	} `json:"assets"`
}

type database struct {
	Data []struct {
		Namespace string `json:"namespace"`
		Data      map[string]struct {
			Name string `json:"name"`
		} `json:"data"`
	} `json:"data"`
}

type Loader struct {
	client     *http.Client
	releaseURL string
}

// NewLoader wraps base with a GitHub token when one is given.
func NewLoader(base *http.Client, token, releaseURL string) *Loader {
	if base == nil {
		base = http.DefaultClient
	}
	if releaseURL == "" {
		releaseURL = LatestReleaseURL
	}
	client := base
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return &Loader{client: client, releaseURL: releaseURL}
}

func (l *Loader) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed with status code: %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}

// Load fetches the latest translation database release.
func (l *Loader) Load(ctx context.Context) (*DB, error) {
	var rel release
	if err := l.getJSON(ctx, l.releaseURL, &rel); err != nil {
		return nil, err
	}
	assetURL := ""
	for _, asset := range rel.Assets {
		if asset.Name == AssetName {
			assetURL = asset.DownloadURL
			break
		}
	}
	if assetURL == "" {
		return nil, fmt.Errorf("release %s has no %s asset", rel.TagName, AssetName)
	}

	var db database
	if err := l.getJSON(ctx, assetURL, &db); err != nil {
		return nil, err
	}
	groups := make(map[string]string)
	for _, ns := range db.Data {
		if ns.Namespace != groupNamespace {
			continue
		}
		for raw, entry := range ns.Data {
			groups[raw] = entry.Name
		}
	}
	log.Info().Str("op", "tagdb/load").Msgf("loaded %d group translations from %s", len(groups), rel.TagName)
	return New(rel.TagName, groups), nil
}
