package site

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tanq16/arcfetch/internal/utils"
)

// GalleryMetadata is one gmetadata entry of the gdata API.
type GalleryMetadata struct {
	GID       int64    `json:"gid"`
	Token     string   `json:"token"`
	Title     string   `json:"title"`
	TitleJpn  string   `json:"title_jpn"`
	Category  string   `json:"category,omitempty"`
	Uploader  string   `json:"uploader,omitempty"`
	Posted    string   `json:"posted"`
	FileCount string   `json:"filecount,omitempty"`
	FileSize  int64    `json:"filesize,omitempty"`
	Tags      []string `json:"tags"`
	Error     string   `json:"error,omitempty"`
}

// PostedTime parses the unix timestamp in Posted.
func (m *GalleryMetadata) PostedTime() (time.Time, error) {
	secs, err := strconv.ParseInt(m.Posted, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid posted timestamp %q", m.Posted)
	}
	return time.Unix(secs, 0).UTC(), nil
}

// Group returns the first group tag, or "" when the gallery has none.
func (m *GalleryMetadata) Group() string {
	for _, tag := range m.Tags {
		if name, ok := strings.CutPrefix(tag, "group:"); ok {
			return name
		}
	}
	return ""
}

type gdataRequest struct {
	Method    string  `json:"method"`
	GIDList   [][]any `json:"gidlist"`
	Namespace int     `json:"namespace"`
}

type gdataResponse struct {
	GMetadata []GalleryMetadata `json:"gmetadata"`
}

// Metadata looks a gallery up through the gdata API.
func (c *Client) Metadata(ctx context.Context, ref utils.GalleryRef) (*GalleryMetadata, error) {
	payload, err := json.Marshal(gdataRequest{
		Method:    "gdata",
		GIDList:   [][]any{{ref.GID, ref.Token}},
		Namespace: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding gdata request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "gdata api", StatusCode: resp.StatusCode}
	}
	var decoded gdataResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("error decoding gdata response: %w", err)
	}
	if len(decoded.GMetadata) == 0 {
		return nil, fmt.Errorf("gdata response has no entry for %s", ref)
	}
	meta := decoded.GMetadata[0]
	if meta.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, meta.Error)
	}
	return &meta, nil
}
