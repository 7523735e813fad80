package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// GalleryRef identifies one gallery on the site, the unit of download.
type GalleryRef struct {
	GID   int64
	Token string
	URL   string
}

func (g GalleryRef) String() string {
	return fmt.Sprintf("%d/%s", g.GID, g.Token)
}

var galleryURLRegex = regexp.MustCompile(`/g/(\d+)/([a-f0-9]+)/?`)

var ErrNotGalleryURL = errors.New("not a gallery url")

func ParseGalleryURL(link string) (GalleryRef, error) {
	matches := galleryURLRegex.FindStringSubmatch(link)
	if len(matches) < 3 {
		return GalleryRef{}, fmt.Errorf("%w: %s", ErrNotGalleryURL, link)
	}
	gid, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return GalleryRef{}, fmt.Errorf("%w: %s", ErrNotGalleryURL, link)
	}
	return GalleryRef{GID: gid, Token: matches[2], URL: link}, nil
}

// Quality selects which archive variant is requested.
type Quality string

const (
	QualityOriginal Quality = "original"
	QualityResample Quality = "resample"
)

func ParseQuality(s string) (Quality, error) {
	switch s {
	case "", "1", "original", "org":
		return QualityOriginal, nil
	case "2", "resample", "res":
		return QualityResample, nil
	}
	return "", fmt.Errorf("unknown quality %q (want original or resample)", s)
}

// DownloadTask is immutable once built from a resolved archive link.
type DownloadTask struct {
	URL        string
	OutputPath string
	TotalSize  int64
	Chunks     int
}

// DownloadChunk is the inclusive byte range [StartByte, EndByte] of chunk ID.
type DownloadChunk struct {
	ID        int
	StartByte int64
	EndByte   int64
}

func (c DownloadChunk) Size() int64 {
	return c.EndByte - c.StartByte + 1
}

// ChunkResult carries either the payload of a chunk or the error that ended its retries.
type ChunkResult struct {
	ID   int
	Data []byte
	Err  error
}

// ProgressFunc receives cumulative downloaded bytes for one task.
type ProgressFunc func(downloaded, total int64)
