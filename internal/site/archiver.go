package site

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/utils"
)

const (
	unavailableText = "This gallery is currently unavailable."
	noFundsText     = "You do not have enough funds to download this archive."
	rateLimitText   = "This IP address has been"
)

// ArchiveOption is one archive variant offered on the archiver page.
type ArchiveOption struct {
	Available bool
	Free      bool
	Cost      int64 // GP, zero when free
	SizeMiB   float64
}

// Funds is the balance shown on the archiver page.
type Funds struct {
	Known   bool
	GP      int64
	Credits int64
}

type ArchiverPage struct {
	Original ArchiveOption
	Resample ArchiveOption
	Funds    Funds
}

// Option returns the offer for q.
func (p *ArchiverPage) Option(q utils.Quality) ArchiveOption {
	if q == utils.QualityResample {
		return p.Resample
	}
	return p.Original
}

var sizeRegex = regexp.MustCompile(`(?i)([\d.]+)\s*(KiB|MiB|GiB)`)

func parseSize(text string) float64 {
	m := sizeRegex.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(m[2]) {
	case "gib":
		n *= 1024
	case "kib":
		n /= 1024
	}
	return n
}

func parseOption(costText, sizeText string) (ArchiveOption, error) {
	opt := ArchiveOption{SizeMiB: parseSize(sizeText)}
	costText = strings.TrimSpace(costText)
	switch costText {
	case "N/A":
		return opt, nil
	case "Free!":
		opt.Available, opt.Free = true, true
		return opt, nil
	}
	fields := strings.Fields(strings.ReplaceAll(costText, ",", ""))
	if len(fields) == 0 {
		return opt, fmt.Errorf("empty archive cost")
	}
	cost, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return opt, fmt.Errorf("unrecognised archive cost %q", costText)
	}
	opt.Available, opt.Cost = true, cost
	return opt, nil
}

func parseFunds(doc *goquery.Document) Funds {
	var funds Funds
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "GP") || !strings.Contains(text, "Credits") {
			return true
		}
		cleaned := strings.NewReplacer("[", "", "]", "", "?", "", ",", "").Replace(text)
		fields := strings.Fields(cleaned)
		if len(fields) < 3 {
			return true
		}
		gp, errGP := strconv.ParseInt(fields[0], 10, 64)
		credits, errC := strconv.ParseInt(fields[2], 10, 64)
		if errGP != nil || errC != nil {
			return true
		}
		funds = Funds{Known: true, GP: gp, Credits: credits}
		return false
	})
	return funds
}

// ParseArchiverPage reads costs, sizes and the balance from an archiver page.
func ParseArchiverPage(body []byte) (*ArchiverPage, error) {
	if bytes.Contains(body, []byte(unavailableText)) {
		return nil, ErrUnavailable
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error parsing archiver page: %w", err)
	}
	strong := doc.Find("strong").Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})
	if len(strong) < 4 {
		return nil, fmt.Errorf("archiver page has %d cost fields, expected 4", len(strong))
	}
	original, err := parseOption(strong[0], strong[1])
	if err != nil {
		return nil, fmt.Errorf("original archive: %w", err)
	}
	resample, err := parseOption(strong[2], strong[3])
	if err != nil {
		return nil, fmt.Errorf("resample archive: %w", err)
	}
	return &ArchiverPage{Original: original, Resample: resample, Funds: parseFunds(doc)}, nil
}

// Archiver fetches and parses the archiver page of a gallery.
func (c *Client) Archiver(ctx context.Context, ref utils.GalleryRef) (*ArchiverPage, error) {
	resp, body, err := c.get(ctx, c.archiverURL(ref))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: "archiver page", StatusCode: resp.StatusCode}
	}
	page, err := ParseArchiverPage(body)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("op", "site/archiver").Str("gallery", ref.String()).
		Int64("original", page.Original.Cost).Int64("resample", page.Resample.Cost).
		Bool("funds", page.Funds.Known).Int64("gp", page.Funds.GP).Msg("archiver page parsed")
	return page, nil
}

// RequestArchive asks the site to prepare an archive and returns the issued download link.
func (c *Client) RequestArchive(ctx context.Context, ref utils.GalleryRef, q utils.Quality) (string, error) {
	form := url.Values{}
	if q == utils.QualityResample {
		form.Set("dltype", "res")
		form.Set("dlcheck", "Download Resample Archive")
	} else {
		form.Set("dltype", "org")
		form.Set("dlcheck", "Download Original Archive")
	}
	resp, body, err := c.postForm(ctx, c.archiverURL(ref), form)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Op: "archive request", StatusCode: resp.StatusCode}
	}
	return parseArchiveLink(body)
}

func parseArchiveLink(body []byte) (string, error) {
	switch {
	case bytes.Contains(body, []byte(rateLimitText)):
		return "", ErrRateLimited
	case bytes.Contains(body, []byte(noFundsText)):
		return "", ErrInsufficientCredit
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error parsing archive response: %w", err)
	}
	href, ok := doc.Find("a[href]").First().Attr("href")
	if !ok || href == "" {
		return "", fmt.Errorf("archive response contains no download link")
	}
	return href + "?start=1", nil
}

// InvalidateSessions destroys the archive sessions of a gallery so a fresh link can be issued.
func (c *Client) InvalidateSessions(ctx context.Context, ref utils.GalleryRef) error {
	form := url.Values{"invalidate_sessions": {"1"}}
	resp, _, err := c.postForm(ctx, c.archiverURL(ref), form)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "session invalidation", StatusCode: resp.StatusCode}
	}
	log.Debug().Str("op", "site/archiver").Str("gallery", ref.String()).Msg("archive sessions invalidated")
	return nil
}
