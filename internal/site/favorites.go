package site

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/arcfetch/internal/utils"
)

// FavcatAll selects every favorites folder.
const FavcatAll = 10

// Enumerator walks the paginated favorites listing.
type Enumerator struct {
	client *Client
}

func NewEnumerator(client *Client) *Enumerator {
	return &Enumerator{client: client}
}

// collector builds a collector that records page-level failures into pageErr.
func (e *Enumerator) collector(ctx context.Context, pageErr *error) *colly.Collector {
	c := colly.NewCollector()
	c.SetClient(e.client.http.HTTPClient())
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		e.client.http.ApplyHeaders(*r.Headers)
	})
	c.OnResponseHeaders(func(r *colly.Response) {
		if ctx.Err() != nil {
			r.Request.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		if len(r.Body) == 0 {
			*pageErr = fmt.Errorf("%w: empty favorites page", ErrBadCookie)
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.StatusCode != http.StatusOK {
			*pageErr = &StatusError{Op: "favorites page", StatusCode: r.StatusCode}
		}
	})
	return c
}

// visit loads one page. An aborted request returns nil from Visit, so cancellation is read back from ctx.
func visit(ctx context.Context, c *colly.Collector, target string, pageErr *error) error {
	*pageErr = nil
	err := c.Visit(target)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		if *pageErr != nil {
			return *pageErr
		}
		return fmt.Errorf("error loading %s: %w", target, err)
	}
	return *pageErr
}

// Enumerate returns the galleries of a favorites folder in page order.
func (e *Enumerator) Enumerate(ctx context.Context, favcat int) ([]utils.GalleryRef, error) {
	var refs []utils.GalleryRef
	var next string
	var pageErr error
	seen := make(map[string]bool)

	c := e.collector(ctx, &pageErr)
	c.OnHTML("td.gl3c.glname", func(el *colly.HTMLElement) {
		href := el.ChildAttr("a", "href")
		if href == "" {
			return
		}
		ref, err := utils.ParseGalleryURL(el.Request.AbsoluteURL(href))
		if err != nil {
			log.Warn().Str("op", "site/favorites").Msgf("skipping unrecognised link %s", href)
			return
		}
		refs = append(refs, ref)
	})
	c.OnHTML("a.unext[href], a#unext[href]", func(el *colly.HTMLElement) {
		if next == "" {
			next = el.Request.AbsoluteURL(el.Attr("href"))
		}
	})

	target := e.client.favoritesURL(favcat)
	for page := 1; target != ""; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next = ""
		seen[target] = true
		if err := visit(ctx, c, target, &pageErr); err != nil {
			return nil, err
		}
		log.Debug().Str("op", "site/favorites").Int("page", page).Int("total", len(refs)).Msg("favorites page collected")
		if seen[next] {
			break
		}
		target = next
	}
	log.Info().Str("op", "site/favorites").Msgf("found %d galleries in favorites", len(refs))
	return refs, nil
}

// FavoriteFolders lists the favorites folder names in folder order.
func (e *Enumerator) FavoriteFolders(ctx context.Context) ([]string, error) {
	var folders []string
	var pageErr error
	c := e.collector(ctx, &pageErr)
	c.OnHTML("div.i[title]", func(el *colly.HTMLElement) {
		folders = append(folders, strings.TrimSpace(el.Attr("title")))
	})
	if err := visit(ctx, c, e.client.baseURL+"/favorites.php", &pageErr); err != nil {
		return nil, err
	}
	return folders, nil
}
