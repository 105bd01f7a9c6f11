// Package static reads galleries from server-rendered HTML without a
// browser. It implements the same page surface as the browser tab but
// cannot scroll, so lazily loaded images must already be in the markup.
package static

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	errs "galleryzip/pkg/errors"
	"galleryzip/pkg/gallery"
)

// PageFetcher returns the raw HTML of a page
type PageFetcher interface {
	GetPage(ctx context.Context, pageURL string) (io.ReadCloser, error)
}

// Page is a parsed HTML document
type Page struct {
	fetcher PageFetcher
	doc     *goquery.Document
	base    *url.URL
}

// NewPage returns an empty page that loads on Navigate
func NewPage(fetcher PageFetcher) *Page {
	return &Page{fetcher: fetcher}
}

// Navigate fetches and parses pageURL
func (p *Page) Navigate(ctx context.Context, pageURL string) error {
	base, err := url.Parse(pageURL)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNavigation, "invalid page URL", err)
	}

	body, err := p.fetcher.GetPage(ctx, pageURL)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNavigation, "failed to fetch page", err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, "failed to parse page", err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}
	p.doc, p.base = doc, base
	return nil
}

func (p *Page) loaded() error {
	if p.doc == nil {
		return errs.New(errs.ErrorTypeNavigation, "page not loaded")
	}
	return nil
}

// Title returns the text of the <title> element
func (p *Page) Title(ctx context.Context) (string, error) {
	if err := p.loaded(); err != nil {
		return "", err
	}
	return strings.TrimSpace(p.doc.Find("title").First().Text()), nil
}

// WaitVisible succeeds when selector matches; markup does not change, so
// there is nothing to wait for.
func (p *Page) WaitVisible(ctx context.Context, selector string, _ time.Duration) error {
	if err := p.loaded(); err != nil {
		return err
	}
	if p.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("no element matches %q", selector)
	}
	return nil
}

// ExpectedCount reads the gallery counter element. Zero means unknown.
func (p *Page) ExpectedCount(ctx context.Context, counterSelector string) (int, error) {
	if err := p.loaded(); err != nil {
		return 0, err
	}
	if counterSelector == "" {
		return 0, nil
	}
	return gallery.ParseCounter(p.doc.Find(counterSelector).First().Text()), nil
}

// CountMatches counts the elements matching selector
func (p *Page) CountMatches(ctx context.Context, selector string) (int, error) {
	if err := p.loaded(); err != nil {
		return 0, err
	}
	return p.doc.Find(selector).Length(), nil
}

// Snapshot returns the source attributes of every element matching
// selector, resolved against the page URL, in document order
func (p *Page) Snapshot(ctx context.Context, selector string) ([]gallery.Element, error) {
	if err := p.loaded(); err != nil {
		return nil, err
	}
	var out []gallery.Element
	p.doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		out = append(out, gallery.Element{
			Src:          p.abs(s.AttrOr("src", "")),
			DataSrc:      p.abs(s.AttrOr("data-src", "")),
			DataOriginal: p.abs(s.AttrOr("data-original", "")),
			DataLazySrc:  p.abs(s.AttrOr("data-lazy-src", "")),
		})
	})
	return out, nil
}

func (p *Page) abs(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.HasPrefix(v, "data:") {
		return v
	}
	u, err := p.base.Parse(v)
	if err != nil {
		return v
	}
	return u.String()
}

// Close releases the parsed document
func (p *Page) Close() error {
	p.doc = nil
	return nil
}
