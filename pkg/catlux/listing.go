package catlux

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"catlux/pkg/catalog"
	errs "catlux/pkg/errors"
	"catlux/pkg/models"

	"github.com/PuerkitoBio/goquery"
)

const (
	containerSelector = "div.doc.item"
	downloadSelector  = `a[href*="dl="]`
	titleSelector     = ".title, h2, h3, h4"
	categorySelector  = ".category, .subject"
	referenceSelector = ".reference, .number, .nr"
)

// PageURL returns the listing URL of page n of a category
func (c *Client) PageURL(category string, page int) (string, error) {
	resolved, err := c.Resolve(category)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(resolved)
	if err != nil {
		return "", errs.NewFetchError(errs.ErrorTypeParsing, 0, fmt.Sprintf("invalid category URL %q", category), err)
	}
	q := u.Query()
	q.Set(c.pageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchPage downloads and parses one listing page. A page without any
// download links ends the listing.
func (c *Client) FetchPage(ctx context.Context, category string, page int) ([]models.Descriptor, error) {
	pageURL, err := c.PageURL(category, page)
	if err != nil {
		return nil, err
	}

	c.logger.InfoWithFields("Fetching listing page", map[string]interface{}{"page": page, "url": pageURL})

	body, err := c.fetch(ctx, http.MethodGet, pageURL, nil, "")
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)
	descs, err := ParseListing(bytes.NewReader(body), base)
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return nil, catalog.ErrEndOfListing
	}
	return descs, nil
}

// ParseListing extracts document descriptors from a listing page. Relative
// links are resolved against base.
func ParseListing(r io.Reader, base *url.URL) ([]models.Descriptor, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errs.NewFetchError(errs.ErrorTypeParsing, 0, "failed to parse listing page", err)
	}

	p := &listingParser{base: base, index: make(map[string]int)}

	containers := doc.Find(containerSelector)
	if containers.Length() > 0 {
		containers.Each(func(_ int, s *goquery.Selection) {
			p.container(s)
		})
	} else {
		// Pages without document containers still list bare download links
		doc.Find(downloadSelector).Each(func(_ int, a *goquery.Selection) {
			p.link(a, models.Descriptor{})
		})
	}

	return p.descs, nil
}

type listingParser struct {
	base  *url.URL
	descs []models.Descriptor
	index map[string]int
}

func (p *listingParser) container(s *goquery.Selection) {
	meta := models.Descriptor{
		Title:          cleanText(s.Find(titleSelector).First().Text()),
		Category:       cleanText(s.Find(categorySelector).First().Text()),
		ReferenceLabel: cleanText(s.Find(referenceSelector).First().Text()),
	}
	if models.ParseReference(meta.ReferenceLabel) == models.NoReference {
		meta.ReferenceLabel = cleanText(s.Text())
	}

	s.Find(downloadSelector).Each(func(_ int, a *goquery.Selection) {
		p.link(a, meta)
	})
}

func (p *listingParser) link(a *goquery.Selection, meta models.Descriptor) {
	href, ok := a.Attr("href")
	if !ok {
		return
	}
	locator, name := p.resolve(href)
	if name == "" {
		return
	}

	id := strings.TrimSuffix(name, models.SolutionSuffix)
	solution := id != name

	i, seen := p.index[id]
	if !seen {
		d := meta
		d.ID = id
		if d.Title == "" {
			d.Title = cleanText(a.Text())
		}
		if d.ReferenceLabel == "" {
			d.ReferenceLabel = d.Title
		}
		p.descs = append(p.descs, d)
		i = len(p.descs) - 1
		p.index[id] = i
	}

	d := &p.descs[i]
	if solution {
		if d.SolutionLocator == "" {
			d.SolutionLocator = locator
		}
		if d.ExamLocator == "" {
			d.ExamLocator = catalog.ExamLocator(locator)
		}
		return
	}
	d.ExamLocator = locator
}

// resolve returns the absolute locator and the document name, which is the
// last path segment without query and .pdf extension
func (p *listingParser) resolve(href string) (string, string) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", ""
	}
	abs := ref
	if p.base != nil {
		abs = p.base.ResolveReference(ref)
	}

	name := path.Base(abs.Path)
	if name == "." || name == "/" {
		return "", ""
	}
	if ext := path.Ext(name); strings.EqualFold(ext, ".pdf") {
		name = strings.TrimSuffix(name, ext)
	}
	return abs.String(), name
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
