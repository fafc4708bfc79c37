package catalog

import (
	"context"
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"

	errs "catlux/pkg/errors"
	"catlux/pkg/logger"
	"catlux/pkg/models"
)

// ErrEndOfListing may be returned by a Lister instead of an empty page
var ErrEndOfListing = errors.New("end of listing")

// Lister fetches one page of a category listing. Pages are numbered from 1.
type Lister interface {
	FetchPage(ctx context.Context, category string, page int) ([]models.Descriptor, error)
}

// Catalog is the deduplicated set of documents discovered for one category.
// Every exam group contributes an exam record and a solution record.
type Catalog struct {
	records        []models.Record
	index          map[models.Key]int
	pagesProcessed int
}

// New returns an empty catalog
func New() *Catalog {
	return &Catalog{index: make(map[models.Key]int)}
}

// Build consumes pages 1..maxPages in order. It stops early at the first page
// that adds no new exam group. A page failure stops the build; the records
// collected so far are returned together with a PartialListingError.
func Build(ctx context.Context, lister Lister, category string, maxPages int, log logger.Logger) (*Catalog, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	cat := New()

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return cat, &errs.PartialListingError{PagesProcessed: cat.pagesProcessed, FailedPage: page, Err: err}
		}

		descs, err := lister.FetchPage(ctx, category, page)
		if errors.Is(err, ErrEndOfListing) {
			log.DebugWithFields("Listing ended", map[string]interface{}{"page": page})
			break
		}
		if err != nil {
			log.WithError(err).WarnWithFields("Listing page failed, continuing with partial catalog", map[string]interface{}{
				"page":            page,
				"pages_processed": cat.pagesProcessed,
				"records":         len(cat.records),
			})
			return cat, &errs.PartialListingError{PagesProcessed: cat.pagesProcessed, FailedPage: page, Err: err}
		}

		added := cat.Add(descs)
		if added == 0 {
			log.DebugWithFields("Page added no new documents, end of listing", map[string]interface{}{"page": page})
			break
		}
		cat.pagesProcessed = page

		log.DebugWithFields("Listing page processed", map[string]interface{}{
			"page":       page,
			"new_groups": added,
		})
	}

	log.InfoWithFields("Catalog built", map[string]interface{}{
		"category": category,
		"pages":    cat.pagesProcessed,
		"records":  len(cat.records),
	})
	return cat, nil
}

// Page is one listing result, used by FromPages
type Page struct {
	Descriptors []models.Descriptor
	Err         error
}

type pageLister []Page

func (p pageLister) FetchPage(_ context.Context, _ string, page int) ([]models.Descriptor, error) {
	if page > len(p) {
		return nil, ErrEndOfListing
	}
	return p[page-1].Descriptors, p[page-1].Err
}

// FromPages builds a catalog from already fetched page results
func FromPages(ctx context.Context, pages []Page, log logger.Logger) (*Catalog, error) {
	return Build(ctx, pageLister(pages), "", len(pages), log)
}

// Add merges descriptors into the catalog and returns how many exam groups were new
func (c *Catalog) Add(descs []models.Descriptor) int {
	newGroups := 0
	for _, d := range descs {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			continue
		}
		ref := models.ParseReference(d.ReferenceLabel)

		exam := models.Record{
			ID:        id,
			Kind:      models.KindExam,
			GroupID:   id,
			Reference: ref,
			Category:  d.Category,
			Title:     d.Title,
			Locator:   d.ExamLocator,
		}
		if c.insert(exam) {
			newGroups++
		}

		solLocator := d.SolutionLocator
		if solLocator == "" {
			solLocator = SolutionLocator(d.ExamLocator)
		}
		c.insert(models.Record{
			ID:        id + models.SolutionSuffix,
			Kind:      models.KindSolution,
			GroupID:   id,
			Reference: ref,
			Category:  d.Category,
			Title:     d.Title,
			Locator:   solLocator,
		})
	}
	return newGroups
}

func (c *Catalog) insert(r models.Record) bool {
	if _, ok := c.index[r.Key()]; ok {
		return false
	}
	c.index[r.Key()] = len(c.records)
	c.records = append(c.records, r)
	return true
}

// Len returns the number of records
func (c *Catalog) Len() int {
	return len(c.records)
}

// PagesProcessed returns how many pages contributed to the catalog
func (c *Catalog) PagesProcessed() int {
	return c.pagesProcessed
}

// Records returns the records in discovery order
func (c *Catalog) Records() []models.Record {
	out := make([]models.Record, len(c.records))
	copy(out, c.records)
	return out
}

// SortedByReference orders records by reference number, ties by discovery
// order, missing references last
func (c *Catalog) SortedByReference() []models.Record {
	out := c.Records()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Reference.Less(out[j].Reference)
	})
	return out
}

// Lookup finds a record by id and kind
func (c *Catalog) Lookup(id string, kind models.Kind) (models.Record, bool) {
	i, ok := c.index[models.Key{ID: id, Kind: kind}]
	if !ok {
		return models.Record{}, false
	}
	return c.records[i], true
}

// SolutionLocator derives a solution address from an exam address by
// suffixing the last path segment, keeping any query and a .pdf extension
func SolutionLocator(examLocator string) string {
	if examLocator == "" {
		return ""
	}
	u, err := url.Parse(examLocator)
	if err != nil || u.Path == "" {
		return ""
	}

	p := strings.TrimSuffix(u.Path, "/")
	if ext := path.Ext(p); strings.EqualFold(ext, ".pdf") {
		p = strings.TrimSuffix(p, ext) + models.SolutionSuffix + ext
	} else {
		p += models.SolutionSuffix
	}
	u.Path = p
	u.RawPath = ""
	return u.String()
}

// ExamLocator is the inverse of SolutionLocator: it strips the solution
// suffix from the last path segment only. It returns "" when that segment
// carries no suffix.
func ExamLocator(solutionLocator string) string {
	u, err := url.Parse(solutionLocator)
	if err != nil || u.Path == "" {
		return ""
	}

	dir, base := path.Split(strings.TrimSuffix(u.Path, "/"))
	ext := path.Ext(base)
	if !strings.EqualFold(ext, ".pdf") {
		ext = ""
	}
	stem := strings.TrimSuffix(base, ext)
	if !strings.HasSuffix(stem, models.SolutionSuffix) {
		return ""
	}
	u.Path = dir + strings.TrimSuffix(stem, models.SolutionSuffix) + ext
	u.RawPath = ""
	return u.String()
}
