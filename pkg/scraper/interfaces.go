package scraper

import (
	"context"

	"catlux/internal/downloader"
	"catlux/pkg/catalog"
)

// SiteClient is the session against the document site
type SiteClient interface {
	catalog.Lister
	downloader.Fetcher
	Login(ctx context.Context, username, password string) error
}
