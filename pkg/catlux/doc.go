// Package catlux is the HTTP session against the CatLux document site.
//
// A Client logs in through the site's form login, reads paginated category
// listings into descriptors and downloads single PDF documents:
//
//	client, err := catlux.NewClientFromConfig(cfg, log)
//	if err != nil {
//	    return err
//	}
//	if err := client.Login(ctx, user, pass); err != nil {
//	    return err
//	}
//	cat, err := catalog.Build(ctx, client, categoryURL, cfg.Download.MaxPages, log)
//
// Client satisfies catalog.Lister and the downloader's Fetcher. Every request
// goes through the configured rate limiter. Only the login handshake is
// retried.
package catlux
