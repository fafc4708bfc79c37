// Package scraper runs one download session end to end.
//
// A run logs in, reads the category listing into a catalog, scans the
// destination for documents already present, picks documents according to
// the selection and the remaining monthly quota, and downloads them one at a
// time:
//
//	s, err := scraper.NewFromConfig(cfg, account, log)
//	if err != nil {
//	    return err
//	}
//
//	result, err := s.Run(ctx, scraper.Options{
//	    CategoryURL: "https://www.catlux.de/probearbeiten/klasse-5/mathe",
//	    Selection:   "new",
//	})
//
// Every run gets its own run_id in the logs. A run that starts with no quota
// left returns errors.ErrQuotaExhausted without contacting the site.
package scraper
