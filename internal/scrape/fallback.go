package scrape

import (
	"context"
	"errors"

	"github.com/wepublish/dorfkoenig/infrastructure/logger"
)

// Fallback tries Primary and, on failure, Secondary.
type Fallback struct {
	Primary   Scraper
	Secondary Scraper
	Log       logger.Logger
}

// Scrape implements Scraper.
func (f *Fallback) Scrape(ctx context.Context, req Request) (*Page, error) {
	page, err := f.Primary.Scrape(ctx, req)
	if err == nil {
		return page, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	f.Log.Warn("Primary scraper failed, using fallback",
		logger.String("url", req.URL),
		logger.Error(err),
	)

	page, fallbackErr := f.Secondary.Scrape(ctx, req)
	if fallbackErr != nil {
		return nil, errors.Join(err, fallbackErr)
	}
	return page, nil
}
