package lifecycle

import "context"

// PageFetcher fetches the page following the after cursor ("" for the first).
type PageFetcher func(ctx context.Context, after string) (*SearchResult, error)

// PageHandler consumes one page.
type PageHandler func(ctx context.Context, page *SearchResult) error

// ForEachPage drives cursor pagination: it fetches pages of size count and
// hands each to each, stopping after a page shorter than count, on the first
// error from either callback, or when ctx is done.
func ForEachPage(ctx context.Context, count int, fetch PageFetcher, each PageHandler) error {
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := fetch(ctx, after)
		if err != nil {
			return err
		}
		if page == nil {
			return nil
		}
		if len(page.Results) > 0 {
			if err := each(ctx, page); err != nil {
				return err
			}
		}
		if len(page.Results) < count {
			return nil
		}
		after = page.Last
		if after == "" {
			after = page.Results[len(page.Results)-1]
		}
	}
}
