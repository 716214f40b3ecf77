// Package crawler walks lists and the links of cached pages to build the
// offline cache.
//
// A Crawler fetches one resource at a time through a Navigator, reads the
// cached body back and follows its links depth-first until the configured
// depth is exhausted. Resources that were never cached before can be
// queued on the tour so the user finds them on their next read.
//
// The order in which lists are crawled is decided by the pipeline
// package; this package only knows how to crawl a single list or
// resource.
//
// # Usage
//
//	c := crawler.New(session, listStore, parser, crawler.WithDepth(1))
//	plan, err := c.Plan()
//	err = c.FetchList(ctx, "bookmarks", crawler.ListPolicy{Depth: 1}, report)
package crawler
