// Package crawler harvests the paginated journal catalog of the origin site.
//
// # Architecture
//
// The Crawler drives a completeness-driven crawl through a PageFetcher:
//
//	ShallowCrawl -> CountCheck -> (Complete | DeepCrawl) -> Done
//
// The shallow pass walks the paginated category index of every language.
// The index under-represents some categories, so the count check visits
// every discovered category once to learn its authoritative listing count.
// Only categories whose collected count is still short are deep-crawled,
// descending category -> year -> issue -> page.
//
// # Components
//
//   - Crawler: The state machine coordinating the passes
//   - Tracker: Per-category expected vs. collected counts
//   - ListingSet: Order-preserving deduplicated listing records
//   - PageFetcher: One page retrieval and structural parse
//   - HTTPFetcher: The default PageFetcher for the origin's HTML layout
//
// # Politeness
//
// Every origin request made by HTTPFetcher first waits on an injected
// ratelimit.Gate. The default gate spaces consecutive requests by a fixed
// delay. This protects the origin server and is not a throughput setting.
//
// # Usage
//
//	fetcher := crawler.NewHTTPFetcher(client, baseURL, crawler.WithGate(gate))
//	c := crawler.New(fetcher, crawler.WithLanguages("en", "ko"))
//	result, err := c.Crawl(ctx)
package crawler
