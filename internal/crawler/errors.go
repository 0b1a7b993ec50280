package crawler

import "errors"

// ErrNoLanguages is returned by Crawl when no catalog language is configured.
var ErrNoLanguages = errors.New("no catalog languages configured")

// ErrInvalidBaseURL is returned when the origin base URL cannot be parsed.
var ErrInvalidBaseURL = errors.New("invalid origin base URL")
