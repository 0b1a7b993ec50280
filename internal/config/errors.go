package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and Config.ValidateLookup()
// and provide specific information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrInvalidBaseURL is returned when the origin URL is not an absolute
	// http or https URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http or https URL")

	// ErrNoLanguages is returned when no catalog language is configured.
	ErrNoLanguages = errors.New("no languages specified")

	// ErrInvalidLanguage is returned when a language is not a valid BCP 47 tag.
	ErrInvalidLanguage = errors.New("invalid language tag")

	// ErrInvalidPageSize is returned when the page size is not positive.
	ErrInvalidPageSize = errors.New("invalid page size: must be positive")

	// ErrInvalidDeepCrawlThreshold is returned when the deep crawl threshold
	// is not positive.
	ErrInvalidDeepCrawlThreshold = errors.New("invalid deep crawl threshold: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	// Use 0 for no delay between requests.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingProxy is returned when both an external proxy and the
	// embedded Tor daemon are requested.
	ErrConflictingProxy = errors.New("conflicting proxy settings: --proxy and --tor cannot be used together")

	// ErrInvalidTorStartupTimeout is returned when the Tor bootstrap timeout
	// is not positive.
	ErrInvalidTorStartupTimeout = errors.New("invalid Tor startup timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrNoCredentials is returned when an enrichment run has no API keys.
	ErrNoCredentials = errors.New("no lookup credentials configured")

	// ErrEmptyCredential is returned when a configured API key is empty.
	ErrEmptyCredential = errors.New("empty lookup credential")

	// ErrNoKeysFile is returned when an enrichment run has no key bank.
	ErrNoKeysFile = errors.New("no lookup keys file specified: use --keys or lookup.keys_file")

	// ErrInvalidIntervalSize is returned when the interval size is not positive.
	ErrInvalidIntervalSize = errors.New("invalid interval size: must be positive")

	// ErrInvalidMaxRetries is returned when the retry budget is negative.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrInvalidConcurrency is returned when a concurrency limit is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRate is returned when the per-credential rate is negative.
	ErrInvalidRate = errors.New("invalid rate: must be non-negative")

	// ErrNoCheckpointDir is returned when no checkpoint directory is set.
	ErrNoCheckpointDir = errors.New("no checkpoint directory specified")
)
