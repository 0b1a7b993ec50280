package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "harvest"

	// DefaultBaseURL is the origin catalog site.
	DefaultBaseURL = "http://www.ryongnamsan.edu.kp"

	// DefaultPageSize is the number of listings the origin renders per page.
	DefaultPageSize = 17

	// DefaultDeepCrawlThreshold is the listing count from which an issue page
	// is paginated during the deep crawl. Smaller issues fit on one page.
	DefaultDeepCrawlThreshold = 12

	// DefaultCrawlDelay is the delay between requests to the origin.
	// The origin is slow and easily overloaded, so 2 seconds is conservative.
	DefaultCrawlDelay = 2 * time.Second

	// DefaultTimeout is the per-request timeout for the origin and the
	// lookup gateway. The gateway can take close to a minute on a cold search.
	DefaultTimeout = 60 * time.Second

	// DefaultUserAgent identifies harvest in HTTP requests.
	DefaultUserAgent = "harvest/1.0 (+https://github.com/nao1215/harvest)"

	// DefaultMaxBodySize limits the size of a catalog page read from the origin.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultIntervalSize is the number of lookup keys per work interval.
	DefaultIntervalSize = 100

	// DefaultMaxRetries is the number of retry rounds after the first wave.
	DefaultMaxRetries = 5

	// DefaultLookupConcurrency bounds concurrent lookups inside one work unit.
	DefaultLookupConcurrency = 10

	// DefaultUnitConcurrency bounds concurrently running work units.
	DefaultUnitConcurrency = 4

	// DefaultGatewayURL is the scraping gateway used for lookups.
	DefaultGatewayURL = "http://api.scraperapi.com"

	// DefaultTorStartupTimeout bounds the bootstrap of the embedded Tor daemon.
	DefaultTorStartupTimeout = 3 * time.Minute

	// checkpointDirName is the checkpoint directory below the data directory.
	checkpointDirName = "refs"
)

// DefaultLanguages are the catalog languages crawled by default.
var DefaultLanguages = []string{"en", "ko"}

// Config holds all configuration options for harvest.
// This struct is populated from defaults, the configuration file and CLI
// flags, in that order, and passed through the application via dependency
// injection rather than global state.
//
// Design decision: We keep a single flat struct, as the rest of the
// application reads it only when wiring components.
type Config struct {
	// === Origin crawl ===

	// BaseURL is the origin catalog site.
	BaseURL string

	// Languages are the catalog languages to crawl, as BCP 47 tags.
	Languages []string

	// PageSize is the number of listings per origin page.
	PageSize int

	// DeepCrawlThreshold is the issue listing count from which issue pages
	// are paginated.
	DeepCrawlThreshold int

	// CrawlDelay is the delay between requests to the origin.
	// Zero disables the delay.
	CrawlDelay time.Duration

	// UserAgent is the User-Agent header sent to the origin.
	UserAgent string

	// MaxBodySize is the maximum page size in bytes read from the origin.
	MaxBodySize int64

	// Headers are extra HTTP headers sent to the origin, such as a cookie.
	Headers map[string]string

	// === Transport ===

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// EmbeddedTor starts an embedded Tor daemon and routes every request
	// through it. Mutually exclusive with ProxyAddress.
	EmbeddedTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap.
	TorStartupTimeout time.Duration

	// === Lookup ===

	// Credentials are the gateway API keys. Each key runs one block of
	// work intervals per wave.
	Credentials []string

	// KeysFile is the path of the lookup key bank.
	KeysFile string

	// GatewayURL is the scraping gateway endpoint.
	GatewayURL string

	// SearchURLTemplate is the search URL fetched through the gateway. An
	// empty value uses the lookup client default.
	SearchURLTemplate string

	// SkipMarkers are citation substrings that are never looked up.
	// Nil uses the lookup client default.
	SkipMarkers []string

	// RatePerCredential limits lookups per second for each credential.
	// Zero means unlimited.
	RatePerCredential int

	// IntervalSize is the number of lookup keys per work interval.
	IntervalSize int

	// MaxRetries is the number of retry rounds after the first wave.
	MaxRetries int

	// LookupConcurrency bounds concurrent lookups inside one unit.
	LookupConcurrency int

	// UnitConcurrency bounds concurrently running units.
	UnitConcurrency int

	// CheckpointDir holds the per-interval checkpoint files.
	CheckpointDir string

	// === Storage and output ===

	// DBDir is the directory of the SQLite database.
	DBDir string

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .harvest.yaml in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// JSONReport selects the JSON report format.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown report format.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When empty, the report is written to stdout.
	ReportFile string

	// ContinueOnError keeps running later pipeline steps after a step fails.
	ContinueOnError bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because most defaults are non-zero. This also serves as
// documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		BaseURL:            DefaultBaseURL,
		Languages:          append([]string(nil), DefaultLanguages...),
		PageSize:           DefaultPageSize,
		DeepCrawlThreshold: DefaultDeepCrawlThreshold,
		CrawlDelay:         DefaultCrawlDelay,
		UserAgent:          DefaultUserAgent,
		MaxBodySize:        DefaultMaxBodySize,
		Timeout:            DefaultTimeout,
		TorStartupTimeout:  DefaultTorStartupTimeout,
		GatewayURL:         DefaultGatewayURL,
		IntervalSize:       DefaultIntervalSize,
		MaxRetries:         DefaultMaxRetries,
		LookupConcurrency:  DefaultLookupConcurrency,
		UnitConcurrency:    DefaultUnitConcurrency,
		CheckpointDir:      filepath.Join(XDGDataDir(), checkpointDirName),
		DBDir:              XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for harvest.
// On Linux: ~/.local/share/harvest
// On macOS: ~/Library/Application Support/harvest
// On Windows: %LOCALAPPDATA%\harvest
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for harvest.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for harvest.
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the settings every run needs.
// It returns the first problem found as a sentinel error.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// Lookup credentials are checked separately by ValidateLookup because a
// crawl-only run does not need them.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	if len(c.Languages) == 0 {
		return ErrNoLanguages
	}
	for _, lang := range c.Languages {
		if _, err := language.Parse(lang); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidLanguage, lang)
		}
	}

	if c.PageSize <= 0 {
		return ErrInvalidPageSize
	}
	if c.DeepCrawlThreshold <= 0 {
		return ErrInvalidDeepCrawlThreshold
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.EmbeddedTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}
	if c.EmbeddedTor && c.TorStartupTimeout <= 0 {
		return ErrInvalidTorStartupTimeout
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// ValidateLookup checks the settings an enrichment run needs.
func (c *Config) ValidateLookup() error {
	if len(c.Credentials) == 0 {
		return ErrNoCredentials
	}
	for i, cred := range c.Credentials {
		if cred == "" {
			return fmt.Errorf("%w: credential %d", ErrEmptyCredential, i)
		}
	}
	if c.KeysFile == "" {
		return ErrNoKeysFile
	}
	if c.IntervalSize <= 0 {
		return ErrInvalidIntervalSize
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if c.LookupConcurrency <= 0 || c.UnitConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.RatePerCredential < 0 {
		return ErrInvalidRate
	}
	if c.CheckpointDir == "" {
		return ErrNoCheckpointDir
	}
	return nil
}

// LanguageNames returns the English display name of each configured
// language, falling back to the tag itself when it cannot be parsed.
func (c *Config) LanguageNames() []string {
	names := make([]string, 0, len(c.Languages))
	namer := display.English.Languages()
	for _, lang := range c.Languages {
		tag, err := language.Parse(lang)
		if err != nil {
			names = append(names, lang)
			continue
		}
		names = append(names, namer.Name(tag))
	}
	return names
}
