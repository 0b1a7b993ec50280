package config

import "time"

// OriginConfig holds settings for the origin catalog site.
type OriginConfig struct {
	// BaseURL overrides the origin catalog site.
	BaseURL string `yaml:"base_url,omitempty"`

	// Languages overrides the crawled catalog languages.
	Languages []string `yaml:"languages,omitempty"`

	// CrawlDelay overrides the delay between origin requests, e.g. "2s".
	CrawlDelay string `yaml:"crawl_delay,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"user_agent,omitempty"`

	// Cookie is an HTTP cookie sent with every origin request.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every origin request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Proxy is an optional SOCKS5 proxy in "host:port" format.
	Proxy string `yaml:"proxy,omitempty"`

	// EmbeddedTor routes every request through an embedded Tor daemon.
	EmbeddedTor bool `yaml:"embedded_tor,omitempty"`
}

// LookupConfig holds settings for the enrichment pipeline.
type LookupConfig struct {
	// Credentials are the gateway API keys.
	Credentials []string `yaml:"credentials,omitempty"`

	// KeysFile is the path of the lookup key bank.
	KeysFile string `yaml:"keys_file,omitempty"`

	// GatewayURL overrides the scraping gateway endpoint.
	GatewayURL string `yaml:"gateway_url,omitempty"`

	// SearchURLTemplate overrides the search URL. It must contain {query}.
	SearchURLTemplate string `yaml:"search_url_template,omitempty"`

	// SkipMarkers replaces the default skip markers.
	SkipMarkers []string `yaml:"skip_markers,omitempty"`

	// RatePerCredential limits lookups per second per credential.
	RatePerCredential int `yaml:"rate_per_credential,omitempty"`

	// IntervalSize overrides the number of keys per work interval.
	IntervalSize int `yaml:"interval_size,omitempty"`

	// MaxRetries overrides the retry budget.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// CheckpointDir overrides the checkpoint directory.
	CheckpointDir string `yaml:"checkpoint_dir,omitempty"`
}

// File represents the structure of the .harvest.yaml configuration file.
type File struct {
	// Origin contains settings for the catalog crawl.
	Origin OriginConfig `yaml:"origin,omitempty"`

	// Lookup contains settings for enrichment.
	Lookup LookupConfig `yaml:"lookup,omitempty"`

	// DBDir overrides the database directory.
	DBDir string `yaml:"db_dir,omitempty"`
}

// Apply copies every value set in the file onto cfg.
// Values left empty in the file keep the current cfg value.
func (f *File) Apply(cfg *Config) error {
	o := f.Origin
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if len(o.Languages) > 0 {
		cfg.Languages = append([]string(nil), o.Languages...)
	}
	if o.CrawlDelay != "" {
		d, err := time.ParseDuration(o.CrawlDelay)
		if err != nil {
			return ErrInvalidCrawlDelay
		}
		cfg.CrawlDelay = d
	}
	if o.UserAgent != "" {
		cfg.UserAgent = o.UserAgent
	}
	if len(o.Headers) > 0 || o.Cookie != "" {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		for k, v := range o.Headers {
			cfg.Headers[k] = v
		}
		if o.Cookie != "" {
			cfg.Headers["Cookie"] = o.Cookie
		}
	}
	if o.Proxy != "" {
		cfg.ProxyAddress = o.Proxy
	}
	if o.EmbeddedTor {
		cfg.EmbeddedTor = true
	}

	l := f.Lookup
	if len(l.Credentials) > 0 {
		cfg.Credentials = append([]string(nil), l.Credentials...)
	}
	if l.KeysFile != "" {
		cfg.KeysFile = l.KeysFile
	}
	if l.GatewayURL != "" {
		cfg.GatewayURL = l.GatewayURL
	}
	if l.SearchURLTemplate != "" {
		cfg.SearchURLTemplate = l.SearchURLTemplate
	}
	if l.SkipMarkers != nil {
		cfg.SkipMarkers = append([]string{}, l.SkipMarkers...)
	}
	if l.RatePerCredential != 0 {
		cfg.RatePerCredential = l.RatePerCredential
	}
	if l.IntervalSize != 0 {
		cfg.IntervalSize = l.IntervalSize
	}
	if l.MaxRetries != 0 {
		cfg.MaxRetries = l.MaxRetries
	}
	if l.CheckpointDir != "" {
		cfg.CheckpointDir = l.CheckpointDir
	}

	if f.DBDir != "" {
		cfg.DBDir = f.DBDir
	}
	return nil
}
