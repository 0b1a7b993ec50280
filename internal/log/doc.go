// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// The SecureHandler masks:
//   - HTTP headers (Authorization, Cookie, X-Api-Key)
//   - gateway credentials logged under keys such as credential, api_key or key
//   - values that look like API keys or bearer tokens
//   - api_key= query parameters inside logged URLs and error messages
//
// Even in verbose mode, credentials are masked so that logs of a lookup run
// can be shared.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//	logger.Info("request failed",
//	    "url", "http://api.scraperapi.com?api_key=abc&url=...", // api_key=***REDACTED***
//	)
//	slog.SetDefault(logger)
package log
