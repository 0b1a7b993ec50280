// Package transport builds the HTTP clients used to reach the origin and
// the lookup gateway.
//
// Clients carry a request timeout, a cookie jar and a bounded redirect
// policy. When a SOCKS5 proxy address is configured every connection is
// dialed through it with golang.org/x/net/proxy.
//
// CheckProxy performs a SOCKS5 greeting against the configured proxy so
// the CLI can fail fast before a long crawl starts. TorDaemon starts an
// embedded Tor daemon with github.com/nao1215/tornago when no external
// proxy is available.
package transport
