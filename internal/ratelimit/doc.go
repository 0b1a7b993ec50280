// Package ratelimit provides the request gates used on every outbound fetch.
//
// The crawler passes every origin request through a fixed-interval Gate so
// that consecutive page requests are always spaced by the configured delay.
// The lookup client keeps one Gate per credential so that each gateway key
// is throttled independently.
//
// Gates are injected, never global, so tests substitute Unlimited and run
// without wall-clock delays.
package ratelimit
