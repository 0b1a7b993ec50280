// Package lookup queries the external citation index through a
// credentialed scraping gateway.
//
// Each request is sent as
//
//	GET <gateway>?api_key=<credential>&url=<search URL>&render=false
//
// where the search URL is built from a template holding the escaped
// citation. The raw response body is the lookup payload; parsing the
// citation markup is left to downstream tools.
//
// Every credential has its own rate limit. The gateway bills and throttles
// per key, so one slow key never holds back the others.
package lookup
