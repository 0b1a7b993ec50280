// Package config provides the harvest configuration: defaults, the
// .harvest.yaml file and validation of crawl and lookup settings.
package config
