// Package model defines the core data structures shared by the crawler,
// the lookup pipeline, storage and reporting.
//
// This package contains the following main types:
//   - Category: A journal grouping with its expected and collected counts
//   - ListingRecord: One catalog entry discovered by the crawler
//   - LookupKey and Interval: The work units of the enrichment pipeline
//   - Outcome: The classified result of a single lookup attempt
//   - RunReport: The summary of one harvest run
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, pipeline, checkpoint store and report writers all
// need these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for checkpoint files,
// report output and database storage.
package model
