// Package checkpoint persists lookup outcomes so a pipeline run survives
// partial failure.
//
// Every finished work unit writes one file per outcome kind, named
// "<kind>-<start>-<end>.json", even when the list is empty. The coordinator
// periodically sweeps the directory: interval files of a kind are merged,
// de-duplicated by item id, saved as the aggregate "<kind>.json" and then
// deleted.
//
// Writes go to a temporary file in the same directory that is renamed into
// place, so a crash never leaves a half-written checkpoint behind.
//
// The store has no notion of a run. Two runs sharing a directory see each
// other's files.
package checkpoint
