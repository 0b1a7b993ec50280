// Package pipeline runs a harvest as a sequence of steps and implements the
// fault-tolerant lookup pipeline.
//
// A run is a Pipeline of Steps (crawl, save catalog, enrich, save lookup)
// sharing one model.RunReport. Enrichment is driven by the Coordinator:
//
//  1. the key set is split into fixed-size intervals (Partition)
//  2. intervals are assigned to credentials in contiguous blocks (Schedule)
//  3. each assignment's intervals run as Units on a FetchWorker, bounded by
//     the Dispatcher
//  4. every unit writes three checkpoint files, one per outcome kind
//  5. after each wave the checkpoints are merged, ConnectionLost items are
//     re-partitioned and dispatched again, up to the retry budget
//
// Design decision: Workers never share mutable state. All coordination goes
// through checkpoint files, so a killed run can be resumed by merging what
// is already on disk before the first wave.
package pipeline
