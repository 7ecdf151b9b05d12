// Package checkpoint provides durable progress tracking for collection runs.
//
// Progress is sharded into checkpoint documents keyed by (source, province,
// year): one document per data source, one per province within it, and one
// per province/year pair. Each document records which (city, year) tasks
// completed, which failed and why, and summary statistics, so an interrupted
// run resumes exactly where it stopped and never repeats finished work.
//
// Documents are saved atomically (temp file, sync, rename) to prevent
// corruption. A Manager serializes every read-modify-write per document, so
// concurrent workers can mark completions safely.
package checkpoint
