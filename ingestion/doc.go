// Package ingestion turns parsed documents into stored, searchable chunks.
//
// The Pipeline handles the document side:
//   - Deduplicating documents by content hash per owner
//   - Splitting text with the configured chunking strategy
//   - Summarizing chunks in rate-limited groups
//   - Extracting keywords jointly across a document's chunks
//   - Persisting chunks with serialized writes
//
// The Indexer handles the vector side. It embeds unembedded chunks of a
// namespace and marks a chunk embedded only after the vector store has
// confirmed its id. Documents are processed concurrently on a worker pool;
// per-document failures are recorded in the Report and never abort the run.
package ingestion
