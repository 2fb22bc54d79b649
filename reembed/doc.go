// Package reembed refreshes vectors of chunks that have already been indexed.
//
// A chunk's vector goes stale when its summary is replaced by an AI
// enhancement after it was embedded, or when it was embedded by a model
// other than the active one. The Reembedder walks a namespace in ID order,
// clears the vector reference of each stale chunk and re-indexes it through
// the same indexer used at ingestion time. Progress is checkpointed so an
// interrupted pass resumes where it stopped.
package reembed
