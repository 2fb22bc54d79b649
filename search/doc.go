// Package search provides namespace-scoped hybrid retrieval over indexed chunks.
//
// The Searcher embeds the query with the active embedding model, asks the
// vector index for the nearest chunks of one namespace and rescores them
// with two lexical signals:
//   - a 1.5x boost when a chunk keyword appears in the query
//   - a flat bonus when the chunk contains every non-stop word of the query
//
// Results never cross namespaces: the vector query is scoped and every
// retrieved chunk is checked again against the requested namespace.
package search
