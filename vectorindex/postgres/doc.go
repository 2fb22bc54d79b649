// Package postgres implements vectorindex.Store on PostgreSQL with the
// pgvector extension.
//
// All logical indexes share one table keyed by (index_name, namespace, id).
// Each index gets a partial HNSW index over its rows cast to the index
// dimension, so nearest neighbour queries stay index assisted.
package postgres
