package search

import (
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/vectorindex"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(namespace core.Namespace, query string)
	AfterSemanticSearch(matches []vectorindex.Match)
	AfterChunkRetrieval(chunks []*core.Chunk)
	KeywordHit(chunk *core.Chunk, keywords []string)
	SemanticHit(chunk *core.Chunk)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.Namespace, _ string)            {}
func (n *noopMonitor) AfterSemanticSearch(_ []vectorindex.Match)  {}
func (n *noopMonitor) AfterChunkRetrieval(_ []*core.Chunk)        {}
func (n *noopMonitor) KeywordHit(_ *core.Chunk, _ []string)       {}
func (n *noopMonitor) SemanticHit(_ *core.Chunk)                  {}
func (n *noopMonitor) Finish(_ []*Result)                         {}
