package reembed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragline/core"
)

func collectPages(t *testing.T, it *ChunkIterator, ns core.Namespace, afterID string) [][]string {
	t.Helper()
	var pages [][]string
	err := it.ForEach(context.Background(), ns, afterID, func(batch []*core.Chunk) error {
		ids := make([]string, len(batch))
		for i, c := range batch {
			ids[i] = c.ID
		}
		pages = append(pages, ids)
		return nil
	})
	require.NoError(t, err)
	return pages
}

func TestChunkIterator_Pages(t *testing.T) {
	f := newFixture(t)
	f.addChunks(t, testNamespace, 25)
	f.addChunks(t, "bot|bob", 3)

	pages := collectPages(t, NewChunkIterator(f.repos.Chunks, 10), testNamespace, "")
	require.Len(t, pages, 3)
	assert.Len(t, pages[0], 10)
	assert.Len(t, pages[1], 10)
	assert.Len(t, pages[2], 5)
	assert.Equal(t, "chunk-000", pages[0][0])
	assert.Equal(t, "chunk-010", pages[1][0])
	assert.Equal(t, "chunk-024", pages[2][4])
}

func TestChunkIterator_ExactMultiple(t *testing.T) {
	f := newFixture(t)
	f.addChunks(t, testNamespace, 20)

	pages := collectPages(t, NewChunkIterator(f.repos.Chunks, 10), testNamespace, "")
	require.Len(t, pages, 2)
	assert.Equal(t, "chunk-019", pages[1][9])
}

func TestChunkIterator_AfterID(t *testing.T) {
	f := newFixture(t)
	f.addChunks(t, testNamespace, 25)

	pages := collectPages(t, NewChunkIterator(f.repos.Chunks, 10), testNamespace, "chunk-014")
	require.Len(t, pages, 1)
	assert.Len(t, pages[0], 10)
	assert.Equal(t, "chunk-015", pages[0][0])
}

func TestChunkIterator_EmptyNamespace(t *testing.T) {
	f := newFixture(t)
	pages := collectPages(t, NewChunkIterator(f.repos.Chunks, 10), testNamespace, "")
	assert.Empty(t, pages)
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	f := newFixture(t)
	f.addChunks(t, testNamespace, 25)
	boom := errors.New("boom")

	calls := 0
	err := NewChunkIterator(f.repos.Chunks, 10).ForEach(context.Background(), testNamespace, "", func([]*core.Chunk) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestChunkIterator_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.addChunks(t, testNamespace, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewChunkIterator(f.repos.Chunks, 10).ForEach(ctx, testNamespace, "", func([]*core.Chunk) error {
		t.Fatal("callback should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
