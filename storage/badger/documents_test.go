package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/storage"
)

func newTestRepositories(t *testing.T) *Repositories {
	t.Helper()
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

func newDocument(owner, text string) *core.Document {
	return &core.Document{
		OwnerID:     owner,
		TenantID:    "bot",
		FileName:    "notes.md",
		FileType:    "md",
		ContentHash: core.ContentHash(text),
		Status:      core.DocumentPending,
		Namespace:   core.Namespace("bot|" + owner),
	}
}

func TestDocumentRepository_AddAndGet(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	doc, err := repos.Documents.AddDocument(ctx, newDocument("alice", "hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ID)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ContentHash, got.ContentHash)
	assert.Equal(t, core.DocumentPending, got.Status)

	_, err = repos.Documents.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentRepository_DuplicateHashPerOwner(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	first, err := repos.Documents.AddDocument(ctx, newDocument("alice", "same text"))
	require.NoError(t, err)

	_, err = repos.Documents.AddDocument(ctx, newDocument("alice", "same text"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Another owner may upload identical content.
	_, err = repos.Documents.AddDocument(ctx, newDocument("bob", "same text"))
	require.NoError(t, err)

	found, err := repos.Documents.FindDocumentByHash(ctx, "alice", core.ContentHash("same text"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = repos.Documents.FindDocumentByHash(ctx, "carol", core.ContentHash("same text"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentRepository_UpdateKeepsImmutableFields(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	doc, err := repos.Documents.AddDocument(ctx, newDocument("alice", "text"))
	require.NoError(t, err)
	hash := doc.ContentHash

	update := *doc
	update.Status = core.DocumentProcessed
	update.ChunkCount = 4
	update.ContentHash = "tampered"
	_, err = repos.Documents.UpdateDocument(ctx, &update)
	require.NoError(t, err)

	got, err := repos.Documents.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentProcessed, got.Status)
	assert.Equal(t, 4, got.ChunkCount)
	assert.Equal(t, hash, got.ContentHash)

	_, err = repos.Documents.UpdateDocument(ctx, &core.Document{ID: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentRepository_ListAndDelete(t *testing.T) {
	repos := newTestRepositories(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, text := range []string{"one", "two", "three"} {
		d := newDocument("alice", text)
		d.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		added, err := repos.Documents.AddDocument(ctx, d)
		require.NoError(t, err)
		ids = append(ids, added.ID)
	}
	_, err := repos.Documents.AddDocument(ctx, newDocument("bob", "one"))
	require.NoError(t, err)

	docs, err := repos.Documents.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for i, d := range docs {
		assert.Equal(t, ids[i], d.ID)
	}

	require.NoError(t, repos.Documents.DeleteDocument(ctx, ids[0]))
	docs, err = repos.Documents.ListDocuments(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	// The hash is free again after deletion.
	_, err = repos.Documents.AddDocument(ctx, newDocument("alice", "one"))
	require.NoError(t, err)

	assert.ErrorIs(t, repos.Documents.DeleteDocument(ctx, "missing"), storage.ErrNotFound)
}
