package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validChunk() *Chunk {
	return &Chunk{
		DocumentID:  "doc",
		OwnerID:     "owner",
		Namespace:   "bot|owner",
		Content:     "hello",
		SummaryType: SummaryBasic,
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Chunk)
		wantErr error
	}{
		{name: "valid", mutate: func(c *Chunk) {}},
		{name: "empty content", mutate: func(c *Chunk) { c.Content = "" }, wantErr: ErrEmptyContent},
		{name: "missing owner", mutate: func(c *Chunk) { c.OwnerID = "" }, wantErr: ErrMissingOwner},
		{name: "missing namespace", mutate: func(c *Chunk) { c.Namespace = "" }, wantErr: ErrInvalidNamespace},
		{name: "negative index", mutate: func(c *Chunk) { c.Index = -1 }, wantErr: ErrInvalidChunk},
		{name: "bad summary type", mutate: func(c *Chunk) { c.SummaryType = "great" }, wantErr: ErrInvalidSummaryType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validChunk()
			tt.mutate(c)
			err := ValidateChunk(c)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidChunk)
		})
	}
}

func TestValidateChunk_Nil(t *testing.T) {
	assert.ErrorIs(t, ValidateChunk(nil), ErrInvalidChunk)
}

func TestValidateDocument(t *testing.T) {
	doc := &Document{OwnerID: "o", Namespace: "b|o", ContentHash: "abc"}
	assert.NoError(t, ValidateDocument(doc))

	doc.ContentHash = ""
	assert.ErrorIs(t, ValidateDocument(doc), ErrInvalidDocument)

	assert.ErrorIs(t, ValidateDocument(&Document{Namespace: "b|o", ContentHash: "x"}), ErrMissingOwner)
}

func TestValidateJob(t *testing.T) {
	job := &EnhancementJob{OwnerID: "o", Namespace: "b|o", Status: JobSubmitted}
	assert.NoError(t, ValidateJob(job))

	job.Status = "weird"
	assert.ErrorIs(t, ValidateJob(job), ErrUnknownJobStatus)
}
