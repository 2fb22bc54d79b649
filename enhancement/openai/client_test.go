package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/v1/", "sk-test", WithRequestOptions(option.WithMaxRetries(0)))
	require.NoError(t, err)
	return c
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("", "")
	assert.Error(t, err)
}

func TestUploadFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/files", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "batch", r.FormValue("purpose"))
		f, hdr, err := r.FormFile("file")
		if assert.NoError(t, err) {
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "input.jsonl", hdr.Filename)
			assert.Equal(t, `{"custom_id":"a"}`, string(data))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "file-123", "object": "file", "purpose": "batch"})
	})

	id, err := c.UploadFile(context.Background(), "input.jsonl", []byte(`{"custom_id":"a"}`))
	require.NoError(t, err)
	assert.Equal(t, "file-123", id)
}

func TestCreateBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/batches", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "file-123", body["input_file_id"])
		assert.Equal(t, "/v1/chat/completions", body["endpoint"])
		assert.Equal(t, "24h", body["completion_window"])
		assert.Equal(t, map[string]any{"job_id": "j1"}, body["metadata"])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "batch_abc", "status": "validating"})
	})

	id, err := c.CreateBatch(context.Background(), "file-123", map[string]string{"job_id": "j1"})
	require.NoError(t, err)
	assert.Equal(t, "batch_abc", id)
}

func TestGetBatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/batches/batch_abc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "batch_abc",
			"status": "completed",
			"output_file_id": "file-out",
			"error_file_id": "file-err",
			"request_counts": {"total": 10, "completed": 8, "failed": 2}
		}`)
	})

	report, err := c.GetBatch(context.Background(), "batch_abc")
	require.NoError(t, err)
	assert.Equal(t, "completed", report.Status)
	assert.Equal(t, "file-out", report.OutputFileID)
	assert.Equal(t, "file-err", report.ErrorFileID)
	assert.Equal(t, 10, report.RequestCounts.Total)
	assert.Equal(t, 8, report.RequestCounts.Completed)
	assert.Equal(t, 2, report.RequestCounts.Failed)
	assert.Empty(t, report.Error)
}

func TestGetBatch_Errors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "batch_abc",
			"status": "failed",
			"errors": {"data": [{"code": "invalid_json_line", "message": "line 3"}]}
		}`)
	})

	report, err := c.GetBatch(context.Background(), "batch_abc")
	require.NoError(t, err)
	assert.Equal(t, "failed", report.Status)
	assert.Equal(t, "invalid_json_line: line 3", report.Error)
}

func TestDownloadFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/files/file-out/content", r.URL.Path)
		io.WriteString(w, "line1\nline2\n")
	})

	rc, err := c.DownloadFile(context.Background(), "file-out")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2\n", string(data))
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`)
	})

	_, err := c.GetBatch(context.Background(), "batch_abc")
	require.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "401")

	_, err = c.DownloadFile(context.Background(), "file-out")
	require.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "401")
}
