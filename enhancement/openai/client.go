// Package openai implements the enhancement BatchClient on the OpenAI Go
// SDK's Files and Batches services.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/enhancement"
)

// ErrAPI wraps non-2xx responses.
var ErrAPI = errors.New("openai api error")

// Client is a BatchClient for OpenAI compatible servers.
type Client struct {
	api    oai.Client
	logger *slog.Logger
}

var _ enhancement.BatchClient = (*Client)(nil)

type clientOptions struct {
	httpClient *http.Client
	request    []option.RequestOption
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithRequestOptions passes extra options, such as retry limits, to the SDK.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(o *clientOptions) {
		o.request = append(o.request, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// New creates a Client. baseURL includes the version path, for example
// https://api.openai.com/v1.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai batch client: api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	o := &clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(strings.TrimSuffix(baseURL, "/") + "/"),
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}
	reqOpts = append(reqOpts, o.request...)

	return &Client{
		api:    oai.NewClient(reqOpts...),
		logger: o.logger.With("component", "openai-batch"),
	}, nil
}

// UploadFile uploads data with purpose "batch".
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (string, error) {
	file, err := c.api.Files.New(ctx, oai.FileNewParams{
		File:    oai.File(bytes.NewReader(data), name, "application/jsonl"),
		Purpose: oai.FilePurposeBatch,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, apiError(err))
	}
	c.logger.Debug("uploaded batch file", "file_id", file.ID, "bytes", len(data))
	return file.ID, nil
}

// CreateBatch starts a 24h batch over the chat completions endpoint.
func (c *Client) CreateBatch(ctx context.Context, inputFileID string, metadata map[string]string) (string, error) {
	batch, err := c.api.Batches.New(ctx, oai.BatchNewParams{
		InputFileID:      inputFileID,
		Endpoint:         oai.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: oai.BatchNewParamsCompletionWindow24h,
		Metadata:         metadata,
	})
	if err != nil {
		return "", fmt.Errorf("creating batch: %w", apiError(err))
	}
	return batch.ID, nil
}

// GetBatch returns the batch status translated into a StatusReport.
func (c *Client) GetBatch(ctx context.Context, batchID string) (enhancement.StatusReport, error) {
	batch, err := c.api.Batches.Get(ctx, batchID)
	if err != nil {
		return enhancement.StatusReport{}, fmt.Errorf("retrieving batch %s: %w", batchID, apiError(err))
	}

	report := enhancement.StatusReport{
		Status: string(batch.Status),
		RequestCounts: core.RequestCounts{
			Total:     int(batch.RequestCounts.Total),
			Completed: int(batch.RequestCounts.Completed),
			Failed:    int(batch.RequestCounts.Failed),
		},
		OutputFileID: batch.OutputFileID,
		ErrorFileID:  batch.ErrorFileID,
	}
	if len(batch.Errors.Data) > 0 {
		msgs := make([]string, 0, len(batch.Errors.Data))
		for _, e := range batch.Errors.Data {
			msgs = append(msgs, e.Code+": "+e.Message)
		}
		report.Error = strings.Join(msgs, "; ")
	}
	return report, nil
}

// DownloadFile streams a file's content. The caller closes the reader.
func (c *Client) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.api.Files.Content(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", fileID, apiError(err))
	}
	return resp.Body, nil
}

// apiError marks SDK status errors with ErrAPI. Transport errors pass through.
func apiError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %w", ErrAPI, apiErr.StatusCode, err)
	}
	return err
}
