package enhancement

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/ragline/core"
)

// ChatCompletionsEndpoint is the batch endpoint every request line targets.
const ChatCompletionsEndpoint = "/v1/chat/completions"

const systemInstruction = "You write concise retrieval summaries. Describe what the passage covers " +
	"and which questions it answers in at most three sentences. Reply with the summary only."

// StatusReport is the remote view of a batch, as returned by polling or
// pushed to the webhook.
type StatusReport struct {
	Status        string             `json:"status"`
	RequestCounts core.RequestCounts `json:"request_counts"`
	OutputFileID  string             `json:"output_file_id,omitempty"`
	ErrorFileID   string             `json:"error_file_id,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// BatchClient talks to the remote batch service.
type BatchClient interface {
	// UploadFile uploads a JSONL request file and returns its id.
	UploadFile(ctx context.Context, name string, data []byte) (string, error)

	// CreateBatch starts a batch over an uploaded file and returns the batch id.
	CreateBatch(ctx context.Context, inputFileID string, metadata map[string]string) (string, error)

	// GetBatch returns the current status of a batch.
	GetBatch(ctx context.Context, batchID string) (StatusReport, error)

	// DownloadFile streams the contents of a file.
	DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, error)
}

type requestLine struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     requestBody `json:"body"`
}

type requestBody struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequests encodes one chat completion request per chunk as JSONL.
// custom_id carries the chunk id. Chunk content is cut to maxContentRunes.
func BuildRequests(chunks []*core.Chunk, model string, maxContentRunes, maxTokens int) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range chunks {
		line := requestLine{
			CustomID: c.ID,
			Method:   "POST",
			URL:      ChatCompletionsEndpoint,
			Body: requestBody{
				Model: model,
				Messages: []message{
					{Role: "system", Content: systemInstruction},
					{Role: "user", Content: userPrompt(c, maxContentRunes)},
				},
				MaxTokens:   maxTokens,
				Temperature: 0.2,
			},
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encoding request for chunk %s: %w", c.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func userPrompt(c *core.Chunk, maxRunes int) string {
	content := c.Content
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		content = string([]rune(content)[:maxRunes])
	}
	var sb strings.Builder
	if c.FileName != "" {
		fmt.Fprintf(&sb, "Source file: %s\n\n", c.FileName)
	}
	sb.WriteString("Passage:\n")
	sb.WriteString(content)
	return sb.String()
}

// Result is one parsed output line. Err is set for lines that cannot be
// applied; ChunkID may still be known in that case.
type Result struct {
	ChunkID string
	Summary string
	Err     error
}

type resultLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int `json:"status_code"`
		Body       struct {
			Choices []struct {
				Message message `json:"message"`
			} `json:"choices"`
		} `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResults reads a JSONL result artifact. Every non-blank line yields
// one Result; problems are reported per line and never stop the scan.
// The returned error is only set when r itself fails.
func ParseResults(r io.Reader) ([]Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var results []Result
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		results = append(results, parseLine(raw, lineNo))
	}
	return results, scanner.Err()
}

func parseLine(raw []byte, lineNo int) Result {
	var line resultLine
	if err := json.Unmarshal(raw, &line); err != nil {
		return Result{Err: fmt.Errorf("%w: line %d: %w", ErrMalformedResult, lineNo, err)}
	}
	res := Result{ChunkID: line.CustomID}
	switch {
	case line.CustomID == "":
		res.Err = fmt.Errorf("%w: line %d: missing custom_id", ErrMalformedResult, lineNo)
	case line.Error != nil:
		res.Err = fmt.Errorf("%w: line %d: %s: %s", ErrMalformedResult, lineNo, line.Error.Code, line.Error.Message)
	case line.Response == nil || line.Response.StatusCode != 200:
		res.Err = fmt.Errorf("%w: line %d: unsuccessful response", ErrMalformedResult, lineNo)
	case len(line.Response.Body.Choices) == 0:
		res.Err = fmt.Errorf("%w: line %d: no choices", ErrMalformedResult, lineNo)
	default:
		res.Summary = cleanSummary(line.Response.Body.Choices[0].Message.Content)
		if res.Summary == "" {
			res.Err = fmt.Errorf("%w: line %d: empty content", ErrMalformedResult, lineNo)
		}
	}
	return res
}

// cleanSummary trims whitespace and unwraps a markdown code fence.
func cleanSummary(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop an info string such as "text" on the opening fence line.
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = ""
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
