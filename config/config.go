package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/poiesic/ragline/ai"
	"github.com/poiesic/ragline/chunker"
)

// Duration is a time.Duration read from strings such as "250ms" or "24h".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the complete ragline configuration.
type Config struct {
	// DataDir holds the badger database and local artifacts.
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`

	AI          AIConfig          `toml:"ai"`
	Chunking    ChunkingConfig    `toml:"chunking"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Index       IndexConfig       `toml:"index"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Artifacts   ArtifactConfig    `toml:"artifacts"`
	Enhancement EnhancementConfig `toml:"enhancement"`
	Search      SearchConfig      `toml:"search"`
}

// AIConfig configures providers and models.
type AIConfig struct {
	OpenAIHost         string   `toml:"openai_host"`
	OpenAIAPIKey       string   `toml:"openai_api_key"`
	GoogleAPIKey       string   `toml:"google_api_key"`
	SummaryProvider    string   `toml:"summary_provider"`
	SummaryModel       string   `toml:"summary_model"`
	EmbeddingModel     string   `toml:"embedding_model"`
	FallbackChain      []string `toml:"fallback_chain"`
	MaxFallbackHops    int      `toml:"max_fallback_hops"`
	LocalEncoding      string   `toml:"local_encoding"`
	EmbeddingBatchSize int      `toml:"embedding_batch_size"`
	Temperature        float64  `toml:"temperature"`
	MaxOutputTokens    int      `toml:"max_output_tokens"`
	// RequestsPerMinute bounds embedding calls. Zero disables limiting.
	RequestsPerMinute float64 `toml:"requests_per_minute"`
	// SummaryRequestsPerMinute bounds summary calls with a separate bucket.
	// Zero uses RequestsPerMinute.
	SummaryRequestsPerMinute float64 `toml:"summary_requests_per_minute"`
	Burst                    int     `toml:"burst"`
}

// SummaryRate returns the requests per minute allowed for summary calls.
func (a AIConfig) SummaryRate() float64 {
	if a.SummaryRequestsPerMinute > 0 {
		return a.SummaryRequestsPerMinute
	}
	return a.RequestsPerMinute
}

// ChunkingConfig selects the default chunking strategy and its parameters.
type ChunkingConfig struct {
	Method          string   `toml:"method"`
	WindowTokens    int      `toml:"window_tokens"`
	OverlapTokens   int      `toml:"overlap_tokens"`
	Encoding        string   `toml:"encoding"`
	WindowLines     int      `toml:"window_lines"`
	OverlapLines    int      `toml:"overlap_lines"`
	ChunkSize       int      `toml:"chunk_size"`
	ChunkOverlap    int      `toml:"chunk_overlap"`
	Separators      []string `toml:"separators"`
	ThresholdType   string   `toml:"threshold_type"`
	ThresholdAmount float64  `toml:"threshold_amount"`
	BufferSize      int      `toml:"buffer_size"`
}

// PipelineConfig tunes document ingestion.
type PipelineConfig struct {
	PoolSize            int      `toml:"pool_size"`
	MaxKeywords         int      `toml:"max_keywords"`
	WriteDelay          Duration `toml:"write_delay"`
	SummaryContextRunes int      `toml:"summary_context_runes"`
	SummaryGroupSize    int      `toml:"summary_group_size"`
	SummaryRetries      int      `toml:"summary_retries"`
	SummaryTimeout      Duration `toml:"summary_timeout"`
}

// IndexConfig tunes the index stage.
type IndexConfig struct {
	BatchSize    int `toml:"batch_size"`
	EmbedRetries int `toml:"embed_retries"`
	UpsertBatch  int `toml:"upsert_batch"`
}

// VectorStoreConfig selects the physical vector store.
type VectorStoreConfig struct {
	// Backend is "badger" (embedded, default) or "postgres".
	Backend string `toml:"backend"`
	DSN     string `toml:"dsn"`
}

// ArtifactConfig selects where batch input and output files are archived.
type ArtifactConfig struct {
	// Backend is "local" (default), "s3" or "none".
	Backend  string `toml:"backend"`
	Dir      string `toml:"dir"`
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Region   string `toml:"region"`
	KMSKeyID string `toml:"kms_key_id"`
}

// EnhancementConfig configures batch enhancement jobs.
type EnhancementConfig struct {
	Model           string   `toml:"model"`
	BaseURL         string   `toml:"base_url"`
	APIKey          string   `toml:"api_key"`
	MaxContentRunes int      `toml:"max_content_runes"`
	MaxTokens       int      `toml:"max_tokens"`
	PollInterval    Duration `toml:"poll_interval"`
	WebhookAddr     string   `toml:"webhook_addr"`
	WebhookSecret   string   `toml:"webhook_secret"`
}

// SearchConfig tunes the query command.
type SearchConfig struct {
	MaxHits         int     `toml:"max_hits"`
	MinSimilarity   float64 `toml:"min_similarity"`
	CandidateFactor int     `toml:"candidate_factor"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiCfg := ai.DefaultConfig()
	params := chunker.DefaultParams()
	return &Config{
		DataDir:  "ragline-data",
		LogLevel: "info",
		AI: AIConfig{
			OpenAIHost:         aiCfg.OpenAIHost,
			SummaryProvider:    aiCfg.SummaryProvider.String(),
			SummaryModel:       aiCfg.SummaryModel,
			EmbeddingModel:     aiCfg.EmbeddingModel,
			FallbackChain:      aiCfg.FallbackChain,
			MaxFallbackHops:    aiCfg.MaxFallbackHops,
			LocalEncoding:      aiCfg.LocalEncoding,
			EmbeddingBatchSize: aiCfg.EmbeddingBatchSize,
			Temperature:        aiCfg.Temperature,
			MaxOutputTokens:    aiCfg.MaxOutputTokens,
			RequestsPerMinute:  500,
			Burst:              10,
		},
		Chunking: ChunkingConfig{
			Method:          string(chunker.MethodToken),
			WindowTokens:    params.WindowTokens,
			OverlapTokens:   params.OverlapTokens,
			Encoding:        params.Encoding,
			WindowLines:     params.WindowLines,
			OverlapLines:    params.OverlapLines,
			ChunkSize:       params.ChunkSize,
			ChunkOverlap:    params.ChunkOverlap,
			Separators:      params.Separators,
			ThresholdType:   string(params.ThresholdType),
			ThresholdAmount: params.ThresholdAmount,
			BufferSize:      params.BufferSize,
		},
		Pipeline: PipelineConfig{
			PoolSize:            8,
			MaxKeywords:         10,
			WriteDelay:          Duration(10 * time.Millisecond),
			SummaryContextRunes: 12000,
			SummaryGroupSize:    8,
			SummaryRetries:      3,
			SummaryTimeout:      Duration(60 * time.Second),
		},
		Index: IndexConfig{
			BatchSize:    100,
			EmbedRetries: 3,
			UpsertBatch:  100,
		},
		VectorStore: VectorStoreConfig{Backend: "badger"},
		Artifacts:   ArtifactConfig{Backend: "local"},
		Enhancement: EnhancementConfig{
			Model:           "gpt-4o-mini",
			MaxContentRunes: 6000,
			MaxTokens:       200,
			PollInterval:    Duration(time.Minute),
			WebhookAddr:     ":8085",
		},
		Search: SearchConfig{
			MaxHits:         10,
			MinSimilarity:   0.60,
			CandidateFactor: 3,
		},
	}
}

// Load builds a Config from defaults, the TOML file at path (skipped when
// path is empty) and the environment. envFiles are loaded with godotenv
// before the environment is read; with none given, ".env" is tried.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// Encode renders cfg as TOML, omitting secrets.
func Encode(cfg *Config) ([]byte, error) {
	redacted := *cfg
	redacted.AI.OpenAIAPIKey = redact(cfg.AI.OpenAIAPIKey)
	redacted.AI.GoogleAPIKey = redact(cfg.AI.GoogleAPIKey)
	redacted.Enhancement.APIKey = redact(cfg.Enhancement.APIKey)
	redacted.Enhancement.WebhookSecret = redact(cfg.Enhancement.WebhookSecret)
	redacted.VectorStore.DSN = redact(cfg.VectorStore.DSN)
	return toml.Marshal(redacted)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.DataDir != "", "data_dir is required")
	_, err := ParseLogLevel(c.LogLevel)
	check(err == nil, "log_level %q", c.LogLevel)

	if _, err := c.AIConfig(); err != nil {
		errs = append(errs, fmt.Errorf("%w: ai: %w", ErrInvalidConfig, err))
	}
	check(c.AI.RequestsPerMinute >= 0, "ai.requests_per_minute cannot be negative")
	check(c.AI.SummaryRequestsPerMinute >= 0, "ai.summary_requests_per_minute cannot be negative")

	if method, err := chunker.ParseMethod(c.Chunking.Method); err != nil {
		errs = append(errs, fmt.Errorf("%w: chunking: %w", ErrInvalidConfig, err))
	} else if err := c.ChunkParams().Validate(method); err != nil {
		errs = append(errs, fmt.Errorf("%w: chunking: %w", ErrInvalidConfig, err))
	}

	check(c.Pipeline.PoolSize > 0, "pipeline.pool_size must be positive")
	check(c.Pipeline.MaxKeywords > 0, "pipeline.max_keywords must be positive")
	check(c.Pipeline.WriteDelay >= 0, "pipeline.write_delay cannot be negative")
	check(c.Pipeline.SummaryRetries > 0, "pipeline.summary_retries must be positive")
	check(c.Index.BatchSize > 0, "index.batch_size must be positive")
	check(c.Index.EmbedRetries > 0, "index.embed_retries must be positive")
	check(c.Index.UpsertBatch > 0, "index.upsert_batch must be positive")

	switch c.VectorStore.Backend {
	case "badger":
	case "postgres":
		check(c.VectorStore.DSN != "", "vector_store.dsn is required for postgres")
	default:
		check(false, "vector_store.backend %q", c.VectorStore.Backend)
	}

	switch c.Artifacts.Backend {
	case "local", "none":
	case "s3":
		check(c.Artifacts.Bucket != "", "artifacts.bucket is required for s3")
	default:
		check(false, "artifacts.backend %q", c.Artifacts.Backend)
	}

	check(c.Enhancement.Model != "", "enhancement.model is required")
	check(c.Enhancement.MaxContentRunes > 0, "enhancement.max_content_runes must be positive")
	check(c.Enhancement.MaxTokens > 0, "enhancement.max_tokens must be positive")
	check(c.Enhancement.PollInterval > 0, "enhancement.poll_interval must be positive")

	check(c.Search.MaxHits > 0, "search.max_hits must be positive")
	check(c.Search.CandidateFactor > 0, "search.candidate_factor must be positive")

	return errors.Join(errs...)
}

// AIConfig converts the ai section to a validated ai.Config.
func (c *Config) AIConfig() (*ai.Config, error) {
	provider, err := ai.ParseProvider(c.AI.SummaryProvider)
	if err != nil {
		return nil, err
	}
	cfg := ai.NewConfig(
		ai.WithOpenAIHost(c.AI.OpenAIHost),
		ai.WithOpenAIAPIKey(c.AI.OpenAIAPIKey),
		ai.WithGoogleAPIKey(c.AI.GoogleAPIKey),
		ai.WithSummaryModel(provider, c.AI.SummaryModel),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithFallbackChain(c.AI.FallbackChain...),
		ai.WithMaxFallbackHops(c.AI.MaxFallbackHops),
		ai.WithLocalEncoding(c.AI.LocalEncoding),
		ai.WithEmbeddingBatchSize(c.AI.EmbeddingBatchSize),
		ai.WithGeneration(c.AI.Temperature, c.AI.MaxOutputTokens),
	)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ChunkingMethod returns the configured default chunking method.
func (c *Config) ChunkingMethod() (chunker.Method, error) {
	return chunker.ParseMethod(c.Chunking.Method)
}

// ChunkParams returns the chunking parameters.
func (c *Config) ChunkParams() chunker.Params {
	ch := c.Chunking
	return chunker.Params{
		WindowTokens:    ch.WindowTokens,
		OverlapTokens:   ch.OverlapTokens,
		Encoding:        ch.Encoding,
		WindowLines:     ch.WindowLines,
		OverlapLines:    ch.OverlapLines,
		ChunkSize:       ch.ChunkSize,
		ChunkOverlap:    ch.ChunkOverlap,
		Separators:      append([]string(nil), ch.Separators...),
		ThresholdType:   chunker.ThresholdType(ch.ThresholdType),
		ThresholdAmount: ch.ThresholdAmount,
		BufferSize:      ch.BufferSize,
	}
}

// EnhancementAPIKey is the key used for the batch API, falling back to
// the OpenAI key.
func (c *Config) EnhancementAPIKey() string {
	if c.Enhancement.APIKey != "" {
		return c.Enhancement.APIKey
	}
	return c.AI.OpenAIAPIKey
}

// EnhancementBaseURL is the batch API base URL, falling back to the
// normalized OpenAI host.
func (c *Config) EnhancementBaseURL() string {
	if c.Enhancement.BaseURL != "" {
		return c.Enhancement.BaseURL
	}
	host := strings.TrimSuffix(c.AI.OpenAIHost, "/")
	if host != "" && !strings.HasSuffix(host, "/v1") {
		host += "/v1"
	}
	return host
}
