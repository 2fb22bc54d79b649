package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// loadEnvFiles reads dotenv files into the process environment. Variables
// already set are kept. A missing default .env is not an error.
func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}
	return nil
}

type envBinding struct {
	keys  []string
	apply func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func duration(dst func(*Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = Duration(d)
		return nil
	}
}

// envBindings lists the environment variables that override file values.
// When a binding has several keys the first one set wins.
var envBindings = []envBinding{
	{[]string{"RAGLINE_DATA_DIR"}, str(func(c *Config) *string { return &c.DataDir })},
	{[]string{"RAGLINE_LOG_LEVEL", "LOG_LEVEL"}, str(func(c *Config) *string { return &c.LogLevel })},

	{[]string{"OPENAI_BASE_URL", "OPENAI_HOST"}, str(func(c *Config) *string { return &c.AI.OpenAIHost })},
	{[]string{"OPENAI_API_KEY"}, str(func(c *Config) *string { return &c.AI.OpenAIAPIKey })},
	{[]string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}, str(func(c *Config) *string { return &c.AI.GoogleAPIKey })},
	{[]string{"RAGLINE_SUMMARY_PROVIDER"}, str(func(c *Config) *string { return &c.AI.SummaryProvider })},
	{[]string{"RAGLINE_SUMMARY_MODEL"}, str(func(c *Config) *string { return &c.AI.SummaryModel })},
	{[]string{"RAGLINE_EMBEDDING_MODEL", "EMBED_MODEL"}, str(func(c *Config) *string { return &c.AI.EmbeddingModel })},
	{[]string{"RAGLINE_FALLBACK_CHAIN"}, func(c *Config, v string) error {
		c.AI.FallbackChain = splitList(v)
		return nil
	}},
	{[]string{"RAGLINE_REQUESTS_PER_MINUTE"}, float(func(c *Config) *float64 { return &c.AI.RequestsPerMinute })},
	{[]string{"RAGLINE_SUMMARY_REQUESTS_PER_MINUTE"}, float(func(c *Config) *float64 { return &c.AI.SummaryRequestsPerMinute })},

	{[]string{"RAGLINE_CHUNKING_METHOD"}, str(func(c *Config) *string { return &c.Chunking.Method })},
	{[]string{"RAGLINE_POOL_SIZE"}, integer(func(c *Config) *int { return &c.Pipeline.PoolSize })},
	{[]string{"RAGLINE_INDEX_BATCH_SIZE"}, integer(func(c *Config) *int { return &c.Index.BatchSize })},

	{[]string{"RAGLINE_VECTOR_STORE"}, str(func(c *Config) *string { return &c.VectorStore.Backend })},
	{[]string{"RAGLINE_DATABASE_URL", "DATABASE_URL"}, str(func(c *Config) *string { return &c.VectorStore.DSN })},

	{[]string{"RAGLINE_ARTIFACTS"}, str(func(c *Config) *string { return &c.Artifacts.Backend })},
	{[]string{"RAGLINE_ARTIFACT_DIR"}, str(func(c *Config) *string { return &c.Artifacts.Dir })},
	{[]string{"RAGLINE_S3_BUCKET", "BUCKET_NAME"}, str(func(c *Config) *string { return &c.Artifacts.Bucket })},
	{[]string{"RAGLINE_S3_PREFIX"}, str(func(c *Config) *string { return &c.Artifacts.Prefix })},
	{[]string{"AWS_REGION"}, str(func(c *Config) *string { return &c.Artifacts.Region })},

	{[]string{"RAGLINE_ENHANCEMENT_MODEL"}, str(func(c *Config) *string { return &c.Enhancement.Model })},
	{[]string{"RAGLINE_ENHANCEMENT_API_KEY"}, str(func(c *Config) *string { return &c.Enhancement.APIKey })},
	{[]string{"RAGLINE_POLL_INTERVAL"}, duration(func(c *Config) *Duration { return &c.Enhancement.PollInterval })},
	{[]string{"RAGLINE_WEBHOOK_ADDR"}, str(func(c *Config) *string { return &c.Enhancement.WebhookAddr })},
	{[]string{"RAGLINE_WEBHOOK_SECRET"}, str(func(c *Config) *string { return &c.Enhancement.WebhookSecret })},
}

// applyEnv overrides cfg with the variables lookup finds.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, b := range envBindings {
		for _, key := range b.keys {
			v, ok := lookup(key)
			if !ok {
				continue
			}
			if err := b.apply(cfg, strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err))
			}
			break
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseLogLevel maps debug, info, warn or error (any case) to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// NewLogger builds a text logger writing to stderr at the configured level.
func (c *Config) NewLogger() *slog.Logger {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
