package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/ragline"
	"github.com/poiesic/ragline/chunker"
	"github.com/poiesic/ragline/config"
	"github.com/poiesic/ragline/core"
	"github.com/poiesic/ragline/enhancement"
	"github.com/poiesic/ragline/ingestion"
	"github.com/poiesic/ragline/reembed"
	"github.com/poiesic/ragline/search"
)

func ownerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "tenant",
			Aliases:  []string{"t"},
			Usage:    "Tenant prefix of the namespace",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "owner",
			Aliases:  []string{"o"},
			Usage:    "Owner id of the namespace",
			Required: true,
		},
	}
}

func namespaceFlag(c *cli.Context) (core.Namespace, error) {
	return core.NewNamespace(c.String("tenant"), c.String("owner"))
}

// withService opens a Service for the duration of fn. The context is
// cancelled on SIGINT or SIGTERM.
func withService(c *cli.Context, fn func(ctx context.Context, svc *ragline.Service) error) error {
	cfg, err := loadedConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := ragline.Open(ctx, cfg, ragline.WithLogger(slog.Default()),
		ragline.WithNotifier(enhancement.NewLogNotifier(slog.Default())))
	if err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer svc.Close()
	return fn(ctx, svc)
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Chunk, summarize and store documents",
		ArgsUsage: "PATH...",
		Flags: append(ownerFlags(),
			&cli.StringFlag{
				Name:  "method",
				Usage: "Chunking method (token, line, recursive, semantic)",
			},
			&cli.BoolFlag{
				Name:  "index",
				Usage: "Embed the new chunks once ingestion completes",
			},
		),
		Action: ingestAction,
	}
}

func ingestAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file or directory is required")
	}
	var method chunker.Method
	if name := c.String("method"); name != "" {
		m, err := chunker.ParseMethod(name)
		if err != nil {
			return err
		}
		method = m
	}
	files, err := collectFiles(c.Args().Slice())
	if err != nil {
		return err
	}
	inputs := make([]ingestion.DocumentInput, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		inputs = append(inputs, ingestion.DocumentInput{
			OwnerID:  c.String("owner"),
			TenantID: c.String("tenant"),
			FileName: filepath.Base(path),
			FileType: fileType(path),
			Text:     string(data),
			Method:   method,
		})
	}

	return withService(c, func(ctx context.Context, svc *ragline.Service) error {
		p, err := svc.NewPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.Release()

		report, err := p.Ingest(ctx, inputs...)
		if err != nil {
			return err
		}
		out := c.App.Writer
		for _, d := range report.Documents {
			switch {
			case d.Err != nil:
				fmt.Fprintf(out, "%s: failed: %v\n", d.FileName, d.Err)
			case d.Skipped():
				fmt.Fprintf(out, "%s: duplicate of %s\n", d.FileName, d.DuplicateOf)
			default:
				fmt.Fprintf(out, "%s: %d chunks (%s)\n", d.FileName, d.Chunks, d.Method)
			}
		}
		fmt.Fprintf(out, "Processed %d, skipped %d, failed %d, %d chunks created\n",
			report.Processed, report.Skipped, report.Failed, report.ChunksCreated)

		if c.Bool("index") && report.ChunksCreated > 0 {
			ns, err := namespaceFlag(c)
			if err != nil {
				return err
			}
			if err := runIndex(ctx, c, svc, ns); err != nil {
				return err
			}
		}
		return report.Err()
	})
}

// collectFiles expands directories into the regular files beneath them.
// Hidden files and directories are skipped.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func fileType(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "txt"
	}
	return strings.ToLower(ext)
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Embed unembedded chunks of a namespace",
		Flags: ownerFlags(),
		Action: func(c *cli.Context) error {
			ns, err := namespaceFlag(c)
			if err != nil {
				return err
			}
			return withService(c, func(ctx context.Context, svc *ragline.Service) error {
				return runIndex(ctx, c, svc, ns)
			})
		},
	}
}

func runIndex(ctx context.Context, c *cli.Context, svc *ragline.Service, ns core.Namespace) error {
	ix, err := svc.NewIndexer(ctx)
	if err != nil {
		return err
	}
	report, err := ix.Index(ctx, ns)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Indexed %d of %d chunks into %s with %s (%d failed)\n",
		report.Embedded, report.Candidates, report.Index, report.Model, report.Failed)
	return nil
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Search the chunks of a namespace",
		ArgsUsage: "QUERY...",
		Flags: append(ownerFlags(),
			&cli.IntFlag{
				Name:    "max-hits",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results (default from config)",
			},
			&cli.Float64Flag{
				Name:  "min-similarity",
				Usage: "Minimum cosine similarity (default from config)",
			},
		),
		Action: queryAction,
	}
}

func queryAction(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("a query is required")
	}
	ns, err := namespaceFlag(c)
	if err != nil {
		return err
	}
	return withService(c, func(ctx context.Context, svc *ragline.Service) error {
		var opts []search.Option
		if c.IsSet("min-similarity") {
			opts = append(opts, search.WithMinSimilarity(c.Float64("min-similarity")))
		}
		s, err := svc.NewSearcher(ctx, opts...)
		if err != nil {
			return err
		}
		maxHits := c.Int("max-hits")
		if maxHits <= 0 {
			maxHits = svc.Config().Search.MaxHits
		}
		results, err := s.Search(ctx, ns, query, maxHits)
		if err != nil {
			return err
		}

		out := c.App.Writer
		fmt.Fprintf(out, "Found %d hits\n", len(results))
		for i, hit := range results {
			fmt.Fprintf(out, "%d: %s#%d [%0.3f] %s\n", i, hit.Chunk.FileName, hit.Chunk.Index, hit.Score, preview(hit.Chunk.Content, 120))
		}
		return nil
	})
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:  "reembed",
		Usage: "Re-embed chunks whose vectors are stale",
		Flags: append(ownerFlags(),
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Which chunks to re-embed (stale, all)",
				Value: string(reembed.ModeStale),
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks to process in each batch",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N chunks",
				Value: 500,
			},
			&cli.BoolFlag{
				Name:  "restart",
				Usage: "Ignore any saved checkpoint and start from the beginning",
			},
		),
		Action: reembedAction,
	}
}

func reembedAction(c *cli.Context) error {
	mode, err := reembed.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}
	rcfg := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		Mode:           mode,
		Restart:        c.Bool("restart"),
	}
	if rcfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if rcfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	ns, err := namespaceFlag(c)
	if err != nil {
		return err
	}

	return withService(c, func(ctx context.Context, svc *ragline.Service) error {
		r, err := svc.NewReembedder(ctx, rcfg, c.App.ErrWriter)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.ErrWriter, "Data dir: %s\n", svc.Config().DataDir)
		fmt.Fprintf(c.App.ErrWriter, "Namespace: %s\n", ns)
		fmt.Fprintf(c.App.ErrWriter, "Mode: %s\n\n", mode)
		if _, err := r.Run(ctx, ns); err != nil {
			return fmt.Errorf("reembedding failed: %w", err)
		}
		return nil
	})
}

func enhanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "enhance",
		Usage: "Manage batch summary enhancement jobs",
		Subcommands: []*cli.Command{
			{
				Name:   "submit",
				Usage:  "Submit the basic-summary chunks of a namespace for enhancement",
				Flags:  ownerFlags(),
				Action: enhanceSubmitAction,
			},
			{
				Name:  "poll",
				Usage: "Poll one job, or every active job",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "job",
						Usage: "Job id to poll",
					},
				},
				Action: enhancePollAction,
			},
			{
				Name:  "serve",
				Usage: "Accept batch status webhooks and poll active jobs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (default from config)",
					},
				},
				Action: enhanceServeAction,
			},
		},
	}
}

func enhanceSubmitAction(c *cli.Context) error {
	return withService(c, func(ctx context.Context, svc *ragline.Service) error {
		m, err := svc.NewManager()
		if err != nil {
			return err
		}
		job, err := m.Submit(ctx, enhancement.SubmitRequest{
			TenantID: c.String("tenant"),
			OwnerID:  c.String("owner"),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Submitted job %s (batch %s) with %d chunks\n", job.ID, job.RemoteJobID, job.TotalRequests)
		return nil
	})
}

func enhancePollAction(c *cli.Context) error {
	return withService(c, func(ctx context.Context, svc *ragline.Service) error {
		m, err := svc.NewManager()
		if err != nil {
			return err
		}
		var jobs []*core.EnhancementJob
		if id := c.String("job"); id != "" {
			job, err := m.Poll(ctx, id)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		} else if jobs, err = m.PollActive(ctx); err != nil {
			return err
		}
		for _, job := range jobs {
			printJob(c, job)
		}
		return nil
	})
}

func printJob(c *cli.Context, job *core.EnhancementJob) {
	fmt.Fprintf(c.App.Writer, "%s %s: %d/%d completed, %d failed, %d chunks updated\n",
		job.ID, job.Status, job.RequestCounts.Completed, job.TotalRequests, job.RequestCounts.Failed, job.UpdatedChunks)
	if job.ErrorMessage != "" {
		fmt.Fprintf(c.App.Writer, "  error: %s\n", job.ErrorMessage)
	}
}

func enhanceServeAction(c *cli.Context) error {
	return withService(c, func(ctx context.Context, svc *ragline.Service) error {
		cfg := svc.Config()
		m, err := svc.NewManager()
		if err != nil {
			return err
		}
		addr := c.String("addr")
		if addr == "" {
			addr = cfg.Enhancement.WebhookAddr
		}
		return serve(ctx, m, cfg, addr)
	})
}

// serve runs the webhook server and the active job poller until ctx is
// cancelled.
func serve(ctx context.Context, m *enhancement.Manager, cfg *config.Config, addr string) error {
	logger := slog.Default().With("component", "enhancement-server")
	opts := []enhancement.WebhookOption{enhancement.WithWebhookLogger(slog.Default())}
	if cfg.Enhancement.WebhookSecret != "" {
		opts = append(opts, enhancement.WithSecret(cfg.Enhancement.WebhookSecret))
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           enhancement.NewWebhookHandler(m, opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Enhancement.PollInterval.Std())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				jobs, err := m.PollActive(ctx)
				if err != nil {
					logger.Warn("polling active jobs failed", "err", err)
					continue
				}
				logger.Debug("polled active jobs", "jobs", len(jobs))
			}
		}
	})
	return g.Wait()
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective configuration with secrets redacted",
		Action: func(c *cli.Context) error {
			cfg, err := loadedConfig(c)
			if err != nil {
				return err
			}
			data, err := config.Encode(cfg)
			if err != nil {
				return err
			}
			_, err = c.App.Writer.Write(data)
			return err
		},
	}
}
