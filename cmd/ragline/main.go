package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/ragline/config"
)

const configKey = "config"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragline",
		Usage: "Content indexing pipeline for retrieval augmented generation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML configuration file",
				EnvVars: []string{"RAGLINE_CONFIG"},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Environment files loaded before the environment is read (default .env)",
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Override the data directory",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			ingestCommand(),
			indexCommand(),
			queryCommand(),
			reembedCommand(),
			enhanceCommand(),
			configCommand(),
		},
	}
}

// setup loads the configuration, applies flag overrides and installs the
// default logger.
func setup(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"), c.StringSlice("env-file")...)
	if err != nil {
		return err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if level := c.String("log-level"); level != "" {
		if _, err := config.ParseLogLevel(strings.ToLower(level)); err != nil {
			return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", level)
		}
		cfg.LogLevel = strings.ToLower(level)
	}
	slog.SetDefault(cfg.NewLogger())

	if c.App.Metadata == nil {
		c.App.Metadata = map[string]any{}
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func loadedConfig(c *cli.Context) (*config.Config, error) {
	cfg, ok := c.App.Metadata[configKey].(*config.Config)
	if !ok {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
