package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/studyhall/ragchat/internal/app"
	"github.com/studyhall/ragchat/internal/config"
	"github.com/studyhall/ragchat/internal/ingest"
	"github.com/studyhall/ragchat/internal/log"
)

var (
	ingestDir      string
	ingestURL      string
	ingestLang     string
	ingestMaxPages int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load textbook content into the vector store",
	Long: `Parses textbook content, embeds it and uploads it to the language's
Milvus collection. Content comes from a local MDX/Markdown tree (--dir) or
from crawling a docs site (--url). Only one ingest can run at a time.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runIngest(cmd.Context())
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "content directory with .mdx/.md files")
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "docs site URL to crawl")
	ingestCmd.Flags().StringVar(&ingestLang, "lang", "en", "content language (en or ur)")
	ingestCmd.Flags().IntVar(&ingestMaxPages, "max-pages", 0, "crawl page limit (0 = default)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(parent context.Context) error {
	if (ingestDir == "") == (ingestURL == "") {
		return errors.New("exactly one of --dir or --url is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(log.Config{})

	components, cleanup, err := app.SetupIngest(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing ingest: %w", err)
	}
	defer cleanup()

	var docs []ingest.Document
	if ingestDir != "" {
		docs, err = ingest.ParseDir(ingestDir, logger)
	} else {
		docs, err = ingest.Crawl(ingest.CrawlConfig{StartURL: ingestURL, MaxPages: ingestMaxPages}, logger)
	}
	if err != nil {
		return fmt.Errorf("collecting documents: %w", err)
	}

	pipeline := ingest.NewPipeline(components.Embedder, components.VectorStore, logger)
	if err := pipeline.Run(ctx, docs, ingestLang); err != nil {
		return fmt.Errorf("ingesting content: %w", err)
	}
	return nil
}
