package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/chenoh1990/scraping-assignment/fetcher"
	"github.com/chenoh1990/scraping-assignment/scraper"
	"github.com/chenoh1990/scraping-assignment/store"
)

func newNewsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "news",
		Short: "Ingest the news listing once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runNews(cmd.Context())
		},
	}
}

func (a *app) runNews(ctx context.Context) error {
	logger := a.runLogger("news")
	logger.WithField("file", a.cfg.NewsPath()).Info("Starting news ingestion")
	start := time.Now()

	s := store.New(a.fs, a.cfg.NewsPath(), scraper.ArticleKey, logger)
	f := fetcher.New(a.cfg.FetcherConfig(), logger)
	if err := scraper.NewNewsPipeline(a.cfg.News, f, s, logger).Run(ctx); err != nil {
		return err
	}
	return finish(a, s, "news", start, logger)
}
