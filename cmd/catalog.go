package cmd

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chenoh1990/scraping-assignment/browser"
	"github.com/chenoh1990/scraping-assignment/scraper"
	"github.com/chenoh1990/scraping-assignment/store"
)

func newCatalogCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Scrape and enrich the product catalog once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCatalog(cmd.Context())
		},
	}
	addHeadlessFlag(cmd)
	return cmd
}

func addHeadlessFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("headless", true, "Run the browser without a window.")
}

func (a *app) runCatalog(ctx context.Context) error {
	logger := a.runLogger("catalog")
	logger.WithFields(log.Fields{
		"url":      a.cfg.Catalog.URL,
		"file":     a.cfg.CatalogPath(),
		"headless": a.cfg.Browser.Headless,
	}).Info("Starting catalog scrape")
	start := time.Now()

	s := store.New(a.fs, a.cfg.CatalogPath(), scraper.ProductKey, logger)
	launch := browser.ChromeLauncher(a.cfg.Browser)
	if err := scraper.NewCatalogPipeline(a.cfg.Catalog, launch, s, logger).Run(ctx); err != nil {
		return err
	}
	return finish(a, s, "catalog", start, logger)
}
