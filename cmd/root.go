// Package cmd implements the scraper command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/chenoh1990/scraping-assignment/config"
	"github.com/chenoh1990/scraping-assignment/exporter"
	"github.com/chenoh1990/scraping-assignment/logging"
	"github.com/chenoh1990/scraping-assignment/store"
)

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() error {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, a := newRootCommand()
	return execute(ctx, root, a)
}

// execute runs root and releases the log file however the command ends.
// Post-run hooks do not run when RunE fails.
func execute(ctx context.Context, root *cobra.Command, a *app) (err error) {
	defer func() {
		err = errors.Join(err, a.close())
	}()
	return root.ExecuteContext(ctx)
}

type rootOptions struct {
	cfgFile  string
	snapshot bool
}

// app holds what every pipeline command needs once flags are parsed.
type app struct {
	opts     rootOptions
	cfg      *config.Config
	log      *log.Logger
	fs       afero.Fs
	closeLog func() error
}

// NewRootCommand builds the command tree. The caller owns closing the log
// file, which Execute does.
func NewRootCommand() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{fs: afero.NewOsFs()}

	root := &cobra.Command{
		Use:   "scraper",
		Short: "Scrape news articles and catalog products into JSON collections",
		Long: `scraper collects records from two kinds of sources and merges them into
one JSON document per source:

  news     paginated JSON listing API, one detail request per new article
  catalog  scroll-to-load catalog page, one browser visit per product`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.init,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.cfgFile, "config", "", "Path to the config file (default ./config.yaml or ./config/config.yaml).")
	flags.String("output", "output_data", "Directory to save scraped data.")
	flags.String("loglevel", "info", "Log level (debug, info, warn, error, fatal, panic).")
	flags.BoolVar(&a.opts.snapshot, "snapshot", false, "Also write a timestamped copy of the collection after each run.")

	root.AddCommand(
		newNewsCommand(a),
		newCatalogCommand(a),
		newScheduleCommand(a),
		newVersionCommand(),
	)
	return root, a
}

func (a *app) init(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	cfg, err := config.Load(a.opts.cfgFile,
		config.WithFlag("output_dir", flags.Lookup("output")),
		config.WithFlag("log.level", flags.Lookup("loglevel")),
		config.WithFlag("browser.headless", flags.Lookup("headless")),
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger
	a.closeLog = closeLog
	return nil
}

func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	closeLog := a.closeLog
	a.closeLog = nil
	return closeLog()
}

// pipelines maps a source name to its single-run entry point.
func (a *app) pipelines() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"news":    a.runNews,
		"catalog": a.runCatalog,
	}
}

func (a *app) runLogger(source string) *log.Entry {
	return a.log.WithFields(log.Fields{
		"run_id": uuid.NewString(),
		"source": source,
	})
}

// finish logs the run duration and writes the optional snapshot.
func finish[T any](a *app, s *store.Store[T], source string, start time.Time, logger log.FieldLogger) error {
	logger.WithField("duration", time.Since(start).Round(time.Millisecond).String()).Info("Run finished")
	if !a.opts.snapshot {
		return nil
	}

	records, err := s.Load()
	if err != nil {
		return err
	}
	_, err = exporter.Snapshot(a.fs, records, a.cfg.OutputDir, source, time.Now(), logger)
	return err
}
