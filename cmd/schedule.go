package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newScheduleCommand(a *app) *cobra.Command {
	var (
		spec   string
		runNow bool
	)
	cmd := &cobra.Command{
		Use:   "schedule <news|catalog>",
		Short: "Run a pipeline repeatedly on a cron schedule",
		Long: `Run a pipeline on a cron schedule until interrupted. Runs never overlap:
a tick that arrives while the previous run is still going is skipped.

  scraper schedule news --cron "0 */6 * * *"
  scraper schedule catalog --cron "@daily" --now`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"news", "catalog"},
		RunE: func(cmd *cobra.Command, args []string) error {
			pipelines := a.pipelines()
			run, ok := pipelines[args[0]]
			if !ok {
				names := make([]string, 0, len(pipelines))
				for name := range pipelines {
					names = append(names, name)
				}
				sort.Strings(names)
				return fmt.Errorf("unknown pipeline %q, expected one of %s", args[0], strings.Join(names, ", "))
			}
			return schedule(cmd.Context(), spec, runNow, run, a.log.WithField("pipeline", args[0]))
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "@every 6h", "Cron expression or descriptor for the runs.")
	cmd.Flags().BoolVar(&runNow, "now", false, "Run once immediately before waiting for the first tick.")
	addHeadlessFlag(cmd)
	return cmd
}

// schedule runs run on every tick of spec until ctx is done.
func schedule(ctx context.Context, spec string, runNow bool, run func(context.Context) error, logger log.FieldLogger) error {
	cl := cronLogger{log: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	job := func() {
		if err := run(ctx); err != nil {
			logger.WithError(err).Error("Scheduled run failed")
		}
	}
	id, err := c.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	if runNow {
		job()
	}

	c.Start()
	logger.WithFields(log.Fields{
		"cron": spec,
		"next": c.Entry(id).Next,
	}).Info("Scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	logger.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts a logrus logger to cron.Logger.
type cronLogger struct {
	log log.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(keysAndValues []any) log.Fields {
	out := make(log.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
