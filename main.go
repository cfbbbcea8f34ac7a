package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ai-course-pipeline/api"
	"ai-course-pipeline/config"
	"ai-course-pipeline/logging"
	"ai-course-pipeline/plan"
)

var (
	configPath string
	runDate    string
)

func main() {
	// Load .env (local dev only, CI uses repository secrets)
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "ai-course-pipeline",
		Short:         "Produce and publish today's AI lesson video",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runOnce,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")
	root.Flags().StringVar(&runDate, "date", "", "plan date to produce (YYYY-MM-DD, default today in the schedule time zone)")

	root.AddCommand(&cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on the configured cron schedule and serve the plan API",
		RunE:  runSchedule,
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the content plan",
		RunE:  runStatus,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logging.New(cfg.Log, os.Stderr), nil
}

func today(cfg *config.Config) string {
	return time.Now().In(cfg.Location()).Format(plan.DateLayout)
}

// runOnce performs one cycle for --date and exits non-zero on failure.
func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	date := runDate
	if date == "" {
		date = today(cfg)
	}
	if _, err := time.Parse(plan.DateLayout, date); err != nil {
		return fmt.Errorf("--date %q: want YYYY-MM-DD", date)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info().Str("date", date).Str("plan", a.backend.String()).Msg("pipeline starting")
	return a.driver.Run(ctx, date)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	log := logging.Stage(logger, "schedule")
	guard := &runGuard{log: log, run: func() {
		date := today(cfg)
		if err := a.driver.Run(ctx, date); err != nil {
			log.Error().Err(err).Str("date", date).Msg("scheduled run failed")
		}
	}}

	cronLog := log.With().Str("component", "cron").Logger()
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.Recover(cron.PrintfLogger(&cronLog)), cron.SkipIfStillRunning(cron.PrintfLogger(&cronLog))),
	)
	if _, err := c.AddFunc(cfg.Schedule.Cron, guard.cycle); err != nil {
		return fmt.Errorf("schedule %q: %w", cfg.Schedule.Cron, err)
	}

	srv := api.NewServer(plan.NewStore(a.backend), guard.trigger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("status API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("status API stopped")
		}
	}()

	c.Start()
	log.Info().Str("cron", cfg.Schedule.Cron).Str("tz", cfg.Schedule.Timezone).Msg("scheduler started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("status API shutdown")
	}
	// wait for an in-flight run to record its outcome
	<-c.Stop().Done()
	guard.wait()
	return nil
}

// runGuard keeps scheduled and API-triggered cycles from overlapping and
// tracks the API-triggered ones so shutdown can wait for them.
type runGuard struct {
	running atomic.Bool
	manual  sync.WaitGroup
	run     func()
	log     zerolog.Logger
}

func (g *runGuard) cycle() {
	if !g.running.CompareAndSwap(false, true) {
		g.log.Warn().Msg("previous run still going, skipping")
		return
	}
	defer g.running.Store(false)
	g.run()
}

// trigger starts a cycle in the background. It reports false when one is
// already running.
func (g *runGuard) trigger() bool {
	if g.running.Load() {
		return false
	}
	g.manual.Add(1)
	go func() {
		defer g.manual.Done()
		g.cycle()
	}()
	return true
}

func (g *runGuard) wait() { g.manual.Wait() }

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	backend, closeBackend, err := plan.OpenBackend(cmd.Context(), cfg.Plan, cfg.Secrets)
	if err != nil {
		return err
	}
	defer closeBackend()

	store := plan.NewStore(backend)
	if _, err := store.Load(cmd.Context()); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSTATUS\tATTEMPTS\tTOPIC\tREMOTE ID\tERROR")
	for _, e := range store.Entries() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n", e.Date, e.Status, e.Attempts, e.Topic, e.RemoteID, e.ErrorDetail)
	}
	return w.Flush()
}
