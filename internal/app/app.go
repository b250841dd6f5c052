package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"halving-chart/internal/alerting"
	"halving-chart/internal/config"
	"halving-chart/internal/fetcher"
	"halving-chart/internal/scheduler"
	"halving-chart/internal/service"
	"halving-chart/internal/storage"
	"halving-chart/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newBarFetcher() fetcher.BarFetcher {
	return fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:   a.Config.Source.BaseURL,
		Timeout:   a.Config.Source.RequestTimeout,
		UserAgent: a.Config.Source.UserAgent,
	}, a.Logger)
}

// newReferenceFetcher returns nil when no RPC endpoint is configured.
func (a *App) newReferenceFetcher() fetcher.ReferencePriceFetcher {
	oracle := fetcher.NewOracle(fetcher.OracleOptions{
		RPCURL:      a.Config.Ethereum.RPCURL,
		FeedAddress: a.Config.Ethereum.FeedAddress,
		Timeout:     a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
	if !oracle.Configured() {
		return nil
	}
	return oracle
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return alerting.NewLogNotifier(a.Logger)
}

// openStore returns a nil backend when database.dsn is unset.
func (a *App) openStore(ctx context.Context) (storage.Backend, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the fetchers and, when present, the store into a service.
func (a *App) newService(store storage.Backend, deps service.Dependencies) (*service.Service, error) {
	deps.Bars = a.newBarFetcher()
	if ref := a.newReferenceFetcher(); ref != nil {
		deps.Reference = ref
	}
	if store != nil {
		deps.BarStore = store
		deps.AlertStore = store
		deps.Locker = store
	}
	return service.New(a.Config, deps, a.Logger)
}

// Run executes the long-running refresh service.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; bar cache and alert history disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Cron:         a.Config.Scheduler.Cron,
		RunOnStart:   opts.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	output := opts.Output
	if output == "" {
		output = a.Config.Chart.Output
	}

	deps := service.Dependencies{
		Scheduler: sched,
		Notifier:  a.newNotifier(),
		Publish: func(ctx context.Context, snap *service.Snapshot) error {
			return a.writeChart(output, snap)
		},
	}
	svc, err := a.newService(store, deps)
	if err != nil {
		return err
	}

	a.Logger.Info().Str("output", output).Str("version", version.String()).Msg("starting chart service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("chart service stopped")
	return nil
}

// RunOptions configure the run command.
type RunOptions struct {
	Output     string
	RunOnStart bool
}

// ChartOptions select the bars and output of a one-shot chart.
type ChartOptions struct {
	Request service.Request
	Output  string
	// Format is png or svg; inferred from Output's extension when empty.
	Format string
}

// ExportOptions hold parameters for exporting a computed frame.
type ExportOptions struct {
	Request   service.Request
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SignalsOptions configure the signals listing.
type SignalsOptions struct {
	Format string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Symbol    string
	Timeframe string
	Limit     int
	Alerts    bool
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	Symbol    string
	Timeframe string
	From      time.Time
	To        time.Time
	DryRun    bool
	Workers   int
}
