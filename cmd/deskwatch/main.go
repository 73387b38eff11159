package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deskwatchhq/deskwatch/internal/bot"
	"github.com/deskwatchhq/deskwatch/internal/config"
	"github.com/deskwatchhq/deskwatch/internal/escalation"
	"github.com/deskwatchhq/deskwatch/internal/events"
	"github.com/deskwatchhq/deskwatch/internal/health"
	"github.com/deskwatchhq/deskwatch/internal/kb"
	"github.com/deskwatchhq/deskwatch/internal/logging"
	"github.com/deskwatchhq/deskwatch/internal/metrics"
	"github.com/deskwatchhq/deskwatch/internal/notify"
	"github.com/deskwatchhq/deskwatch/internal/poller"
	"github.com/deskwatchhq/deskwatch/internal/server"
	"github.com/deskwatchhq/deskwatch/internal/slack"
	"github.com/deskwatchhq/deskwatch/internal/store"
	"github.com/deskwatchhq/deskwatch/internal/tracker"
	"github.com/deskwatchhq/deskwatch/internal/zendesk"
)

const shutdownGrace = 10 * time.Second

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = run(ctx, os.Args[2:])
	case "check":
		err = check(ctx, os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to configuration file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New()
	logger.Printf("deskwatch starting (interval=%s, threshold=%s)", cfg.Monitor.Interval(), cfg.Monitor.Threshold())

	metricsStore := metrics.NewStore()
	recorder := events.NewMulti(events.NewLogRecorder(logger), metricsStore.EventRecorder())

	interactions, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open interaction store: %w", err)
	}
	defer closeStore()

	httpClient := &http.Client{Timeout: 10 * time.Second}

	provider, err := zendesk.NewProvider(zendesk.Config{
		Domain:   cfg.Zendesk.Domain,
		Email:    cfg.Zendesk.Email,
		APIToken: cfg.Zendesk.APIToken,
	}, zendesk.Dependencies{
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init status provider: %w", err)
	}

	slackClient, err := slack.NewClient(slack.Config{
		BotToken:       cfg.Slack.BotToken,
		CallsPerMinute: cfg.Slack.CallsPerMinute,
	}, slack.Dependencies{
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init chat client: %w", err)
	}

	kbClient, err := kb.NewClient(kb.Config{
		Email:    cfg.KB.Email,
		APIToken: cfg.KB.APIToken,
		AgentID:  cfg.KB.AgentID,
		OrgID:    cfg.KB.OrgID,
	}, kb.Dependencies{
		HTTPClient: httpClient,
		Logger:     logger,
		BaseURL:    cfg.KB.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("init knowledge base client: %w", err)
	}

	statusTracker := tracker.New(cfg.Monitor.Threshold(),
		tracker.WithExcluded(cfg.Monitor.ExcludedSet()),
		tracker.WithEventRecorder(recorder),
	)

	notifier := notify.NewAlertNotifier(slackClient, cfg.Slack.LeadsChannel, logger)

	healthChecker := health.NewChecker(metricsStore, cfg.Monitor.Interval())

	statusPoller := poller.New(provider, notifier, statusTracker,
		poller.WithInterval(cfg.Monitor.Interval()),
		poller.WithLogger(logger),
		poller.WithEventRecorder(recorder),
		poller.WithMetrics(metricsStore.PollRecorder()),
		poller.WithPollObserver(healthChecker.ObservePoll),
	)

	escalationHandler, err := escalation.NewHandler(escalation.Config{
		HelpChannel: cfg.Slack.HelpChannel,
	}, escalation.Dependencies{
		Messenger: slackClient,
		Store:     interactions,
		Logger:    logger,
		Events:    recorder,
		Metrics:   metricsStore.ActionRecorder(),
	})
	if err != nil {
		return fmt.Errorf("init escalation handler: %w", err)
	}

	supportBot, err := bot.New(bot.Config{
		LeadsChannel: cfg.Slack.LeadsChannel,
	}, bot.Dependencies{
		Messenger: slackClient,
		Searcher:  kbClient,
		Store:     interactions,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("init bot: %w", err)
	}

	srv := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		SigningSecret: cfg.Slack.SigningSecret,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  10 * time.Second,
		IdleTimeout:   60 * time.Second,
	}, server.Dependencies{
		Logger:     logger,
		Bot:        supportBot,
		Escalation: escalationHandler,
		Tracker:    statusTracker,
		Messenger:  slackClient,
		Health:     healthChecker,
		Metrics:    metricsStore,
		Events:     recorder,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	grp, groupCtx := errgroup.WithContext(runCtx)

	grp.Go(func() error {
		if err := statusPoller.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	grp.Go(func() error {
		logger.Printf("webhook server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	grp.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		return err
	}

	logger.Printf("deskwatch stopped")
	return nil
}

// check performs a one-shot poll against the ticketing platform and prints
// the agents currently in the watched status.
func check(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to configuration file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New()

	provider, err := zendesk.NewProvider(zendesk.Config{
		Domain:   cfg.Zendesk.Domain,
		Email:    cfg.Zendesk.Email,
		APIToken: cfg.Zendesk.APIToken,
	}, zendesk.Dependencies{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init status provider: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	records, err := provider.Fetch(fetchCtx)
	if err != nil {
		return fmt.Errorf("fetch agent statuses: %w", err)
	}

	now := time.Now().UTC()
	statusTracker := tracker.New(cfg.Monitor.Threshold(), tracker.WithExcluded(cfg.Monitor.ExcludedSet()))
	statusTracker.Update(now, records)

	standings := statusTracker.Snapshot(now)
	fmt.Printf("%d agents polled, %d in watched status\n", len(records), len(standings))
	for _, s := range standings {
		fmt.Printf("  %s (id %d)\n", s.AgentName, s.AgentID)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

func printUsage() {
	fmt.Println("Deskwatch Support Monitor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  deskwatch run [--config /etc/deskwatch/deskwatch.yaml]")
	fmt.Println("  deskwatch check [--config /etc/deskwatch/deskwatch.yaml]")
}
