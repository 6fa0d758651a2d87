package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beaconhq/beacon/internal/alerting"
	"github.com/beaconhq/beacon/internal/api"
	"github.com/beaconhq/beacon/internal/api/health"
	"github.com/beaconhq/beacon/internal/logging"
	"github.com/beaconhq/beacon/internal/metrics"
	"github.com/beaconhq/beacon/internal/notifier"
	"github.com/beaconhq/beacon/internal/outbound"
	"github.com/beaconhq/beacon/internal/storage"
	"github.com/beaconhq/beacon/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "beacon",
	Short: "Beacon - event alert dispatch service",
	Long: `Beacon receives events from monitored applications, matches them
against alert rules and delivers notifications by email, Slack,
webhook or text message.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.VersionString())
	},
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Work with alert rule files",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate an alert rules file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every request")

	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(serveCmd, versionCmd, rulesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*Config, error) {
	if configFile == "" {
		return DefaultConfig(), nil
	}
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newRegistry builds the sender registry. Email is only wired when SMTP is
// configured; without it email rules are skipped at dispatch.
func newRegistry(cfg *Config, logger *zap.Logger) (*notifier.Registry, error) {
	deps := notifier.Deps{
		Site:       notifier.Site{Name: cfg.Site.Name, BaseURL: cfg.Site.BaseURL},
		SMSGateway: cfg.SMS.GatewayURL,
		Logger:     logger.Named("notifier"),
	}
	if cfg.Mail.Host != "" {
		transport, err := notifier.NewSMTPTransport(notifier.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		})
		if err != nil {
			return nil, fmt.Errorf("create mail transport: %w", err)
		}
		deps.Mail = transport
	}
	return notifier.NewRegistry(deps), nil
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	if verbose {
		cfg.Server.Verbose = true
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	dbDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	store := storage.NewSQLiteStorage(cfg.Database.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	registry, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rules alerting.RuleRepository = store.Alerts()
	var fileRules *alerting.FileRepository
	if cfg.Rules.File != "" {
		fileRules, err = alerting.NewFileRepository(cfg.Rules.File, logger.Named("rules"))
		if err != nil {
			return fmt.Errorf("load rules file: %w", err)
		}
		for _, problem := range alerting.CheckRules(fileRules.Rules(), registry) {
			logger.Warn("alert rule will be skipped", zap.Error(problem))
		}
		if cfg.Rules.Watch {
			if err := fileRules.Watch(ctx); err != nil {
				return fmt.Errorf("watch rules file: %w", err)
			}
		}
		rules = fileRules
		logger.Info("using alert rules file",
			zap.String("path", cfg.Rules.File),
			zap.Int("rules", len(fileRules.Rules())),
		)
	}

	dispatcher := alerting.NewDispatcher(rules, registry,
		alerting.WithLogger(logger.Named("dispatch")),
		alerting.WithHistory(store.AlertHistory()),
	)

	drainer := outbound.NewDrainer(logger.Named("outbound"))
	srv, err := api.New(&api.Config{
		Address:          cfg.Server.HTTPAddress,
		Verbose:          cfg.Server.Verbose,
		IngestRate:       cfg.Server.IngestRate,
		IngestBurst:      cfg.Server.IngestBurst,
		PurgeInterval:    cfg.PurgeInterval(),
		HistoryRetention: cfg.HistoryRetention(),
		Outbound: outbound.Options{
			Timeout:        cfg.OutboundTimeout(),
			MaxConcurrency: cfg.Outbound.MaxConcurrency,
			Client:         outbound.NewClient(),
			Logger:         logger.Named("outbound"),
		},
		Version: config.Version,
	}, api.Deps{
		Storage:    store,
		Dispatcher: dispatcher,
		Registry:   registry,
		Drainer:    drainer,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	if fileRules != nil {
		srv.RegisterHealthChecker(health.NewRulesFileChecker(cfg.Rules.File))
	}

	logger.Info("starting beacon", zap.String("version", config.Version))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if cfg.Metrics.Address != "" {
		metricsSrv := metrics.NewServer(cfg.Metrics.Address, logger.Named("metrics"))
		g.Go(metricsSrv.Start)
		g.Go(func() error {
			<-gctx.Done()
			return metricsSrv.Shutdown(context.Background())
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rules, err := alerting.LoadRulesFromFile(args[0])
	if err != nil {
		return err
	}

	registry, err := newRegistry(cfg, zap.NewNop())
	if err != nil {
		return err
	}

	problems := alerting.CheckRules(rules, registry)
	out := cmd.OutOrStdout()
	for _, p := range problems {
		fmt.Fprintf(out, "invalid: %v\n", p)
	}
	if len(problems) > 0 {
		return fmt.Errorf("%d of %d rules are invalid", len(problems), len(rules))
	}
	fmt.Fprintf(out, "%d rules OK\n", len(rules))
	return nil
}
