package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/metricproxy/pkg/config"
	"github.com/cuemby/metricproxy/pkg/events"
	"github.com/cuemby/metricproxy/pkg/exporter"
	"github.com/cuemby/metricproxy/pkg/federation"
	"github.com/cuemby/metricproxy/pkg/ingest"
	"github.com/cuemby/metricproxy/pkg/job"
	"github.com/cuemby/metricproxy/pkg/log"
	"github.com/cuemby/metricproxy/pkg/profile"
	"github.com/cuemby/metricproxy/pkg/scrape"
	"github.com/cuemby/metricproxy/pkg/trace"
	"github.com/cuemby/metricproxy/pkg/webserver"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "metric-proxy",
	Short:   "metric-proxy - a per-node HPC metric aggregation and trace-recording daemon",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"metric-proxy version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	serveCmd.Flags().String("config", "", "Path to a YAML config file")
	serveCmd.Flags().String("listen", "", "HTTP facade bind address")
	serveCmd.Flags().String("socket", "", "UNIX ingest socket path")
	serveCmd.Flags().String("prefix", "", "Filesystem prefix for profiles/traces")
	serveCmd.Flags().Bool("aggregator", true, "Persist profiles and finalize traces on job termination")
	serveCmd.Flags().String("ftio-command", "", "External surrogate-model helper command")
	serveCmd.Flags().String("join", "", "Root proxy URL to bootstrap federation against")

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the metric-proxy daemon",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("socket"); v != "" {
		cfg.SocketPath = v
	}
	if v, _ := cmd.Flags().GetString("prefix"); v != "" {
		cfg.Prefix = v
	}
	if v, _ := cmd.Flags().GetString("ftio-command"); v != "" {
		cfg.FTIOCommand = v
	}
	if cmd.Flags().Changed("aggregator") {
		cfg.Aggregator, _ = cmd.Flags().GetBool("aggregator")
	}
	joinRoot, _ := cmd.Flags().GetString("join")

	logger := log.WithComponent("main")
	logger.Info().Str("listen", cfg.ListenAddr).Str("socket", cfg.SocketPath).Str("prefix", cfg.Prefix).Msg("starting metric-proxy")

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	lifecycleSub := broker.Subscribe()
	go func() {
		eventLog := log.WithComponent("lifecycle")
		for evt := range lifecycleSub {
			eventLog.Info().
				Str("event", string(evt.Type)).
				Str("jobid", evt.Metadata["jobid"]).
				Str("source_id", evt.Metadata["source_id"]).
				Msg("lifecycle event")
		}
	}()

	traceMgr, err := trace.NewManager(cfg.Prefix, cfg.TraceMaxSize)
	if err != nil {
		return fmt.Errorf("main: init trace manager: %w", err)
	}
	profileStore, err := profile.NewStore(cfg.Prefix)
	if err != nil {
		return fmt.Errorf("main: init profile store: %w", err)
	}
	defer profileStore.Close()

	factory := job.NewFactory(hostname, cfg.Aggregator, broker)
	scheduler := scrape.NewScheduler(factory, traceMgr, profileStore, cfg.FTIOCommand, broker)

	factory.SetHooks(
		func(desc job.Desc, exp *exporter.Exporter) {
			if !cfg.Aggregator {
				return
			}
			jobLog := log.WithJobID(desc.JobID)
			if err := traceMgr.Allocate(desc); err != nil {
				jobLog.Warn().Err(err).Msg("main: allocate trace failed")
				return
			}
			scheduler.RegisterTrace(desc.JobID, cfg.TracePeriod)
			if cfg.FTIOCommand != "" {
				scheduler.RegisterFTIO(desc.JobID, cfg.TracePeriod*10)
			}
		},
		func(desc job.Desc, exp *exporter.Exporter) {
			scheduler.Unregister(scrape.TraceSourceID(desc.JobID))
			scheduler.Unregister(scrape.FTIOSourceID(desc.JobID))

			jobLog := log.WithJobID(desc.JobID)
			if err := traceMgr.Finalize(desc.JobID); err != nil {
				jobLog.Warn().Err(err).Msg("main: finalize trace failed")
			}

			p := &profile.Profile{Desc: desc, Counters: exp.Profile(true)}
			if err := profileStore.Save(p); err != nil {
				jobLog.Error().Err(err).Msg("main: save profile failed")
			}
		},
	)

	scheduler.RegisterSystem(cfg.SystemPeriod)
	scheduler.Start()
	defer scheduler.Stop()

	selfAddr := cfg.ListenAddr
	if len(selfAddr) > 0 && selfAddr[0] == ':' {
		selfAddr = hostname + selfAddr
	}
	fed := federation.NewController(selfAddr)

	if joinRoot != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		parent, err := federation.Bootstrap(ctx, client, joinRoot, "http://"+selfAddr, cfg.SystemPeriod)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("root", joinRoot).Msg("main: federation bootstrap failed")
		} else {
			logger.Info().Str("parent", parent).Msg("main: attached to federation tree")
		}
	}

	ingestSrv := ingest.NewServer(cfg.SocketPath, factory)
	if err := ingestSrv.Start(); err != nil {
		return fmt.Errorf("main: start ingest server: %w", err)
	}
	defer ingestSrv.Stop()

	web := webserver.New(factory, traceMgr, profileStore, scheduler, fed, cfg.FTIOCommand)

	httpErrCh := make(chan error, 1)
	go func() {
		if err := web.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-httpErrCh:
		return fmt.Errorf("main: webserver failed: %w", err)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("main: shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return web.Shutdown(ctx)
}
