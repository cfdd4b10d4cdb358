package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Simodalstix/AWS-dr-pilot-light/internal/activator"
	awsadapters "github.com/Simodalstix/AWS-dr-pilot-light/internal/adapters/aws"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/api"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/api/handlers"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/config"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/core"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/dnsfailover"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/health"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/metrics"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/notify"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/sla"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/storage/redis"
	"github.com/Simodalstix/AWS-dr-pilot-light/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Region endpoints
	primary, standby, err := regionEndpoints(cfg)
	if err != nil {
		logger.Fatal("Invalid region configuration", zap.Error(err))
	}

	// Durable run store
	var store workflow.RunStore
	if cfg.Database.URL != "" {
		db, err := workflow.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := workflow.Migrate(db); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		store = workflow.NewPostgresStore(db)
	} else {
		logger.Warn("No database configured, runs will not survive restart")
		store = workflow.NewMemoryStore()
	}

	// Redis snapshot cache
	var cache *redis.Client
	if cfg.Redis.URL != "" {
		cache = redis.NewClient(cfg.Redis.URL)
		defer cache.Close()
	}

	// AWS adapters
	awsCfg, err := awsadapters.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		logger.Fatal("Failed to load AWS config", zap.Error(err))
	}
	computeAdapter := awsadapters.NewComputeAdapter(awsCfg, logger)
	databaseAdapter := awsadapters.NewDatabaseAdapter(awsCfg, logger)
	targetAdapter := awsadapters.NewTargetAdapter(awsCfg, logger)

	// Notification channel
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Notify.TopicARN != "" {
		notifier = awsadapters.NewSNSNotifier(awsCfg, cfg.Notify.TopicARN, logger)
	}
	notifier = notify.NewBestEffort(notifier, logger)

	// Metrics
	collector := metrics.NewCollector(&cfg.RemoteWrite)
	go collector.StartRemoteWrite(ctx)

	// Health monitor
	probers := []health.Prober{
		health.NewComputeProber(cfg.Health.ProbeTimeout),
		health.NewDatabaseProber(databaseAdapter, cfg.Health.ProbeTimeout),
	}
	monitor := health.NewMonitor(
		[]core.RegionEndpoint{primary, standby},
		probers,
		health.Options{
			FailureThreshold: cfg.Health.FailureThreshold,
			SuccessThreshold: cfg.Health.SuccessThreshold,
			WindowSize:       cfg.Health.WindowSize,
			ProbeInterval:    cfg.Health.ProbeInterval,
		},
		logger,
	)
	monitor.AddSink(collector)
	if cache != nil {
		monitor.AddSink(redis.NewHealthSink(cache, logger))
	}
	go monitor.Start(ctx)

	// Resource activator
	act := activator.New(
		computeAdapter,
		databaseAdapter,
		targetAdapter,
		activator.PollConfig{
			Interval:    cfg.Activator.PollInterval,
			MaxAttempts: cfg.Activator.MaxPolls,
		},
		activator.RetryPolicy{
			MaxAttempts: cfg.Workflow.MaxAttempts,
			BaseBackoff: cfg.Workflow.BackoffBase,
			MaxBackoff:  cfg.Workflow.BackoffMax,
		},
		logger,
	)

	// Workflow engine
	engine := workflow.NewEngine(
		workflow.Config{
			Target:         cfg.Workflow.Target,
			PrimaryRegion:  primary.RegionID,
			GroupID:        cfg.Activator.GroupID,
			TargetCapacity: cfg.Activator.TargetCapacity,
			MinCapacity:    cfg.Activator.MinCapacity,
			ReplicaID:      cfg.Activator.ReplicaID,
			TargetGroupARN: cfg.Activator.TargetGroupARN,
			Timeout:        cfg.Workflow.Timeout,
			SettleDelay:    cfg.Workflow.SettleDelay,
		},
		store, monitor, act, notifier, logger,
	)
	engine.SetObserver(collector)
	if err := engine.Start(ctx); err != nil {
		logger.Fatal("Failed to start workflow engine", zap.Error(err))
	}

	// DNS failover controller
	var dnsController *dnsfailover.Controller
	if cfg.DNS.RecordName != "" && cfg.DNS.HostedZoneID != "" {
		dnsAdapter := awsadapters.NewDNSAdapter(awsCfg, cfg.DNS.HostedZoneID, logger)
		dnsController = dnsfailover.NewController(
			dnsfailover.Config{
				RecordName:       cfg.DNS.RecordName,
				Primary:          primary,
				Standby:          standby,
				StandbyReplicaID: cfg.Activator.ReplicaID,
				FailureThreshold: cfg.DNS.FailureThreshold,
				CheckInterval:    cfg.DNS.CheckInterval,
				WatchInterval:    cfg.DNS.WatchInterval,
				Resolver:         cfg.DNS.Resolver,
			},
			dnsAdapter, monitor, databaseAdapter, notifier, logger,
		)
		dnsController.SetFlipHook(func(activeTarget string) {
			collector.DNSSteered(activeTarget == standby.ComputeEndpoint)
		})

		if err := dnsController.EnsureRecords(ctx); err != nil {
			logger.Fatal("Failed to ensure DNS records", zap.Error(err))
		}
		go dnsController.Start(ctx)
	} else {
		logger.Warn("DNS failover controller disabled, record name or hosted zone not configured")
	}

	// RTO reporting
	slaCalculator := sla.NewCalculator(store, sla.Objectives{RTO: cfg.SLA.RTO}, logger)

	// API server
	var recordSource handlers.RecordSetSource
	if dnsController != nil {
		recordSource = dnsController
	}
	server := api.NewServer(cfg, engine, monitor, recordSource, slaCalculator, cache, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("DR orchestrator started",
		zap.String("port", cfg.Server.Port),
		zap.String("primary", primary.RegionID),
		zap.String("standby", standby.RegionID),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down orchestrator...")
	cancel()
	engine.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Orchestrator exited")
}

func regionEndpoints(cfg *config.Config) (core.RegionEndpoint, core.RegionEndpoint, error) {
	var primary, standby core.RegionEndpoint
	var havePrimary, haveStandby bool

	for id, rc := range cfg.Regions {
		ep := core.RegionEndpoint{
			RegionID:        id,
			ComputeEndpoint: rc.ComputeEndpoint,
			DatabaseHandle:  rc.DatabaseHandle,
			Role:            core.RegionRole(rc.Role),
		}
		switch ep.Role {
		case core.RolePrimary:
			if havePrimary {
				return primary, standby, fmt.Errorf("regions %s and %s both configured as primary", primary.RegionID, id)
			}
			primary = ep
			havePrimary = true
		case core.RoleStandby:
			if haveStandby {
				return primary, standby, fmt.Errorf("regions %s and %s both configured as standby", standby.RegionID, id)
			}
			standby = ep
			haveStandby = true
		}
	}

	if !havePrimary || !haveStandby {
		return primary, standby, errors.New("regions config must define one primary and one standby")
	}
	return primary, standby, nil
}
