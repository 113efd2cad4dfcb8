package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fxcore/internal/alert"
	"fxcore/internal/api"
	"fxcore/internal/audit"
	"fxcore/internal/broker"
	"fxcore/internal/events"
	"fxcore/internal/execution"
	"fxcore/internal/jobqueue"
	"fxcore/internal/market"
	"fxcore/internal/reconcile"
	sig "fxcore/internal/signal"
	"fxcore/pkg/config"
	"fxcore/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting execution core on port %s (paper=%v)", cfg.Port, cfg.PaperBroker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	auditLog := audit.NewLogger(database)

	// Market rules from YAML, falling back to built-in defaults.
	meta, err := market.LoadMetadata(cfg.MarketRulesPath)
	if err != nil {
		log.Printf("market rules config not loaded (%v), using defaults", err)
		meta = market.DefaultMetadata(cfg.Pairs)
	}
	rules := market.NewRules(meta)

	// Price feed doubles as the engine's price source.
	feed := &market.SimFeed{
		Bus:      bus,
		Pairs:    cfg.Pairs,
		Interval: time.Second,
	}
	feed.Start(ctx)

	// Alert channels assemble from whatever is configured.
	channels := make([]alert.Channel, 0, 3)
	if cfg.SlackWebhook != "" {
		if ch, err := alert.NewSlackChannel(cfg.SlackWebhook); err == nil {
			channels = append(channels, ch)
		} else {
			log.Printf("slack channel disabled: %v", err)
		}
	}
	if cfg.AlertWebhookURL != "" {
		if ch, err := alert.NewWebhookChannel(cfg.AlertWebhookURL); err == nil {
			channels = append(channels, ch)
		} else {
			log.Printf("webhook channel disabled: %v", err)
		}
	}
	if cfg.SMTPHost != "" {
		if ch, err := alert.NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailFrom, cfg.EmailTo); err == nil {
			channels = append(channels, ch)
		} else {
			log.Printf("email channel disabled: %v", err)
		}
	}
	alerts := alert.NewBus(cfg.AlertDedupeWindow, channels...)
	log.Printf("alert channels: %v", alerts.AvailableChannels())

	// Broker venue
	var venue broker.Router
	var reconciler broker.Reconciler
	if cfg.PaperBroker {
		paper := broker.NewPaper(broker.PaperConfig{
			InitialBalance: cfg.PaperInitialBalance,
		})
		venue = paper
		reconciler = paper
		log.Printf("paper broker initialized with balance %.2f", cfg.PaperInitialBalance)
	} else {
		log.Println("no live broker configured; running local book-keeping only")
	}

	// Signal gate
	validity := sig.NewValidityEngine(sig.ValidityConfig{
		MinConfidence:   cfg.MinConfidence,
		MinStrength:     cfg.MinStrength,
		MaxRiskFraction: cfg.MaxRiskFraction,
	}, rules)

	// Background job queue
	queue := jobqueue.New(jobqueue.Config{
		MaxQueueSize:  cfg.JobQueueSize,
		Concurrency:   cfg.JobConcurrency,
		MaxAttempts:   cfg.JobMaxAttempts,
		RetryBase:     cfg.JobRetryBase,
		RetryMax:      cfg.JobRetryMax,
		DeadLetterMax: cfg.JobDeadLetterMax,
	}, auditLog)

	// Execution engine with the reconcile job wired through the queue.
	engine, err := execution.NewEngine(execution.Config{
		DefaultRiskFraction: cfg.DefaultRiskFraction,
		BrokerTimeout:       cfg.BrokerTimeout,
		PriceTimeout:        cfg.PriceTimeout,
		ReconcileMinWait:    cfg.ReconcileMinWait,
		Broker:              venue,
		Prices:              feed,
		Rules:               rules,
		Bus:                 bus,
		Audit:               auditLog,
		DB:                  database,
		Alerts:              alerts,
		ScheduleReconciliation: func() {
			queue.Enqueue("broker.reconcile", nil)
		},
	})
	if err != nil {
		log.Fatalf("execution engine init failed: %v", err)
	}

	if reconciler != nil {
		reconSvc := reconcile.NewService(reconciler, engine, database, alerts, true)
		queue.Register("broker.reconcile", func(ctx context.Context, job *jobqueue.Job) error {
			_, err := reconSvc.Run(ctx)
			return err
		})
	} else {
		queue.Register("broker.reconcile", func(ctx context.Context, job *jobqueue.Job) error {
			return nil
		})
	}
	queue.Start(ctx)
	defer queue.Stop()

	// Active trade management loop
	go func() {
		ticker := time.NewTicker(cfg.ManageInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.ManageActiveTrades(ctx)
			}
		}
	}()

	// Daily risk budget resets at midnight UTC.
	go func() {
		for {
			now := time.Now().UTC()
			next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
			select {
			case <-ctx.Done():
				return
			case <-time.After(next.Sub(now)):
				engine.ResetDailyRisk()
			}
		}
	}()

	// API
	server := api.NewServer(&api.Server{
		Bus:              bus,
		DB:               database,
		Engine:           engine,
		Validity:         validity,
		Rules:            rules,
		Queue:            queue,
		Alerts:           alerts,
		JWTSecret:        cfg.JWTSecret,
		OperatorUser:     cfg.OperatorUser,
		OperatorPassword: cfg.OperatorPassword,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		Meta: api.SystemMeta{
			PaperBroker: cfg.PaperBroker,
			Broker:      brokerName(venue),
			Pairs:       cfg.Pairs,
			Version:     buildVersion(),
		},
	})
	go func() {
		if err := server.Router.Run(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}

func brokerName(v broker.Router) string {
	if v == nil {
		return "none"
	}
	return v.Name()
}

func buildVersion() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v1.0-dev"
}
