package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"copytrade-core/internal/api"
	"copytrade-core/internal/engine"
	"copytrade-core/internal/hub"
	"copytrade-core/internal/market"
	"copytrade-core/internal/monitor"
	"copytrade-core/internal/reconciliation"
	"copytrade-core/internal/session"
	"copytrade-core/internal/strategy"
	"copytrade-core/pkg/broker"
	"copytrade-core/pkg/config"
	"copytrade-core/pkg/db"
	"copytrade-core/pkg/market/exchange"
)

var buildVersion = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("copytrade-core starting (port %s, symbol %s %s)", cfg.Port, cfg.Symbol, cfg.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	// Strategy catalogue: YAML presets synced into the DB at startup.
	if presets, err := strategy.LoadPresets(cfg.StrategyConfigPath); err != nil {
		log.Printf("strategy presets not loaded (%v); catalogue unchanged", err)
	} else if err := strategy.SyncPresetsToDB(ctx, database, presets); err != nil {
		log.Fatalf("strategy preset sync failed: %v", err)
	} else {
		log.Printf("strategy catalogue synced (%d presets)", len(presets))
	}

	eventHub := hub.New()
	metrics := monitor.NewMetrics()

	brokerClient := broker.NewClient(cfg.BrokerBaseURL, cfg.BrokerTimeout)

	streamClient := exchange.NewStreamClient(cfg.BrokerStreamURL)
	feedOpts := market.DefaultOptions()
	feedOpts.MaxAttempts = cfg.FeedReconnectMax
	feeds := market.NewManager(streamClient, feedOpts)

	sessionOpts := session.Options{
		SettleDelay:  cfg.TradeSettleDelay,
		PollInterval: cfg.ReconcilePollEvery,
		PollMax:      cfg.ReconcilePollMax,
	}
	eng := engine.New(session.Deps{
		Broker: brokerClient,
		Store:  database,
		Hub:    eventHub,
	}, feeds, eventHub, sessionOpts, metrics)

	reconciler := reconciliation.NewService(database, brokerClient, eng, eventHub, cfg.HistorySweepEvery)
	reconciler.Start(ctx)

	server := api.NewServer(
		database,
		eng,
		reconciler,
		eventHub,
		metrics,
		api.SystemMeta{
			Symbol:   cfg.Symbol,
			Interval: cfg.Interval,
			Version:  buildVersion,
		},
		cfg.JWTSecret,
	)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()
	log.Printf("api listening on :%s", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	cancel()
	eng.Shutdown()
	feeds.Shutdown()
}
