package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"pkghub/internal"
	"pkghub/pkg/auth"
	"pkghub/pkg/importer"
	"pkghub/pkg/providers"
	"pkghub/pkg/storage/registry"
	"pkghub/webhook"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	store, err := registry.Open(registry.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		Dialect:     config.Storage.Dialect,
		AutoMigrate: config.Storage.AutoMigrate,
	})
	if err != nil {
		logger.Fatalf("open registry store: %v", err)
	}
	defer store.Close()

	ruleEngine, err := internal.NewRuleEngine(config.Rules, config.RulesStrict, logger)
	if err != nil {
		logger.Fatalf("compile rules: %v", err)
	}

	publisher, err := internal.NewPublisher(config.Watermill)
	if err != nil {
		logger.Fatalf("publisher: %v", err)
	}
	defer publisher.Close()

	imp := importer.New(store, providers.Options{
		Timeout:         time.Duration(config.Importer.FetchTimeoutMS) * time.Millisecond,
		MaxArchiveBytes: config.Importer.MaxArchiveBytes,
	}, nil)

	handler := webhook.NewHandler(webhook.Config{
		Store:        store,
		Secrets:      auth.NewSecretProvider(),
		Importer:     imp,
		Rules:        ruleEngine,
		Publisher:    publisher,
		Logger:       logger,
		MaxBodyBytes: config.Server.MaxBodyBytes,
		DefaultTopic: config.Watermill.DefaultTopic,
	})

	mux := http.NewServeMux()
	handler.Register(mux)
	if config.Server.MetricsEnabled {
		mux.Handle(config.Server.MetricsPath, expvar.Handler())
		logger.Printf("metrics enabled on %s", config.Server.MetricsPath)
	}

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           internal.NewRateLimitHandler(mux, config.Server.RateLimitRPS, config.Server.RateLimitBurst),
		ReadTimeout:       time.Duration(config.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(config.Server.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Server.IdleTimeoutMS) * time.Millisecond,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
