package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chadiek/glass-bridge/internal/agent"
	"github.com/chadiek/glass-bridge/internal/config"
	"github.com/chadiek/glass-bridge/internal/device"
	"github.com/chadiek/glass-bridge/internal/docstore"
	"github.com/chadiek/glass-bridge/internal/eventlog"
	httpserver "github.com/chadiek/glass-bridge/internal/httpserver"
	"github.com/chadiek/glass-bridge/internal/llm"
	"github.com/chadiek/glass-bridge/internal/persist"
	"github.com/chadiek/glass-bridge/internal/session"
)

var version = "dev"

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	completer, err := llm.New(ctx, llm.Options{
		Provider:      cfg.LLMProvider,
		CerebrasKey:   cfg.CerebrasKey,
		CerebrasModel: cfg.CerebrasModelID,
		GeminiKey:     cfg.GeminiKey,
		GeminiModel:   cfg.GeminiModelID,
	})
	if err != nil {
		log.Printf("llm disabled, every answer will be the fallback text: %v", err)
	}

	docs, err := docstore.New(docstore.Config{
		SupabaseURL: cfg.SupabaseURL,
		SupabaseKey: cfg.SupabaseServiceRoleKey,
		DocsDir:     cfg.DocsDir,
	})
	if err != nil {
		log.Fatalf("docstore: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("persist: %v", err)
	}
	defer func() { _ = store.Close() }()

	gateway := device.NewGateway(cfg.AuthPassword)
	deps := agent.Deps{
		Registry: session.NewRegistry(session.Defaults{
			DisplayDuration: cfg.DisplayDuration,
			AutoAdvance:     cfg.AutoAdvance,
			Persona:         "default",
			ConversationCap: cfg.ConversationCap,
		}),
		Events:      eventlog.New(cfg.EventLogCapacity),
		Docs:        docs,
		Display:     gateway,
		Persistence: store,
	}
	if completer != nil {
		deps.LLM = completer
	}
	bridge := agent.New(deps, agent.PipelineOptions{
		PageMaxChars:    cfg.PageMaxChars,
		ContextMaxChars: cfg.ContextMaxChars,
		HistoryTurns:    3,
		LLMTimeout:      cfg.LLMTimeout,
	})
	gateway.Bind(bridge)
	stopBridge := bridge.Start(ctx)

	srv := httpserver.New(bridge, httpserver.Options{
		Password:  cfg.AuthPassword,
		Version:   version,
		Device:    gateway,
		Connected: gateway.Connected,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Echo,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
	gateway.Close()
	stopBridge()
}

func openStore(cfg config.Config) (persist.Store, error) {
	driver := persist.Driver(cfg.PersistDriver)
	switch driver {
	case persist.DriverSQLite:
		return persist.NewStore(driver, persist.WithSQLitePath(cfg.SQLitePath))
	case persist.DriverRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return persist.NewStore(driver, persist.WithRedisClient(redis.NewClient(opts)), persist.WithRedisMaxLen(cfg.ConversationCap))
	case persist.DriverSupabase:
		return persist.NewStore(driver, persist.WithSupabase(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey))
	default:
		return persist.NewStore(driver)
	}
}
