package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lojasmm/wabridge/internal/ai"
	"github.com/lojasmm/wabridge/internal/bot"
	"github.com/lojasmm/wabridge/internal/config"
	"github.com/lojasmm/wabridge/internal/server"
	"github.com/lojasmm/wabridge/internal/session"
	"github.com/lojasmm/wabridge/internal/store"
	"github.com/lojasmm/wabridge/internal/twilio"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)
	log.Debugf("PERPLEXITY_API_KEY: %s", cfg.MaskedAPIKey())
	if cfg.PerplexityAPIKey == "" {
		log.Warn("wabridge: PERPLEXITY_API_KEY is not set, every reply will be an error message")
	}

	history, err := openStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer history.Close()

	completer := ai.NewClient(cfg.PerplexityAPIKey, cfg.PerplexityURL, cfg.PerplexityModel, cfg.CompletionTimeout, cfg.CompletionRetries)
	sessionMgr := session.NewManager()

	// Periodic cleanup of idle per-sender locks and, when enabled, idle histories
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.Cleanup(1 * time.Hour)
			if cfg.HistoryIdleTTL > 0 {
				n, err := history.Evict(cfg.HistoryIdleTTL)
				if err != nil {
					log.Errorf("store: evicting idle histories: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("store: evicted %d idle histories", n)
				}
			}
		}
	}()

	var verifier *twilio.Verifier
	if cfg.TwilioValidateSignature {
		verifier = twilio.NewVerifier(cfg.TwilioAuthToken, cfg.TwilioAccountSID, cfg.BaseURL)
	}

	botHandler := bot.NewHandler(history, completer, sessionMgr)
	webhookHandler := twilio.NewWebhookHandler(botHandler, verifier)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.NewRouter(webhookHandler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("wabridge: listening on :%s (history backend: %s)", cfg.Port, cfg.HistoryBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("wabridge: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	log.Println("wabridge: stopped")
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.HistoryBackend == config.BackendBolt {
		return store.NewBoltStore(filepath.Join(cfg.DataDir, "wabridge.db"))
	}
	return store.NewMemoryStore(), nil
}
