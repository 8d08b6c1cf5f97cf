// Refresher runs the credential sweep as a standalone worker, for deployments
// that scale the HTTP server independently of background renewal.
// Requires DATABASE_URL and AES_ENCRYPTION_KEY plus the provider client
// credentials; see .env.example.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"songbridge/internal/authorization/service"
	"songbridge/internal/config"
	credentialdomain "songbridge/internal/credential/domain"
	credentialrepo "songbridge/internal/credential/repository"
	"songbridge/internal/db"
	"songbridge/internal/provider"
	"songbridge/internal/refresher"
	"songbridge/internal/security"
	"songbridge/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("refresher: DATABASE_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, "songbridge-refresher", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	key, err := cfg.AESKey()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cipher, err := security.NewCipher(key)
	if err != nil {
		log.Fatalf("cipher: %v", err)
	}

	credentials := credentialrepo.NewPostgresRepository(database)
	timeout := cfg.ProviderTimeoutDuration()
	manager := service.NewManager(credentials, cipher, map[credentialdomain.Provider]provider.Client{
		credentialdomain.ProviderTwitch:  provider.NewTwitchClient(cfg.TwitchClientID, cfg.TwitchClientSecret, timeout),
		credentialdomain.ProviderSpotify: provider.NewSpotifyClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret, timeout),
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("refresher: shutting down...")
		cancel()
	}()

	meter := providers.MeterProvider.Meter("songbridge/refresher")
	refresher.New(credentials, manager, cfg.RefreshIntervalDuration(), cfg.RefreshLookaheadDuration(), meter).Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry: %v", err)
	}
}
