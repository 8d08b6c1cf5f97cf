// Server runs the HTTP API with an in-process credential refresher.
// Requires DATABASE_URL, AES_ENCRYPTION_KEY, JWT_SECRET_KEY, and the Twitch
// and Spotify client credentials; see .env.example.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"songbridge/internal/authorization/service"
	"songbridge/internal/config"
	credentialdomain "songbridge/internal/credential/domain"
	credentialrepo "songbridge/internal/credential/repository"
	"songbridge/internal/db"
	identityrepo "songbridge/internal/identity/repository"
	identityservice "songbridge/internal/identity/service"
	"songbridge/internal/oidc"
	"songbridge/internal/provider"
	"songbridge/internal/refresher"
	"songbridge/internal/security"
	"songbridge/internal/server"
	"songbridge/internal/telemetry"
	userrepo "songbridge/internal/user/repository"
)

const (
	twitchAuthorizeURL  = "https://id.twitch.tv/oauth2/authorize"
	spotifyAuthorizeURL = "https://accounts.spotify.com/authorize"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	providers, err := telemetry.NewProviders(ctx, cfg.OTLPEndpoint, "songbridge-server", cfg.OTLPInsecure)
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
	tokens := security.NewTokenProvider(cfg.JWTSecretKey, cfg.SessionTTL())

	credentials := credentialrepo.NewPostgresRepository(database)
	sessions := identityrepo.NewPostgresRepository(database)
	users := userrepo.NewPostgresRepository(database)

	timeout := cfg.ProviderTimeoutDuration()
	twitchClient := provider.NewTwitchClient(cfg.TwitchClientID, cfg.TwitchClientSecret, timeout)
	spotifyClient := provider.NewSpotifyClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret, timeout)

	manager := service.NewManager(credentials, cipher, map[credentialdomain.Provider]provider.Client{
		credentialdomain.ProviderTwitch:  twitchClient,
		credentialdomain.ProviderSpotify: spotifyClient,
	})
	identity := identityservice.NewService(sessions, users, tokens, cfg.TwitchScopeList())

	doc, jwks, err := oidc.FetchDiscovery(ctx, cfg.OIDCIssuer, timeout)
	if err != nil {
		log.Fatalf("oidc: %v", err)
	}
	validator, err := oidc.NewValidator(cfg.OIDCIssuer, cfg.TwitchClientID, jwks)
	if err != nil {
		log.Fatalf("oidc: %v", err)
	}
	twitchAuthorize := doc.AuthorizationEndpoint
	if twitchAuthorize == "" {
		twitchAuthorize = twitchAuthorizeURL
	}

	srv := server.New(
		database, tokens, users, identity, manager, validator,
		server.OAuthEndpoint{
			Client:       twitchClient,
			AuthorizeURL: twitchAuthorize,
			ClientID:     cfg.TwitchClientID,
			RedirectURI:  cfg.TwitchRedirectURI,
			Scope:        cfg.TwitchScopeList(),
		},
		server.OAuthEndpoint{
			Client:       spotifyClient,
			AuthorizeURL: spotifyAuthorizeURL,
			ClientID:     cfg.SpotifyClientID,
			RedirectURI:  cfg.SpotifyRedirectURI,
		},
	)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	meter := providers.MeterProvider.Meter("songbridge/refresher")
	go refresher.New(credentials, manager, cfg.RefreshIntervalDuration(), cfg.RefreshLookaheadDuration(), meter).Run(sweepCtx)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Handler(),
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	stopSweep()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry: %v", err)
	}
	log.Println("HTTP server stopped")
}
