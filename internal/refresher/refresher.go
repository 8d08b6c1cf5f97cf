// Package refresher runs the background sweep that renews third-party
// credentials before they expire, so interactive requests rarely pay the
// refresh round trip.
package refresher

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"songbridge/internal/authorization/service"
	"songbridge/internal/credential/domain"
)

// CredentialLister lists credentials that need renewal.
type CredentialLister interface {
	ListExpiringBefore(ctx context.Context, cutoff time.Time) ([]*domain.Credential, error)
}

// CredentialRefresher renews a single credential.
type CredentialRefresher interface {
	RefreshCredential(ctx context.Context, p domain.Provider, userID string) error
}

// Refresher periodically sweeps for credentials expiring within the lookahead
// window and refreshes each one. Failures on one credential never stop the
// sweep; the locked refresh path makes a concurrent interactive refresh of the
// same credential safe.
type Refresher struct {
	store     CredentialLister
	manager   CredentialRefresher
	interval  time.Duration
	lookahead time.Duration

	refreshed metric.Int64Counter
	failed    metric.Int64Counter
}

// New returns a Refresher sweeping every interval for credentials that expire
// within lookahead. meter may come from a no-op provider.
func New(store CredentialLister, manager CredentialRefresher, interval, lookahead time.Duration, meter metric.Meter) *Refresher {
	refreshed, err := meter.Int64Counter("songbridge.refresher.refreshed",
		metric.WithDescription("Credentials refreshed by the background sweep"))
	if err != nil {
		log.Printf("refresher: create counter: %v", err)
	}
	failed, err := meter.Int64Counter("songbridge.refresher.failed",
		metric.WithDescription("Credential refresh attempts that failed in the background sweep"))
	if err != nil {
		log.Printf("refresher: create counter: %v", err)
	}
	return &Refresher{
		store:     store,
		manager:   manager,
		interval:  interval,
		lookahead: lookahead,
		refreshed: refreshed,
		failed:    failed,
	}
}

// Run sweeps once immediately and then on every interval tick until ctx is
// cancelled.
func (r *Refresher) Run(ctx context.Context) {
	log.Printf("refresher: sweeping every %s, lookahead %s", r.interval, r.lookahead)
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("refresher: stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep refreshes every credential expiring within the lookahead window.
func (r *Refresher) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(r.lookahead)
	creds, err := r.store.ListExpiringBefore(ctx, cutoff)
	if err != nil {
		log.Printf("refresher: list expiring credentials: %v", err)
		return
	}
	if len(creds) == 0 {
		return
	}
	log.Printf("refresher: %d credential(s) expiring before %s", len(creds), cutoff.Format(time.RFC3339))

	for _, cred := range creds {
		if ctx.Err() != nil {
			return
		}
		attrs := metric.WithAttributes(attribute.String("provider", string(cred.Provider)))
		switch err := r.manager.RefreshCredential(ctx, cred.Provider, cred.UserID); {
		case err == nil:
			r.add(ctx, r.refreshed, attrs)
		case errors.Is(err, service.ErrCredentialNotFound):
			// Invalidated or deleted since the listing; nothing to renew.
		default:
			log.Printf("refresher: refresh %s credential for user %s: %v", cred.Provider, cred.UserID, err)
			r.add(ctx, r.failed, attrs)
		}
	}
}

func (r *Refresher) add(ctx context.Context, c metric.Int64Counter, opts ...metric.AddOption) {
	if c != nil {
		c.Add(ctx, 1, opts...)
	}
}
