package tasks

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/services"
	"github.com/desertthunder/spc/internal/shared"
)

// NeedsRenewal reports whether a token expiring at expiresOn could lapse before the cycle after
// the next interval, within slack. A zero expiresOn is always at risk.
func NeedsRenewal(expiresOn, now time.Time, interval, slack time.Duration) bool {
	if expiresOn.IsZero() {
		return true
	}
	return expiresOn.Sub(now)-interval < slack
}

// RefreshOpts contains configuration for a [Refresher].
type RefreshOpts struct {
	Interval time.Duration    // Delay between cleanup cycles
	Slack    time.Duration    // Safety margin before expiry
	Lifetime time.Duration    // Expiry stamped on renewed tokens (default: 1h)
	Now      func() time.Time // Clock (default: time.Now)
}

// Refresher renews the access token for a state ahead of its expiry.
type Refresher struct {
	vault    Vault
	provider services.Provider
	opts     RefreshOpts
	logger   *log.Logger
}

// NewRefresher creates a Refresher, filling defaults for unset options.
func NewRefresher(vault Vault, provider services.Provider, opts RefreshOpts, logger *log.Logger) *Refresher {
	if opts.Slack < 0 {
		opts.Slack = 0
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Refresher{vault: vault, provider: provider, opts: opts, logger: logger}
}

// Refresh renews the access token for state when it is at risk of expiring before the next cycle.
//
// Vault read failures are returned. Renewal and persistence failures are logged and swallowed,
// leaving the current token in place.
func (r *Refresher) Refresh(ctx context.Context, state string) error {
	logger := shared.WithLogger(r.logger, "state", state)

	creds, err := loadCredentials(ctx, r.vault, state)
	if err != nil {
		return err
	}

	now := r.opts.Now()
	if !NeedsRenewal(creds.ExpiresOn, now, r.opts.Interval, r.opts.Slack) {
		logger.Debug("token still valid", "expires_on", creds.ExpiresOn)
		return nil
	}

	token, err := r.provider.RefreshAccessToken(ctx, creds.RefreshToken)
	if err != nil {
		logger.Warn("could not refresh access token", "error", err)
		return nil
	}

	expiresOn := now.Add(r.opts.Lifetime)
	if err := r.vault.SetSecret(ctx, models.AccessTokenSecret(state), token.AccessToken, &expiresOn); err != nil {
		logger.Warn("could not store refreshed access token", "error", err)
		return nil
	}

	if token.RefreshToken != "" && token.RefreshToken != creds.RefreshToken {
		if err := r.vault.SetSecret(ctx, models.RefreshTokenSecret(state), token.RefreshToken, nil); err != nil {
			logger.Warn("could not store rotated refresh token", "error", err)
		}
	}

	logger.Info("access token refreshed", "expires_on", expiresOn)
	return nil
}
