// package tasks implements the cleanup workflow's activities.
package tasks

import (
	"context"
	"time"

	"github.com/desertthunder/spc/internal/counter"
	"github.com/desertthunder/spc/internal/models"
)

// Vault reads and writes named credentials.
type Vault interface {
	GetSecret(ctx context.Context, name string) (*models.Secret, error)
	SetSecret(ctx context.Context, name, value string, expiresOn *time.Time) error
}

// Counter is the part of the counter registry the cleanup activity uses.
type Counter interface {
	Read(ctx context.Context, key string) (models.CounterState, error)
	Signal(key string, op counter.Op, amount int64) error
}

// loadCredentials reads both tokens for state. Either read failing is returned.
func loadCredentials(ctx context.Context, vault Vault, state string) (models.CredentialRecord, error) {
	var rec models.CredentialRecord

	access, err := vault.GetSecret(ctx, models.AccessTokenSecret(state))
	if err != nil {
		return rec, err
	}
	rec.AccessToken = access.Value
	if access.ExpiresOn != nil {
		rec.ExpiresOn = *access.ExpiresOn
	}

	refresh, err := vault.GetSecret(ctx, models.RefreshTokenSecret(state))
	if err != nil {
		return rec, err
	}
	rec.RefreshToken = refresh.Value
	return rec, nil
}
