package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

// SecretRepository is the credential vault: named secrets scoped to a vault name.
type SecretRepository struct {
	db    *sql.DB
	vault string
}

// NewSecretRepository creates a SecretRepository reading and writing secrets of the named vault.
func NewSecretRepository(db *sql.DB, vault string) *SecretRepository {
	return &SecretRepository{db: db, vault: vault}
}

// Vault returns the vault name the repository is scoped to.
func (r *SecretRepository) Vault() string { return r.vault }

// GetSecret returns the named secret or [shared.ErrSecretNotFound].
func (r *SecretRepository) GetSecret(ctx context.Context, name string) (*models.Secret, error) {
	query := `
		SELECT name, value, expires_on, updated_at
		FROM secrets
		WHERE vault = ? AND name = ?
	`

	var (
		secret    models.Secret
		expiresOn sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, r.vault, name).Scan(&secret.Name, &secret.Value, &expiresOn, &secret.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSecretNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", name, err)
	}

	secret.ExpiresOn = nullTime(&expiresOn)
	return &secret, nil
}

// SetSecret creates or replaces the named secret. A nil expiresOn clears any stored expiry.
func (r *SecretRepository) SetSecret(ctx context.Context, name, value string, expiresOn *time.Time) error {
	if name == "" {
		return fmt.Errorf("%w: secret name is required", shared.ErrInvalidArgument)
	}

	var exp sql.NullTime
	if expiresOn != nil {
		exp = sql.NullTime{Time: expiresOn.UTC(), Valid: true}
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO secrets (vault, name, value, expires_on, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(vault, name) DO UPDATE SET
			value = excluded.value,
			expires_on = excluded.expires_on,
			updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, r.vault, name, value, exp, now, now); err != nil {
		return fmt.Errorf("failed to write secret %s: %w", name, err)
	}
	return nil
}

// DeleteSecret removes the named secret.
func (r *SecretRepository) DeleteSecret(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM secrets WHERE vault = ? AND name = ?", r.vault, name)
	if err != nil {
		return fmt.Errorf("failed to delete secret %s: %w", name, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSecretNotFound, name)
	}
	return nil
}

// ListSecrets returns every secret in the vault, without values, ordered by name.
func (r *SecretRepository) ListSecrets(ctx context.Context) ([]models.Secret, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, expires_on, updated_at
		FROM secrets
		WHERE vault = ?
		ORDER BY name ASC
	`, r.vault)
	if err != nil {
		return nil, fmt.Errorf("failed to query secrets: %w", err)
	}
	defer rows.Close()

	var secrets []models.Secret
	for rows.Next() {
		var (
			s         models.Secret
			expiresOn sql.NullTime
		)
		if err := rows.Scan(&s.Name, &expiresOn, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		s.ExpiresOn = nullTime(&expiresOn)
		secrets = append(secrets, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return secrets, nil
}
