package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spc/internal/repositories"
	"github.com/desertthunder/spc/internal/shared"
	"github.com/desertthunder/spc/internal/ui"
)

func (r *Runner) openVault() (*repositories.SecretRepository, func() error, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewSecretRepository(db, r.config.Vault.Name), db.Close, nil
}

// SecretsList prints the names and expiries of the secrets in the configured vault.
//
// Values are never printed.
func (r *Runner) SecretsList(ctx context.Context, cmd *cli.Command) error {
	vault, closeDB, err := r.openVault()
	if err != nil {
		return err
	}
	defer closeDB()

	secrets, err := vault.ListSecrets(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(secrets, true)
	}

	styles := ui.Styles()
	r.writePlainHeader(fmt.Sprintf("Vault %q", vault.Vault()))
	if len(secrets) == 0 {
		return r.writePlainln("no secrets stored")
	}
	for _, s := range secrets {
		expiry := styles.Help("no expiry")
		if s.ExpiresOn != nil {
			expiry = "expires " + s.ExpiresOn.Local().Format("2006-01-02 15:04:05")
		}
		r.writePlain("%-40s %s\n", s.Name, expiry)
	}
	return nil
}

// SecretsDelete removes one secret from the configured vault.
func (r *Runner) SecretsDelete(ctx context.Context, cmd *cli.Command) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	vault, closeDB, err := r.openVault()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := vault.DeleteSecret(ctx, name); err != nil {
		return err
	}
	r.logger.Info("secret deleted", "vault", vault.Vault(), "name", name)
	return r.writePlain("✓ Deleted %s\n", name)
}
