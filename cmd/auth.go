package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/repositories"
	"github.com/desertthunder/spc/internal/server"
	"github.com/desertthunder/spc/internal/services"
	"github.com/desertthunder/spc/internal/shared"
)

const authTimeout = 2 * time.Minute

// Auth performs the OAuth2 authorization flow for Spotify and stores the tokens under a state.
//
// Starts a local callback server, opens the browser for user authorization, and writes the
// exchanged tokens to the configured vault. With --remote the browser is sent to a running
// server's /login instead, and that server stores the tokens.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	state := cmd.String("state")
	if state == "" {
		var err error
		if state, err = shared.GenerateState(); err != nil {
			return fmt.Errorf("failed to generate state token: %w", err)
		}
	}

	if cmd.Bool("remote") {
		return r.authRemote(state)
	}

	cfg := r.config
	if cfg.Credentials.Spotify.ClientID == "" || cfg.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrInvalidArgument, r.configPath)
	}

	spotify, err := services.NewSpotifyService(cfg.Credentials.Spotify.Map())
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}
	spotify.SetHTTPClient(r.httpClient)

	db, err := shared.OpenDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	vault := repositories.NewSecretRepository(db, cfg.Vault.Name)
	if _, err := r.doOAuth(ctx, spotify, vault, state); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens stored as %s and %s in vault %q\n\n", models.AccessTokenSecret(state), models.RefreshTokenSecret(state), vault.Vault())
	r.writePlain("You can now use: spc start --state %s --playlist <id> --contributor <user>\n", state)
	return nil
}

func (r *Runner) authRemote(state string) error {
	base := r.config.Server.BaseURL()
	loginURL := fmt.Sprintf("%s/login?state=%s", base, url.QueryEscape(state))

	r.writePlain("→ Opening browser for Spotify authorization via %s...\n", base)
	if err := shared.OpenBrowser(loginURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", loginURL)
	}
	r.writePlain("State: %s\n", state)
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, oauthSrv services.OAuthService, vault server.Vault, state string) (*oauth2.Token, error) {
	handler := server.NewCallbackHandler(oauthSrv, vault, server.CallbackOpts{
		State:    state,
		Lifetime: r.config.Cleanup.TokenLifetime,
	}, r.logger)
	router := server.NewBasicRouter()
	router.Handler(handler)

	srv := server.New(r.config.Server.Addr(), router, r.logger)
	srvCtx, stop := context.WithCancel(ctx)
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for authorization at %v", srv.Addr())
		serverErrors <- srv.Run(srvCtx)
	}()
	defer func() {
		stop()
		if err := <-serverErrors; err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := oauthSrv.GetAuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.CallbackResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		serverErrors <- nil
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}
	return result.Token, nil
}
