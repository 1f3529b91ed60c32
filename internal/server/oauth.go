package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/services"
	"github.com/desertthunder/spc/internal/shared"
)

// Vault stores the tokens produced by the authorization callback.
type Vault interface {
	SetSecret(ctx context.Context, name, value string, expiresOn *time.Time) error
}

// CallbackResult is the outcome of one authorization callback.
type CallbackResult struct {
	State string
	Token *oauth2.Token
	err   error
}

func (c *CallbackResult) Error() error {
	return c.err
}

// CallbackOpts contains configuration for a [CallbackHandler].
type CallbackOpts struct {
	RedirectURL string           // Browser destination once tokens are stored; empty renders a page
	Lifetime    time.Duration    // Access token expiry written to the vault (default: 1h)
	State       string           // When set, only this state is accepted and only one callback is handled
	Now         func() time.Time // Clock (default: time.Now)
}

// CallbackHandler completes the authorization code flow for a state.
//
// The OAuth state parameter names the credential set: the code is exchanged and the tokens
// are written to the vault as <state>-AccessToken and <state>-RefreshToken.
type CallbackHandler struct {
	oauth   services.OAuthService
	vault   Vault
	opts    CallbackOpts
	logger  *log.Logger
	results chan CallbackResult

	mu  sync.Mutex
	hit bool
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(oauth services.OAuthService, vault Vault, opts CallbackOpts, logger *log.Logger) *CallbackHandler {
	if opts.Lifetime <= 0 {
		opts.Lifetime = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &CallbackHandler{
		oauth:   oauth,
		vault:   vault,
		opts:    opts,
		logger:  logger,
		results: make(chan CallbackResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *CallbackHandler) Routes() []string {
	return []string{"GET /callback"}
}

// ServeHTTP handles the provider's redirect back to the service.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opts.State != "" {
		h.mu.Lock()
		if h.hit {
			h.mu.Unlock()
			http.Error(w, "Callback already processed", http.StatusBadRequest)
			return
		}
		h.hit = true
		h.mu.Unlock()
	}

	query := r.URL.Query()
	state := query.Get("state")
	if state == "" || (h.opts.State != "" && state != h.opts.State) {
		h.send(CallbackResult{State: state, err: fmt.Errorf("%w: invalid state parameter", shared.ErrAuthFailed)})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s - %s", shared.ErrAuthFailed, query.Get("error"), query.Get("error_description"))
		h.send(CallbackResult{State: state, err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.send(CallbackResult{State: state, err: err})
		http.Error(w, "Token exchange failed", http.StatusBadGateway)
		return
	}

	if err := h.store(r.Context(), state, token); err != nil {
		h.send(CallbackResult{State: state, err: err})
		http.Error(w, "Failed to store credentials", http.StatusInternalServerError)
		return
	}

	h.logger.Info("credentials stored", "state", state)
	h.send(CallbackResult{State: state, Token: token})

	if h.opts.RedirectURL != "" {
		http.Redirect(w, r, h.opts.RedirectURL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, successPage)
}

func (h *CallbackHandler) store(ctx context.Context, state string, token *oauth2.Token) error {
	expiresOn := h.opts.Now().Add(h.opts.Lifetime)
	if err := h.vault.SetSecret(ctx, models.AccessTokenSecret(state), token.AccessToken, &expiresOn); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if token.RefreshToken == "" {
		return fmt.Errorf("%w: provider returned no refresh token", shared.ErrNoRefreshToken)
	}
	if err := h.vault.SetSecret(ctx, models.RefreshTokenSecret(state), token.RefreshToken, nil); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// send delivers result without blocking. Results nobody reads are dropped.
func (h *CallbackHandler) send(result CallbackResult) {
	select {
	case h.results <- result:
	default:
	}
}

// Result returns the channel receiving callback outcomes.
func (h *CallbackHandler) Result() <-chan CallbackResult {
	return h.results
}

// LoginHandler sends the browser to the provider's consent page for a state.
type LoginHandler struct {
	oauth services.OAuthService
}

func NewLoginHandler(oauth services.OAuthService) *LoginHandler {
	return &LoginHandler{oauth: oauth}
}

func (h *LoginHandler) Routes() []string {
	return []string{"GET /login"}
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		http.Error(w, "state query parameter is required", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, h.oauth.GetAuthURL(state), http.StatusFound)
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>Authorization Successful</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Playlist cleanup authorized</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`
