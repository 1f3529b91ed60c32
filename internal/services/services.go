// package services defines the interfaces for the music provider and implements them for Spotify
package services

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/desertthunder/spc/internal/models"
)

// Provider is a music service whose playlists can be cleaned up.
type Provider interface {
	// Name returns the name of the service (e.g., "Spotify")
	Name() string

	// Playlists returns a playlist client authorized with the given access token.
	Playlists(accessToken string) PlaylistAPI

	// RefreshAccessToken exchanges a refresh token for a new access token.
	// The returned token carries a new refresh token when the provider rotates it.
	RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// PlaylistAPI reads and edits the tracks of a playlist.
type PlaylistAPI interface {
	// TrackTotal returns the number of entries in the playlist.
	TrackTotal(ctx context.Context, playlistID string) (int, error)

	// TrackPage returns up to limit entries starting at offset.
	TrackPage(ctx context.Context, playlistID string, offset, limit int) (*models.TrackPage, error)

	// RemoveTracks removes every occurrence of the given track URIs and returns how many of
	// them were removed, which is less than len(uris) only when err is non-nil.
	RemoveTracks(ctx context.Context, playlistID string, uris []string) (int, error)
}

// OAuthService is implemented by providers that authorize through the OAuth2 authorization code flow.
type OAuthService interface {
	// GetAuthURL returns the consent page URL carrying state.
	GetAuthURL(state string) string

	// GetOAuthConfig exposes the underlying [oauth2.Config].
	GetOAuthConfig() *oauth2.Config

	// Exchange trades an authorization code for tokens.
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}
