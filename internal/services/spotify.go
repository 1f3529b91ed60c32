// Spotify API implementation of [Provider]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/oauth2"

	"github.com/desertthunder/spc/internal/models"
	"github.com/desertthunder/spc/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// MaxRemoveBatch is the most URIs Spotify accepts in one removal request.
	MaxRemoveBatch = 100
)

// SpotifyUserRef identifies the user who added a playlist entry.
type SpotifyUserRef struct {
	ID string `json:"id"`
}

// SpotifyTrackRef is the part of a track object the cleanup reads. Local or unavailable tracks may have no URI.
type SpotifyTrackRef struct {
	URI string `json:"uri"`
}

// SpotifyPlaylistItem represents a track within a playlist context.
type SpotifyPlaylistItem struct {
	AddedBy *SpotifyUserRef  `json:"added_by"`
	Track   *SpotifyTrackRef `json:"track"`
}

// SpotifyPlaylistItems represents a page of playlist items.
type SpotifyPlaylistItems struct {
	Items  []SpotifyPlaylistItem `json:"items"`
	Total  int                   `json:"total"`
	Offset int                   `json:"offset"`
}

type spotifyURI struct {
	URI string `json:"uri"`
}

type spotifyRemoveRequest struct {
	Tracks []spotifyURI `json:"tracks"`
}

type spotifyError struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements [Provider] and [OAuthService] for the Spotify Web API.
type SpotifyService struct {
	config     *oauth2.Config
	httpClient *http.Client
	baseURL    string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id in credentials", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret in credentials", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}, nil
}

// SetHTTPClient replaces the client used for Web API and token requests.
func (s *SpotifyService) SetHTTPClient(c *http.Client) {
	if c != nil {
		s.httpClient = c
	}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the OAuth2 configuration.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

// Exchange trades an authorization code for an access and refresh token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// RefreshAccessToken runs the refresh-token grant.
func (s *SpotifyService) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	src := s.config.TokenSource(s.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return token, nil
}

// oauthContext makes the oauth2 package use the service's HTTP client.
func (s *SpotifyService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// Playlists returns a [PlaylistAPI] authorized with accessToken.
func (s *SpotifyService) Playlists(accessToken string) PlaylistAPI {
	return &spotifyPlaylists{svc: s, token: accessToken}
}

// doRequest performs an HTTP request to the Spotify API with the given bearer token.
func (s *SpotifyService) doRequest(ctx context.Context, token, method, endpoint string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := http.StatusText(resp.StatusCode)
	var apiErr spotifyError
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil && json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrTokenExpired, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: retry after %ss", shared.ErrRateLimited, resp.Header.Get("Retry-After"))
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", shared.ErrServiceUnavailable, msg)
	default:
		return fmt.Errorf("%w: spotify status %d: %s", shared.ErrAPIRequest, resp.StatusCode, msg)
	}
}

type spotifyPlaylists struct {
	svc   *SpotifyService
	token string
}

// TrackTotal requests a single item so the response stays small.
func (p *spotifyPlaylists) TrackTotal(ctx context.Context, playlistID string) (int, error) {
	q := url.Values{}
	q.Set("limit", "1")
	q.Set("fields", "total")

	var resp SpotifyPlaylistItems
	if err := p.svc.doRequest(ctx, p.token, http.MethodGet, tracksEndpoint(playlistID, q), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

func (p *spotifyPlaylists) TrackPage(ctx context.Context, playlistID string, offset, limit int) (*models.TrackPage, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", "total,items(added_by.id,track.uri)")

	var resp SpotifyPlaylistItems
	if err := p.svc.doRequest(ctx, p.token, http.MethodGet, tracksEndpoint(playlistID, q), nil, &resp); err != nil {
		return nil, err
	}

	page := &models.TrackPage{Total: resp.Total, Offset: offset, Items: make([]models.TrackItem, 0, len(resp.Items))}
	for _, item := range resp.Items {
		var ti models.TrackItem
		if item.Track != nil {
			ti.URI = item.Track.URI
		}
		if item.AddedBy != nil {
			ti.AddedBy = item.AddedBy.ID
		}
		page.Items = append(page.Items, ti)
	}
	return page, nil
}

// RemoveTracks sends the URIs in batches of [MaxRemoveBatch], stopping at the first failed batch.
func (p *spotifyPlaylists) RemoveTracks(ctx context.Context, playlistID string, uris []string) (int, error) {
	for start := 0; start < len(uris); start += MaxRemoveBatch {
		end := min(start+MaxRemoveBatch, len(uris))

		body := spotifyRemoveRequest{Tracks: make([]spotifyURI, 0, end-start)}
		for _, u := range uris[start:end] {
			body.Tracks = append(body.Tracks, spotifyURI{URI: u})
		}

		if err := p.svc.doRequest(ctx, p.token, http.MethodDelete, tracksEndpoint(playlistID, nil), body, nil); err != nil {
			return start, fmt.Errorf("failed to remove tracks %d-%d: %w", start, end, err)
		}
	}
	return len(uris), nil
}

func tracksEndpoint(playlistID string, q url.Values) string {
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	return endpoint
}
