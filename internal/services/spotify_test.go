package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/spc/internal/shared"
)

func newTestSpotify(t *testing.T, h http.Handler) *SpotifyService {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	srv, err := NewSpotifyService(map[string]string{
		"client_id":     "test_client_id",
		"client_secret": "test_client_secret",
		"redirect_uri":  "http://127.0.0.1:3000/callback",
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	srv.baseURL = server.URL
	srv.config.Endpoint.TokenURL = server.URL + "/api/token"
	return srv
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewSpotifyService(map[string]string{
				"client_id":     "test_client_id",
				"client_secret": "test_client_secret",
				"redirect_uri":  "https://example.com/callback",
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
			if srv.GetOAuthConfig().RedirectURL != "https://example.com/callback" {
				t.Errorf("unexpected redirect URI %s", srv.GetOAuthConfig().RedirectURL)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_secret": "s"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(map[string]string{"client_id": "id"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			srv, err := NewSpotifyService(map[string]string{"client_id": "id", "client_secret": "s"})
			if err != nil {
				t.Fatal(err)
			}
			if srv.config.RedirectURL != "http://127.0.0.1:3000/callback" {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})
	})

	t.Run("Get AuthURL", func(t *testing.T) {
		srv, _ := NewSpotifyService(map[string]string{"client_id": "test_client_id", "client_secret": "s"})

		authURL := srv.GetAuthURL("S1")
		for _, want := range []string{"accounts.spotify.com", "state=S1", "client_id=test_client_id", "playlist-modify-public"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL %s missing %s", authURL, want)
			}
		}
	})

	t.Run("TrackTotal", func(t *testing.T) {
		srv := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/playlists/P1/tracks" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("fields") != "total" || r.URL.Query().Get("limit") != "1" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
			}
			fmt.Fprint(w, `{"total": 250}`)
		}))

		total, err := srv.Playlists("tok").TrackTotal(context.Background(), "P1")
		if err != nil {
			t.Fatalf("TrackTotal() error = %v", err)
		}
		if total != 250 {
			t.Errorf("TrackTotal() = %d, want 250", total)
		}
	})

	t.Run("TrackPage", func(t *testing.T) {
		srv := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("offset") != "100" || q.Get("limit") != "100" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			fmt.Fprint(w, `{
				"total": 102,
				"items": [
					{"added_by": {"id": "u1"}, "track": {"uri": "spotify:track:a"}},
					{"added_by": {"id": "u2"}, "track": null}
				]
			}`)
		}))

		page, err := srv.Playlists("tok").TrackPage(context.Background(), "P1", 100, 100)
		if err != nil {
			t.Fatalf("TrackPage() error = %v", err)
		}
		if page.Offset != 100 || page.Total != 102 || len(page.Items) != 2 {
			t.Fatalf("unexpected page %+v", page)
		}
		if page.Items[0].URI != "spotify:track:a" || page.Items[0].AddedBy != "u1" {
			t.Errorf("unexpected first item %+v", page.Items[0])
		}
		if page.Items[1].URI != "" || page.Items[1].AddedBy != "u2" {
			t.Errorf("missing track should map to empty URI, got %+v", page.Items[1])
		}
	})

	t.Run("RemoveTracks Batches", func(t *testing.T) {
		var (
			mu      sync.Mutex
			batches []int
		)
		srv := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				t.Errorf("expected DELETE, got %s", r.Method)
			}
			var body spotifyRemoveRequest
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad body: %v", err)
			}
			mu.Lock()
			batches = append(batches, len(body.Tracks))
			mu.Unlock()
			fmt.Fprint(w, `{"snapshot_id": "x"}`)
		}))

		uris := make([]string, 230)
		for i := range uris {
			uris[i] = fmt.Sprintf("spotify:track:%d", i)
		}

		n, err := srv.Playlists("tok").RemoveTracks(context.Background(), "P1", uris)
		if err != nil {
			t.Fatalf("RemoveTracks() error = %v", err)
		}
		if n != 230 {
			t.Errorf("RemoveTracks() removed %d, want 230", n)
		}
		if len(batches) != 3 || batches[0] != 100 || batches[1] != 100 || batches[2] != 30 {
			t.Errorf("unexpected batches %v", batches)
		}
	})

	t.Run("RemoveTracks Reports Partial Progress", func(t *testing.T) {
		var (
			mu    sync.Mutex
			calls int
		)
		srv := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			calls++
			n := calls
			mu.Unlock()
			if n == 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"error": {"status": 503, "message": "unavailable"}}`)
				return
			}
			fmt.Fprint(w, `{"snapshot_id": "x"}`)
		}))

		uris := make([]string, 150)
		for i := range uris {
			uris[i] = fmt.Sprintf("spotify:track:%d", i)
		}

		n, err := srv.Playlists("tok").RemoveTracks(context.Background(), "P1", uris)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("expected ErrServiceUnavailable, got %v", err)
		}
		if n != 100 {
			t.Errorf("RemoveTracks() removed %d, want 100 before the failed batch", n)
		}
	})

	t.Run("Error Mapping", func(t *testing.T) {
		tc := []struct {
			status int
			want   error
		}{
			{http.StatusUnauthorized, shared.ErrTokenExpired},
			{http.StatusNotFound, shared.ErrPlaylistNotFound},
			{http.StatusTooManyRequests, shared.ErrRateLimited},
			{http.StatusServiceUnavailable, shared.ErrServiceUnavailable},
			{http.StatusBadGateway, shared.ErrAPIRequest},
		}

		for _, tt := range tc {
			t.Run(http.StatusText(tt.status), func(t *testing.T) {
				srv := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Retry-After", "3")
					w.WriteHeader(tt.status)
					fmt.Fprintf(w, `{"error": {"status": %d, "message": "nope"}}`, tt.status)
				}))

				_, err := srv.Playlists("tok").TrackTotal(context.Background(), "P1")
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("RefreshAccessToken", func(t *testing.T) {
		srv := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/token" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if err := r.ParseForm(); err != nil {
				t.Errorf("bad form: %v", err)
			}
			if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "rt-1" {
				t.Errorf("unexpected form %v", r.Form)
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at-2","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-2"}`)
		}))

		token, err := srv.RefreshAccessToken(context.Background(), "rt-1")
		if err != nil {
			t.Fatalf("RefreshAccessToken() error = %v", err)
		}
		if token.AccessToken != "at-2" || token.RefreshToken != "rt-2" {
			t.Errorf("unexpected token %+v", token)
		}
	})

	t.Run("RefreshAccessToken Failure", func(t *testing.T) {
		srv := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
		}))

		if _, err := srv.RefreshAccessToken(context.Background(), "rt-1"); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
		if _, err := srv.RefreshAccessToken(context.Background(), ""); !errors.Is(err, shared.ErrNoRefreshToken) {
			t.Errorf("expected ErrNoRefreshToken, got %v", err)
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		srv := newTestSpotify(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = r.ParseForm()
			if r.Form.Get("code") != "abc" {
				t.Errorf("unexpected code %q", r.Form.Get("code"))
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","token_type":"Bearer","expires_in":3600,"refresh_token":"rt"}`)
		}))

		token, err := srv.Exchange(context.Background(), "abc")
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}
		if token.RefreshToken != "rt" {
			t.Errorf("expected refresh token rt, got %q", token.RefreshToken)
		}
	})
}
