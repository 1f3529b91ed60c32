// Package services talks to the music provider and to a running spc server.
//
// # Provider Interface
//
// The cleanup job only needs three playlist operations (count, page, remove) plus a
// refresh-token grant, captured by [Provider] and [PlaylistAPI]. A [PlaylistAPI] is bound
// to one access token so that each cleanup run uses the token read from the vault.
//
// # Spotify Implementation
//
// [SpotifyService] implements [Provider] and [OAuthService] against the Spotify Web API.
// Authorization uses golang.org/x/oauth2; the refresh grant runs through
// [oauth2.Config.TokenSource] with an expired token so the library performs the exchange.
//
// # spc API Client
//
// [APIService] is the HTTP client the CLI uses against `spc serve`, so the server stays the
// only writer of counters and instances.
//
// # Error Handling
//
// Services use sentinel errors from the shared package:
//   - [shared.ErrTokenExpired] : the access token was rejected (401)
//   - [shared.ErrRateLimited] : the provider returned 429
//   - [shared.ErrPlaylistNotFound] : the playlist id does not exist (404)
//   - [shared.ErrAPIRequest] : any other non-2xx response
//   - [shared.ErrRefreshFailed] : the refresh-token grant failed
package services
