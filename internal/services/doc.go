// Package services implements [MusicService] for the Spotify Web API.
//
// # Spotify Implementation
//
// [SpotifyService] is stateless with respect to users: every call is handed a bearer token.
// Requests wait on a [rate.Limiter] and run under a per-request timeout.
//
// Reads:
//   - [SpotifyService.LikedTracks] follows the saved-tracks next cursor until the last page
//   - [SpotifyService.AudioFeatures] and [SpotifyService.ArtistGenres] batch ids by [LookupBatchSize]
//
// Writes:
//   - [SpotifyService.CreatePlaylist] creates a non-collaborative playlist
//   - [SpotifyService.AddTracksToPlaylist] batches uris by [AddBatchSize]
//
// # Tokens
//
// [OAuthTokenProvider] turns a stored [models.User] into a valid access token, refreshing it
// through golang.org/x/oauth2 and saving refreshed tokens back to the user store.
//
// # Error Handling
//
// Nothing is retried. Failures surface as:
//   - [*ServiceError] : non-2xx response, matches [shared.ErrAPIRequest] (and [shared.ErrTokenExpired] on 401)
//   - [shared.ErrTimeout] : the per-request deadline passed
//   - [shared.ErrAPIRequest] : transport or decoding failure
//   - [shared.ErrNotAuthenticated] : no token was supplied
package services
