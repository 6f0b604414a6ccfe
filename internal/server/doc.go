// Package server provides the HTTP plumbing for the CLI login flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
// [Middleware] wraps handlers in reverse order (last added executes first).
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter, exchanges the authorization code for tokens
// and sends the result through a channel. It only processes one callback.
//
// When the user runs `genrify auth`, [Serve] binds the redirect URI's host, the browser is sent to
// Spotify's consent page and the server shuts down after the callback arrives.
package server
