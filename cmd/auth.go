package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/server"
	"github.com/desertthunder/genrify/internal/services"
	"github.com/desertthunder/genrify/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const authTimeout = 2 * time.Minute

// authenticator is the part of [services.SpotifyService] used by the login flow.
type authenticator interface {
	GetAuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	CurrentUser(ctx context.Context, token string) (*services.SpotifyUser, error)
}

// AuthLogin performs the OAuth2 authorization code flow and stores the user.
//
// Starts a local HTTP server, opens the browser for user authorization, and exchanges the code for tokens.
// First logins also create default settings.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	library, err := r.musicService()
	if err != nil {
		return err
	}
	auth, ok := library.(authenticator)
	if !ok {
		return fmt.Errorf("%w: %s does not support authorization", shared.ErrServiceUnavailable, library.Name())
	}
	if err := r.stores(); err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, auth)
	if err != nil {
		return err
	}

	profile, err := auth.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to load Spotify profile: %w", err)
	}

	user, created, err := r.saveUser(ctx, profile, token)
	if err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("  Spotify user: %s (%s)\n", displayName(profile), profile.ID)
	r.writePlain("  Local user ID: %d\n", user.ID)
	if created {
		r.writePlain("  Default settings created\n")
	}
	if user.ID != 1 {
		r.writePlain("\nPass --user %d (or set GENRIFY_USER) to act as this user.\n", user.ID)
	}
	r.writePlain("\nYou can now use: genrify process start\n")
	return nil
}

// saveUser creates the user and default settings on first login and refreshes tokens and profile otherwise.
func (r *Runner) saveUser(ctx context.Context, profile *services.SpotifyUser, token *oauth2.Token) (*models.User, bool, error) {
	existing, err := r.users.GetBySpotifyID(ctx, profile.ID)
	switch {
	case err == nil:
		existing.DisplayName = displayName(profile)
		existing.Email = profile.Email
		existing.ProfileImage = profile.ImageURL()
		services.ApplyToken(existing, token)

		user, err := r.users.Update(ctx, existing)
		if err != nil {
			return nil, false, fmt.Errorf("failed to update user: %w", err)
		}
		r.logger.Info("updated user tokens", "user", user.ID)
		return user, false, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up user: %w", err)
	}

	user := &models.User{
		SpotifyID:    profile.ID,
		DisplayName:  displayName(profile),
		Email:        profile.Email,
		ProfileImage: profile.ImageURL(),
	}
	services.ApplyToken(user, token)

	user, err = r.users.Create(ctx, user)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}
	if _, err := r.settings.Create(ctx, models.DefaultSettings(user.ID)); err != nil {
		return nil, false, fmt.Errorf("failed to create default settings: %w", err)
	}
	r.logger.Info("created user", "user", user.ID, "spotify_id", profile.ID)
	return user, true, nil
}

// AuthStatus prints the stored user and whether its token is still valid.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(ctx, cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}

	r.writePlain("User: %s (%s)\n", user.DisplayName, user.SpotifyID)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	switch {
	case !user.HasToken():
		r.writePlain("Token: ✗ Not authenticated\n")
	case user.TokenExpiry.IsZero() || time.Now().Before(user.TokenExpiry):
		r.writePlain("Token: ✓ Valid\n")
	case user.RefreshToken != "":
		r.writePlain("Token: expired, will refresh on next use\n")
	default:
		r.writePlain("Token: ✗ Expired, run 'genrify auth login'\n")
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, auth authenticator) (*oauth2.Token, error) {
	state := shared.GenerateState()

	path := server.DefaultCallbackPath
	if u, err := url.Parse(r.config.Credentials.Spotify.RedirectURI); err == nil && u.Path != "" {
		path = u.Path
	}

	oauthHandler := server.NewOAuthHandler(auth, state, path)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(oauthHandler)

	srv, err := server.Serve(r.config.Server.Addr(), router)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()
	r.logger.Infof("started OAuth callback server at %v", srv.Addr())

	authURL := auth.GetAuthURL(state)
	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := r.browser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-srv.Errors():
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, authTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}

func displayName(u *services.SpotifyUser) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}
