package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
	"golang.org/x/oauth2"
)

// TokenProvider supplies a valid bearer token for a user.
type TokenProvider interface {
	AccessToken(ctx context.Context, user *models.User) (string, error)
}

// StaticTokenProvider returns the same token for every user.
type StaticTokenProvider string

func (p StaticTokenProvider) AccessToken(context.Context, *models.User) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty static token", shared.ErrNotAuthenticated)
	}
	return string(p), nil
}

// OAuthTokenProvider refreshes stored user tokens through [oauth2.Config] and writes refreshed
// tokens back to the user store.
type OAuthTokenProvider struct {
	config *oauth2.Config
	users  models.UserStore
	logger *log.Logger
}

// NewOAuthTokenProvider creates a provider that persists refreshed tokens to users.
func NewOAuthTokenProvider(config *oauth2.Config, users models.UserStore, logger *log.Logger) *OAuthTokenProvider {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &OAuthTokenProvider{config: config, users: users, logger: logger}
}

// AccessToken returns the user's access token, refreshing it first when it has expired.
func (p *OAuthTokenProvider) AccessToken(ctx context.Context, user *models.User) (string, error) {
	if user == nil || !user.HasToken() {
		return "", fmt.Errorf("%w: user has no stored token", shared.ErrNotAuthenticated)
	}

	if seed := UserToken(user); !seed.Valid() && seed.RefreshToken == "" {
		return "", fmt.Errorf("%w: stored token for user %d has expired", shared.ErrNoRefreshToken, user.ID)
	}

	token, err := p.TokenSource(ctx, user).Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return token.AccessToken, nil
}

// TokenSource returns a source seeded from the user's stored token. A refreshed token is saved
// to the user store before it is handed out.
func (p *OAuthTokenProvider) TokenSource(ctx context.Context, user *models.User) oauth2.TokenSource {
	seed := UserToken(user)
	owner := *user

	return &refreshableTokenSource{
		source: p.config.TokenSource(ctx, seed),
		last:   seed.AccessToken,
		callback: func(token *oauth2.Token) {
			ApplyToken(&owner, token)
			if _, err := p.users.Update(ctx, &owner); err != nil {
				p.logger.Warn("failed to persist refreshed token", "user", owner.ID, "error", err)
				return
			}
			p.logger.Debug("refreshed access token", "user", owner.ID, "expiry", token.Expiry)
		},
	}
}

// UserToken converts the user's stored credentials into an [oauth2.Token].
func UserToken(user *models.User) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       user.TokenExpiry,
	}
}

// ApplyToken copies token into the user. An empty refresh token keeps the stored one.
func ApplyToken(user *models.User, token *oauth2.Token) {
	user.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		user.RefreshToken = token.RefreshToken
	}
	user.TokenExpiry = token.Expiry
}

// refreshableTokenSource wraps an [oauth2.TokenSource] and calls callback whenever the access token changes.
type refreshableTokenSource struct {
	source   oauth2.TokenSource
	callback func(*oauth2.Token)
	mu       sync.Mutex
	last     string
}

func (r *refreshableTokenSource) Token() (*oauth2.Token, error) {
	token, err := r.source.Token()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	changed := token.AccessToken != r.last
	r.last = token.AccessToken
	r.mu.Unlock()

	if changed && r.callback != nil {
		r.callback(token)
	}
	return token, nil
}
