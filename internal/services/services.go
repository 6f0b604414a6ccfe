// package services defines the MusicService interface for the Spotify Web API
package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
)

// Batch sizes accepted by the Spotify Web API.
const (
	LookupBatchSize = 50  // ids per /audio-features or /artists request
	AddBatchSize    = 100 // uris per playlist add request
	PageSize        = 50  // items per saved-tracks page
)

// MusicService is the catalog and library surface used by a processing run.
//
// Every call takes the bearer token to use; token refresh happens before the call.
type MusicService interface {
	// LikedTracks returns every saved track, following the next-page cursor until the last page.
	LikedTracks(ctx context.Context, token string) ([]models.Track, error)

	// AudioFeatures looks up features in batches of [LookupBatchSize]. Tracks Spotify cannot
	// analyze are dropped, the rest keep input order and carry their track ID.
	AudioFeatures(ctx context.Context, token string, trackIDs []string) ([]models.AudioFeatures, error)

	// ArtistGenres returns genre tags keyed by artist ID. IDs are de-duplicated before batching.
	ArtistGenres(ctx context.Context, token string, artistIDs []string) (map[string][]string, error)

	// CreatePlaylist creates a playlist owned by ownerID.
	CreatePlaylist(ctx context.Context, token, ownerID, name, description string, public bool) (*models.Playlist, error)

	// AddTracksToPlaylist adds uris in batches of [AddBatchSize]. Any failed batch fails the call.
	AddTracksToPlaylist(ctx context.Context, token, playlistID string, uris []string) error

	// CurrentUser returns the profile that owns token.
	CurrentUser(ctx context.Context, token string) (*SpotifyUser, error)

	// Name returns the name of the service
	Name() string
}

// ServiceError is a non-success response from the Spotify Web API.
//
// It matches [shared.ErrAPIRequest] with [errors.Is], and also [shared.ErrTokenExpired] for 401s.
type ServiceError struct {
	StatusCode int
	Message    string
	Method     string
	Endpoint   string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Is(target error) bool {
	switch target {
	case shared.ErrAPIRequest:
		return true
	case shared.ErrTokenExpired:
		return e.StatusCode == http.StatusUnauthorized
	default:
		return false
	}
}

// LibraryStats holds counts shown by the stats command.
type LibraryStats struct {
	LikedSongs int `json:"likedSongs"`
	Playlists  int `json:"playlists"`
}
