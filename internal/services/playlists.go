package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
)

type createPlaylistRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Public        bool   `json:"public"`
	Collaborative bool   `json:"collaborative"`
}

type addTracksRequest struct {
	URIs []string `json:"uris"`
}

// CreatePlaylist creates a non-collaborative playlist on ownerID's account.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, token, ownerID, name, description string, public bool) (*models.Playlist, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: playlist owner is required", shared.ErrInvalidArgument)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", shared.ErrInvalidArgument)
	}

	body := createPlaylistRequest{Name: name, Description: description, Public: public}
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(ownerID))

	var created SpotifyPlaylist
	if err := s.doRequest(ctx, token, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	return &models.Playlist{
		ID:   created.ID,
		Name: created.Name,
		URL:  created.ExternalURLs["spotify"],
	}, nil
}

// AddTracksToPlaylist adds uris to a playlist in batches of [AddBatchSize].
//
// Batches are sent in order and the first failure aborts the call. Batches already sent are not rolled back.
func (s *SpotifyService) AddTracksToPlaylist(ctx context.Context, token, playlistID string, uris []string) error {
	if playlistID == "" {
		return fmt.Errorf("%w: playlist id is required", shared.ErrInvalidArgument)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	total := (len(uris) + AddBatchSize - 1) / AddBatchSize
	n := 0

	for batch := range slices.Chunk(uris, AddBatchSize) {
		n++
		if err := s.doRequest(ctx, token, http.MethodPost, endpoint, addTracksRequest{URIs: batch}, nil); err != nil {
			return fmt.Errorf("failed to add tracks to playlist (batch %d of %d): %w", n, total, err)
		}
	}

	return nil
}
