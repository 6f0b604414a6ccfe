package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/desertthunder/genrify/internal/models"
)

// SavedTracks retrieves one page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, token string, limit, offset int) (*SpotifyPaginatedTracks, error) {
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, PageSize)

	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", limit, offset)
	return s.savedTracksPage(ctx, token, endpoint)
}

func (s *SpotifyService) savedTracksPage(ctx context.Context, token, endpoint string) (*SpotifyPaginatedTracks, error) {
	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, token, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// LikedTracks retrieves all of the user's saved tracks by following each page's next cursor.
//
// Items without a playable track (removed or local files) are skipped.
func (s *SpotifyService) LikedTracks(ctx context.Context, token string) ([]models.Track, error) {
	var tracks []models.Track
	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=0", PageSize)
	pages := 0

	for {
		page, err := s.savedTracksPage(ctx, token, endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch liked songs: %w", err)
		}
		pages++

		if tracks == nil {
			tracks = make([]models.Track, 0, page.Total)
		}
		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" || item.Track.IsLocal {
				continue
			}
			tracks = append(tracks, toTrack(*item.Track))
		}

		if page.Next == nil || *page.Next == "" {
			break
		}
		endpoint = *page.Next
	}

	s.logger.Debug("fetched liked songs", "tracks", len(tracks), "pages", pages)
	if tracks == nil {
		tracks = []models.Track{}
	}
	return tracks, nil
}

// AudioFeatures retrieves audio features for trackIDs in batches of [LookupBatchSize].
//
// Null entries are dropped. Surviving entries keep batch and intra-batch order and carry the
// track ID so callers attach them by ID.
func (s *SpotifyService) AudioFeatures(ctx context.Context, token string, trackIDs []string) ([]models.AudioFeatures, error) {
	features := make([]models.AudioFeatures, 0, len(trackIDs))

	for batch := range slices.Chunk(trackIDs, LookupBatchSize) {
		var response struct {
			AudioFeatures []*SpotifyAudioFeatures `json:"audio_features"`
		}

		endpoint := "/audio-features?" + idsQuery(batch)
		if err := s.doRequest(ctx, token, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, fmt.Errorf("failed to fetch audio features: %w", err)
		}

		for _, f := range response.AudioFeatures {
			if f == nil || f.ID == "" {
				continue
			}
			features = append(features, toAudioFeatures(*f))
		}
	}

	return features, nil
}

// ArtistGenres retrieves genre tags for the given artists, keyed by artist ID.
//
// IDs are de-duplicated in first-seen order before batching, so an artist on many tracks is fetched once.
func (s *SpotifyService) ArtistGenres(ctx context.Context, token string, artistIDs []string) (map[string][]string, error) {
	unique := dedupe(artistIDs)
	genres := make(map[string][]string, len(unique))

	for batch := range slices.Chunk(unique, LookupBatchSize) {
		var response struct {
			Artists []*SpotifyArtist `json:"artists"`
		}

		endpoint := "/artists?" + idsQuery(batch)
		if err := s.doRequest(ctx, token, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, fmt.Errorf("failed to fetch artist genres: %w", err)
		}

		for _, a := range response.Artists {
			if a == nil || a.ID == "" {
				continue
			}
			tags := slices.Clone(a.Genres)
			if tags == nil {
				tags = []string{}
			}
			genres[a.ID] = tags
		}
	}

	return genres, nil
}

// CurrentUser retrieves the profile of the user that owns token.
func (s *SpotifyService) CurrentUser(ctx context.Context, token string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, token, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return &user, nil
}

// Stats reads the liked song and playlist totals with single-item pages.
func (s *SpotifyService) Stats(ctx context.Context, token string) (*LibraryStats, error) {
	var liked, playlists pageTotal

	if err := s.doRequest(ctx, token, http.MethodGet, "/me/tracks?limit=1", nil, &liked); err != nil {
		return nil, fmt.Errorf("failed to get liked songs: %w", err)
	}
	if err := s.doRequest(ctx, token, http.MethodGet, "/me/playlists?limit=1", nil, &playlists); err != nil {
		return nil, fmt.Errorf("failed to get playlists: %w", err)
	}

	return &LibraryStats{LikedSongs: liked.Total, Playlists: playlists.Total}, nil
}

func toTrack(st SpotifyTrack) models.Track {
	artists := make([]models.Artist, 0, len(st.Artists))
	for _, a := range st.Artists {
		artists = append(artists, models.Artist{ID: a.ID, Name: a.Name})
	}
	return models.Track{ID: st.ID, Name: st.Name, Artists: artists, URI: st.URI}
}

func toAudioFeatures(f SpotifyAudioFeatures) models.AudioFeatures {
	return models.AudioFeatures{
		ID:               f.ID,
		Acousticness:     f.Acousticness,
		Danceability:     f.Danceability,
		Energy:           f.Energy,
		Instrumentalness: f.Instrumentalness,
		Liveness:         f.Liveness,
		Loudness:         f.Loudness,
		Speechiness:      f.Speechiness,
		Valence:          f.Valence,
		Tempo:            f.Tempo,
	}
}

// idsQuery builds an ids parameter with literal comma separators. Each ID is escaped on its own.
func idsQuery(ids []string) string {
	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.QueryEscape(id)
	}
	return "ids=" + strings.Join(escaped, ",")
}

// dedupe drops empty and repeated IDs, keeping the first occurrence.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
