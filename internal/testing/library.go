package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/services"
)

// CreatePlaylistCall records one [MockLibrary.CreatePlaylist] call.
type CreatePlaylistCall struct {
	Owner       string
	Name        string
	Description string
	Public      bool
}

// MockLibrary is a test double for [services.MusicService].
//
// Features and Genres are keyed by track and artist ID. Tracks without an entry in Features are
// treated as tracks Spotify could not analyze. The *At fields fail the n-th call (1-based).
type MockLibrary struct {
	Tracks   []models.Track
	Features map[string]models.AudioFeatures
	Genres   map[string][]string
	User     *services.SpotifyUser

	LikedErr    error
	FeaturesErr error
	GenresErr   error
	UserErr     error
	CreateErr   error
	CreateErrAt int
	AddErr      error
	AddErrAt    int
	PanicOn     string // method name that panics

	// Gate blocks LikedTracks until it is closed.
	Gate chan struct{}

	mu          sync.Mutex
	calls       []string
	tokens      []string
	created     []CreatePlaylistCall
	added       map[string][]string
	featureIDs  []string
	artistIDs   []string
	createCount int
	addCount    int
}

func (m *MockLibrary) record(method, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
	m.tokens = append(m.tokens, token)
	if m.PanicOn == method {
		panic(fmt.Sprintf("mock %s panic", method))
	}
}

func (m *MockLibrary) Name() string { return "mock" }

func (m *MockLibrary) LikedTracks(ctx context.Context, token string) ([]models.Track, error) {
	m.record("LikedTracks", token)
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.LikedErr != nil {
		return nil, m.LikedErr
	}

	tracks := make([]models.Track, 0, len(m.Tracks))
	for _, t := range m.Tracks {
		t.Artists = slices.Clone(t.Artists)
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (m *MockLibrary) AudioFeatures(_ context.Context, token string, trackIDs []string) ([]models.AudioFeatures, error) {
	m.record("AudioFeatures", token)
	m.mu.Lock()
	m.featureIDs = append(m.featureIDs, trackIDs...)
	m.mu.Unlock()
	if m.FeaturesErr != nil {
		return nil, m.FeaturesErr
	}

	features := make([]models.AudioFeatures, 0, len(trackIDs))
	for _, id := range trackIDs {
		if f, ok := m.Features[id]; ok {
			f.ID = id
			features = append(features, f)
		}
	}
	return features, nil
}

func (m *MockLibrary) ArtistGenres(_ context.Context, token string, artistIDs []string) (map[string][]string, error) {
	m.record("ArtistGenres", token)
	m.mu.Lock()
	m.artistIDs = append(m.artistIDs, artistIDs...)
	m.mu.Unlock()
	if m.GenresErr != nil {
		return nil, m.GenresErr
	}

	out := make(map[string][]string)
	for _, id := range artistIDs {
		if g, ok := m.Genres[id]; ok {
			out[id] = g
		}
	}
	return out, nil
}

func (m *MockLibrary) CreatePlaylist(_ context.Context, token, ownerID, name, description string, public bool) (*models.Playlist, error) {
	m.record("CreatePlaylist", token)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCount++
	if m.CreateErr != nil && (m.CreateErrAt == 0 || m.CreateErrAt == m.createCount) {
		return nil, m.CreateErr
	}

	m.created = append(m.created, CreatePlaylistCall{Owner: ownerID, Name: name, Description: description, Public: public})
	id := fmt.Sprintf("playlist-%d", m.createCount)
	return &models.Playlist{ID: id, Name: name, URL: "https://open.spotify.com/playlist/" + id}, nil
}

func (m *MockLibrary) AddTracksToPlaylist(_ context.Context, token, playlistID string, uris []string) error {
	m.record("AddTracksToPlaylist", token)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addCount++
	if m.AddErr != nil && (m.AddErrAt == 0 || m.AddErrAt == m.addCount) {
		return m.AddErr
	}
	if m.added == nil {
		m.added = make(map[string][]string)
	}
	m.added[playlistID] = append(m.added[playlistID], uris...)
	return nil
}

func (m *MockLibrary) CurrentUser(_ context.Context, token string) (*services.SpotifyUser, error) {
	m.record("CurrentUser", token)
	if m.UserErr != nil {
		return nil, m.UserErr
	}
	if m.User == nil {
		return &services.SpotifyUser{ID: "mock-user"}, nil
	}
	return m.User, nil
}

// Calls returns the method names called so far, in order.
func (m *MockLibrary) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// Tokens returns the bearer token passed to each call, in call order.
func (m *MockLibrary) Tokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tokens)
}

// Created returns the successful CreatePlaylist calls.
func (m *MockLibrary) Created() []CreatePlaylistCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.created)
}

// Added returns the URIs added to playlistID.
func (m *MockLibrary) Added(playlistID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.added[playlistID])
}

// FeatureIDs returns the track IDs passed to AudioFeatures.
func (m *MockLibrary) FeatureIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.featureIDs)
}

// ArtistIDs returns the artist IDs passed to ArtistGenres.
func (m *MockLibrary) ArtistIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.artistIDs)
}

// Count returns how many times method was called.
func (m *MockLibrary) Count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

var _ services.MusicService = (*MockLibrary)(nil)
