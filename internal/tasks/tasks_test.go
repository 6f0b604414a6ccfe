package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/repositories"
	"github.com/desertthunder/genrify/internal/services"
	"github.com/desertthunder/genrify/internal/shared"
	th "github.com/desertthunder/genrify/internal/testing"
)

var (
	popFeatures  = models.AudioFeatures{Energy: 0.5, Danceability: 0.5, Acousticness: 0.1, Valence: 0.9}
	rockFeatures = models.AudioFeatures{Energy: 0.9, Danceability: 0.3, Acousticness: 0.1}
	altFeatures  = models.AudioFeatures{Energy: 0.3, Danceability: 0.3, Acousticness: 0.3, Valence: 0.3}
)

type fixture struct {
	store    *repositories.MemoryStore
	library  *th.MockLibrary
	engine   *GenreEngine
	user     *models.User
	progress chan ProgressUpdate
}

type fixtureOpts struct {
	spotifyID string
	settings  models.SettingsPatch
	tokens    services.TokenProvider
}

func newFixture(t *testing.T, library *th.MockLibrary, opts fixtureOpts) *fixture {
	t.Helper()
	ctx := context.Background()

	store := repositories.NewMemoryStore()
	user, err := store.Users().Create(ctx, &models.User{SpotifyID: opts.spotifyID, AccessToken: "stored"})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if _, err := store.Settings().Create(ctx, models.DefaultSettings(user.ID)); err != nil {
		t.Fatalf("failed to create settings: %v", err)
	}
	if !opts.settings.Empty() {
		if _, err := store.Settings().Update(ctx, user.ID, opts.settings); err != nil {
			t.Fatalf("failed to update settings: %v", err)
		}
	}

	tokens := opts.tokens
	if tokens == nil {
		tokens = services.StaticTokenProvider("token")
	}

	progress := make(chan ProgressUpdate, 256)
	engine, err := NewGenreEngine(EngineOpts{
		Library:    library,
		Users:      store.Users(),
		Settings:   store.Settings(),
		Jobs:       store.Jobs(),
		Tokens:     tokens,
		Logger:     shared.NewLogger(io.Discard),
		Progress:   progress,
		Confidence: func() float64 { return 90 },
	})
	if err != nil {
		t.Fatalf("NewGenreEngine() error = %v", err)
	}
	return &fixture{store: store, library: library, engine: engine, user: user, progress: progress}
}

// run starts a job for the fixture's user and waits for it to finish.
func (f *fixture) run(t *testing.T) *models.ProcessingJob {
	t.Helper()
	if _, err := f.engine.Start(context.Background(), f.user.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.engine.Wait()

	job, err := f.engine.Status(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return job
}

func (f *fixture) updates() []ProgressUpdate {
	var out []ProgressUpdate
	for {
		select {
		case u := <-f.progress:
			out = append(out, u)
		default:
			return out
		}
	}
}

// sharedEngine builds a second engine over the fixture's store, the way another CLI process would.
func (f *fixture) sharedEngine(t *testing.T, library *th.MockLibrary, staleAfter time.Duration) *GenreEngine {
	t.Helper()
	engine, err := NewGenreEngine(EngineOpts{
		Library:    library,
		Users:      f.store.Users(),
		Settings:   f.store.Settings(),
		Jobs:       f.store.Jobs(),
		Tokens:     services.StaticTokenProvider("other"),
		Logger:     shared.NewLogger(io.Discard),
		Confidence: func() float64 { return 90 },
		StaleAfter: staleAfter,
	})
	if err != nil {
		t.Fatalf("NewGenreEngine() error = %v", err)
	}
	return engine
}

// rotatingTokens hands out a new token on every call.
type rotatingTokens struct {
	mu sync.Mutex
	n  int
}

func (p *rotatingTokens) AccessToken(context.Context, *models.User) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return fmt.Sprintf("token-%d", p.n), nil
}

// refreshOnce refreshes the stored token the first time it sees it and saves the result, like
// the OAuth provider does for an expired token.
type refreshOnce struct {
	users     models.UserStore
	mu        sync.Mutex
	refreshes int
}

func (p *refreshOnce) AccessToken(ctx context.Context, user *models.User) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if user.AccessToken == "refreshed" {
		return user.AccessToken, nil
	}
	p.refreshes++
	refreshed := *user
	refreshed.AccessToken = "refreshed"
	if _, err := p.users.Update(ctx, &refreshed); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// tokensFor returns the token passed to each call of method, in order.
func tokensFor(lib *th.MockLibrary, method string) []string {
	var out []string
	tokens := lib.Tokens()
	for i, call := range lib.Calls() {
		if call == method {
			out = append(out, tokens[i])
		}
	}
	return out
}

func libraryTrack(id string, artists ...string) models.Track {
	t := models.Track{ID: id, Name: "Song " + id, URI: "spotify:track:" + id}
	for _, a := range artists {
		t.Artists = append(t.Artists, models.Artist{ID: a, Name: "Artist " + a})
	}
	return t
}

// scenarioLibrary returns tracks whose features classify them into the given genres in order.
func scenarioLibrary(counts ...int) *th.MockLibrary {
	features := []models.AudioFeatures{popFeatures, rockFeatures, altFeatures}
	lib := &th.MockLibrary{Features: map[string]models.AudioFeatures{}}
	n := 0
	for i, count := range counts {
		for range count {
			id := fmt.Sprintf("t%02d", n)
			lib.Tracks = append(lib.Tracks, libraryTrack(id, "a"+id))
			lib.Features[id] = features[i]
			n++
		}
	}
	return lib
}

func TestGenreEngine_Run(t *testing.T) {
	t.Run("end to end", func(t *testing.T) {
		f := newFixture(t, scenarioLibrary(12, 10, 3), fixtureOpts{
			spotifyID: "owner",
			settings:  models.SettingsPatch{UseArtistGenres: models.Ref(false)},
		})
		job := f.run(t)

		if job.Status != models.StatusCompleted || job.Progress != 100 || job.CurrentStep != StepComplete {
			t.Fatalf("unexpected final job %+v", job)
		}
		if job.TotalSongs != 25 || job.ProcessedSongs != 25 {
			t.Errorf("expected 25 total and processed songs, got %d and %d", job.TotalSongs, job.ProcessedSongs)
		}
		if job.StartedAt == nil || job.CompletedAt == nil {
			t.Error("expected startedAt and completedAt to be set")
		}
		if job.ErrorMessage != "" {
			t.Errorf("unexpected error message %q", job.ErrorMessage)
		}

		created := f.library.Created()
		if len(created) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(created))
		}
		if created[0].Name != "🎵Pop" || created[1].Name != "🎸Rock" {
			t.Errorf("unexpected playlist names %q, %q", created[0].Name, created[1].Name)
		}
		if created[0].Owner != "owner" || created[0].Public {
			t.Errorf("unexpected owner or visibility %+v", created[0])
		}
		if created[0].Description != "Auto-generated playlist containing 12 songs classified as Pop" {
			t.Errorf("unexpected description %q", created[0].Description)
		}
		if got := len(f.library.Added("playlist-1")); got != 12 {
			t.Errorf("expected 12 tracks in Pop, got %d", got)
		}
		if got := len(f.library.Added("playlist-2")); got != 10 {
			t.Errorf("expected 10 tracks in Rock, got %d", got)
		}

		if len(job.GenreResults) != 2 || job.GenreResults[0].Genre != "Pop" || job.GenreResults[0].TrackCount != 12 {
			t.Errorf("unexpected genre results %+v", job.GenreResults)
		}
		if job.GenreResults[1].Confidence != 90 || len(job.GenreResults[1].Songs) != 10 {
			t.Errorf("unexpected Rock result %+v", job.GenreResults[1])
		}
		for _, p := range job.CreatedPlaylists {
			if p.Status != models.PlaylistComplete || p.URL == "" {
				t.Errorf("unexpected created playlist %+v", p)
			}
		}

		if f.library.Count("ArtistGenres") != 0 {
			t.Error("artist genres should not be fetched when disabled")
		}
		if f.library.Count("CurrentUser") != 0 {
			t.Error("stored spotify id should be used as owner")
		}
		for _, tok := range f.library.Tokens() {
			if tok != "token" {
				t.Errorf("expected provider token on every call, got %q", tok)
			}
		}
	})

	t.Run("failure on second of three buckets", func(t *testing.T) {
		lib := scenarioLibrary(4, 4, 4)
		lib.CreateErr = &services.ServiceError{StatusCode: 500, Message: "boom"}
		lib.CreateErrAt = 2
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner", settings: models.SettingsPatch{MinSongsPerPlaylist: models.Ref(4)}})
		job := f.run(t)

		if job.Status != models.StatusError {
			t.Fatalf("expected error status, got %s", job.Status)
		}
		if !strings.Contains(job.ErrorMessage, "boom") {
			t.Errorf("expected error message to contain upstream message, got %q", job.ErrorMessage)
		}
		if job.Progress != 72 || job.CurrentStep != "Creating playlist 1 of 3..." {
			t.Errorf("expected progress stuck at 72 after first bucket, got %d %q", job.Progress, job.CurrentStep)
		}
		if len(job.CreatedPlaylists) != 1 || job.CreatedPlaylists[0].Name != "🎵Pop" {
			t.Errorf("expected first playlist recorded, got %+v", job.CreatedPlaylists)
		}
		if len(job.GenreResults) != 1 {
			t.Errorf("expected one genre result, got %d", len(job.GenreResults))
		}
		if n := lib.Count("CreatePlaylist"); n != 2 {
			t.Errorf("expected third bucket never attempted, got %d create calls", n)
		}
		if job.CompletedAt != nil {
			t.Error("completedAt should not be set on error")
		}
	})

	t.Run("failed track insert records the playlist as errored", func(t *testing.T) {
		lib := scenarioLibrary(2)
		lib.AddErr = errors.New("insert failed")
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner", settings: models.SettingsPatch{MinSongsPerPlaylist: models.Ref(1)}})
		job := f.run(t)

		if job.Status != models.StatusError || !strings.Contains(job.ErrorMessage, "insert failed") {
			t.Fatalf("unexpected job %+v", job)
		}
		if len(job.CreatedPlaylists) != 1 || job.CreatedPlaylists[0].Status != models.PlaylistError {
			t.Errorf("expected errored playlist record, got %+v", job.CreatedPlaylists)
		}
		if job.Progress != 60 {
			t.Errorf("expected progress 60, got %d", job.Progress)
		}
	})

	t.Run("progress is monotonic", func(t *testing.T) {
		f := newFixture(t, scenarioLibrary(12, 10, 3), fixtureOpts{spotifyID: "owner"})
		f.run(t)

		var percents []int
		for _, u := range f.updates() {
			percents = append(percents, u.Percent)
		}
		if want := []int{0, 10, 30, 60, 78, 95, 100}; !slices.Equal(percents, want) {
			t.Errorf("progress sequence = %v, want %v", percents, want)
		}
	})

	t.Run("audio features are attached by track id", func(t *testing.T) {
		lib := &th.MockLibrary{
			Tracks: []models.Track{libraryTrack("1"), libraryTrack("2"), libraryTrack("3")},
			Features: map[string]models.AudioFeatures{
				"1": popFeatures,
				"3": rockFeatures,
			},
		}
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner", settings: models.SettingsPatch{
			MinSongsPerPlaylist: models.Ref(1),
			AddEmojis:           models.Ref(false),
		}})
		job := f.run(t)

		if job.Status != models.StatusCompleted {
			t.Fatalf("expected completed, got %s: %s", job.Status, job.ErrorMessage)
		}
		var got []string
		for _, r := range job.GenreResults {
			got = append(got, r.Genre+":"+strings.Join(r.Songs, ","))
		}
		want := []string{"Pop:Song 1", "Unclassified:Song 2", "Rock:Song 3"}
		if !slices.Equal(got, want) {
			t.Errorf("genre results = %v, want %v", got, want)
		}
	})

	t.Run("artist genres are fetched once per artist", func(t *testing.T) {
		lib := &th.MockLibrary{
			Tracks: []models.Track{
				libraryTrack("1", "shared", "solo"),
				libraryTrack("2", "shared"),
			},
			Genres: map[string][]string{"shared": {"hip hop"}, "solo": {"jazz"}},
		}
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner", settings: models.SettingsPatch{
			UseAudioFeatures:    models.Ref(false),
			MinSongsPerPlaylist: models.Ref(1),
			PlaylistPrefix:      models.Ref("Auto"),
		}})
		job := f.run(t)

		if ids := lib.ArtistIDs(); !slices.Equal(ids, []string{"shared", "solo"}) {
			t.Errorf("expected de-duplicated artist ids, got %v", ids)
		}
		if lib.Count("AudioFeatures") != 0 {
			t.Error("audio features should not be fetched when disabled")
		}
		if len(job.CreatedPlaylists) != 2 || job.CreatedPlaylists[0].Name != "Auto 🎤Hip-Hop" || job.CreatedPlaylists[0].SongCount != 2 {
			t.Errorf("unexpected playlists %+v", job.CreatedPlaylists)
		}
	})

	t.Run("owner falls back to current user", func(t *testing.T) {
		lib := scenarioLibrary(1)
		lib.User = &services.SpotifyUser{ID: "profile-id"}
		f := newFixture(t, lib, fixtureOpts{settings: models.SettingsPatch{MinSongsPerPlaylist: models.Ref(1)}})
		f.run(t)

		if created := lib.Created(); len(created) != 1 || created[0].Owner != "profile-id" {
			t.Errorf("expected playlist owned by profile-id, got %+v", created)
		}
	})

	t.Run("empty library completes without playlists", func(t *testing.T) {
		lib := &th.MockLibrary{}
		f := newFixture(t, lib, fixtureOpts{})
		job := f.run(t)

		if job.Status != models.StatusCompleted || job.Progress != 100 || job.TotalSongs != 0 {
			t.Errorf("unexpected job %+v", job)
		}
		if calls := lib.Calls(); !slices.Equal(calls, []string{"LikedTracks"}) {
			t.Errorf("expected only LikedTracks, got %v", calls)
		}
	})

	t.Run("fetch failure", func(t *testing.T) {
		lib := &th.MockLibrary{LikedErr: &services.ServiceError{StatusCode: 401, Message: "The access token expired"}}
		f := newFixture(t, lib, fixtureOpts{})
		job := f.run(t)

		if job.Status != models.StatusError || job.Progress != 10 || job.CurrentStep != StepFetching {
			t.Errorf("unexpected job %+v", job)
		}
		if !strings.Contains(job.ErrorMessage, "access token expired") {
			t.Errorf("unexpected error message %q", job.ErrorMessage)
		}
	})

	t.Run("token failure", func(t *testing.T) {
		lib := scenarioLibrary(1)
		f := newFixture(t, lib, fixtureOpts{tokens: services.StaticTokenProvider("")})
		job := f.run(t)

		if job.Status != models.StatusError || !strings.Contains(job.ErrorMessage, "not authenticated") {
			t.Errorf("unexpected job %+v", job)
		}
		if lib.Count("LikedTracks") != 0 {
			t.Error("library should not be called without a token")
		}
	})

	t.Run("token is fetched for every stage and playlist", func(t *testing.T) {
		lib := scenarioLibrary(12, 10, 3)
		tokens := &rotatingTokens{}
		f := newFixture(t, lib, fixtureOpts{
			spotifyID: "owner",
			settings:  models.SettingsPatch{UseArtistGenres: models.Ref(false)},
			tokens:    tokens,
		})
		job := f.run(t)
		if job.Status != models.StatusCompleted {
			t.Fatalf("expected completed, got %s: %s", job.Status, job.ErrorMessage)
		}

		if got := tokensFor(lib, "LikedTracks"); !slices.Equal(got, []string{"token-1"}) {
			t.Errorf("unexpected fetch tokens %v", got)
		}
		if got := tokensFor(lib, "AudioFeatures"); !slices.Equal(got, []string{"token-2"}) {
			t.Errorf("unexpected analyze tokens %v", got)
		}
		if got := tokensFor(lib, "CreatePlaylist"); !slices.Equal(got, []string{"token-3", "token-4"}) {
			t.Errorf("expected a fresh token per playlist, got %v", got)
		}
		if got := tokensFor(lib, "AddTracksToPlaylist"); !slices.Equal(got, []string{"token-3", "token-4"}) {
			t.Errorf("expected track inserts to reuse their playlist's token, got %v", got)
		}
	})

	t.Run("refreshed token is reused by later stages", func(t *testing.T) {
		lib := scenarioLibrary(12, 10)
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner"})
		tokens := &refreshOnce{users: f.store.Users()}
		f.engine.tokens = tokens

		job := f.run(t)
		if job.Status != models.StatusCompleted {
			t.Fatalf("expected completed, got %s: %s", job.Status, job.ErrorMessage)
		}
		if tokens.refreshes != 1 {
			t.Errorf("expected one refresh across the run, got %d", tokens.refreshes)
		}
		for _, tok := range lib.Tokens() {
			if tok != "refreshed" {
				t.Errorf("expected refreshed token on every call, got %q", tok)
			}
		}
	})

	t.Run("panic is recorded as error", func(t *testing.T) {
		lib := scenarioLibrary(1)
		lib.PanicOn = "AudioFeatures"
		f := newFixture(t, lib, fixtureOpts{})
		job := f.run(t)

		if job.Status != models.StatusError || !strings.Contains(job.ErrorMessage, "panicked") {
			t.Errorf("unexpected job %+v", job)
		}
		if job.Progress != 30 {
			t.Errorf("expected progress 30, got %d", job.Progress)
		}
		if f.engine.Running(f.user.ID) {
			t.Error("run should be released after a panic")
		}
	})

	t.Run("error update is sent last", func(t *testing.T) {
		lib := &th.MockLibrary{LikedErr: errors.New("down")}
		f := newFixture(t, lib, fixtureOpts{})
		f.run(t)

		updates := f.updates()
		last := updates[len(updates)-1]
		if last.Phase != Failed || !last.Done() || last.Err == nil || last.Job.Status != models.StatusError {
			t.Errorf("unexpected last update %+v", last)
		}
	})
}

func TestGenreEngine_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("missing user", func(t *testing.T) {
		f := newFixture(t, &th.MockLibrary{}, fixtureOpts{})
		if _, err := f.engine.Start(ctx, 999); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := f.store.Jobs().Get(ctx, 999); !errors.Is(err, shared.ErrNotFound) {
			t.Error("no job record should be created for a missing user")
		}
	})

	t.Run("missing settings", func(t *testing.T) {
		f := newFixture(t, &th.MockLibrary{}, fixtureOpts{})
		user, _ := f.store.Users().Create(ctx, &models.User{SpotifyID: "no-settings"})
		if _, err := f.engine.Start(ctx, user.ID); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("status before any run is idle", func(t *testing.T) {
		f := newFixture(t, &th.MockLibrary{}, fixtureOpts{})
		job, err := f.engine.Status(ctx, f.user.ID)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if job.Status != models.StatusIdle || job.Progress != 0 || job.CreatedPlaylists == nil {
			t.Errorf("unexpected idle job %+v", job)
		}
	})

	t.Run("concurrent start is rejected", func(t *testing.T) {
		lib := scenarioLibrary(1)
		lib.Gate = make(chan struct{})
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner"})

		first, err := f.engine.Start(ctx, f.user.ID)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if !first.Accepted || first.RunID == "" || first.JobID == 0 {
			t.Errorf("unexpected start result %+v", first)
		}
		if !f.engine.Running(f.user.ID) {
			t.Error("expected run to be active")
		}

		if _, err := f.engine.Start(ctx, f.user.ID); !errors.Is(err, shared.ErrJobInProgress) {
			t.Errorf("expected ErrJobInProgress, got %v", err)
		}

		job, _ := f.engine.Status(ctx, f.user.ID)
		if job.RunID != first.RunID || !job.Status.IsActive() {
			t.Errorf("rejected start must not touch the job, got %+v", job)
		}

		close(lib.Gate)
		f.engine.Wait()

		job, _ = f.engine.Status(ctx, f.user.ID)
		if job.Status != models.StatusCompleted {
			t.Errorf("expected completed, got %s: %s", job.Status, job.ErrorMessage)
		}
	})

	t.Run("start from another engine sharing the store is rejected", func(t *testing.T) {
		lib := scenarioLibrary(10)
		lib.Gate = make(chan struct{})
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner"})

		first, err := f.engine.Start(ctx, f.user.ID)
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}

		otherLib := scenarioLibrary(10)
		other := f.sharedEngine(t, otherLib, 0)
		if _, err := other.Start(ctx, f.user.ID); !errors.Is(err, shared.ErrJobInProgress) {
			t.Fatalf("expected ErrJobInProgress from the second engine, got %v", err)
		}
		if other.Running(f.user.ID) {
			t.Error("rejected engine should not track a run")
		}

		close(lib.Gate)
		f.engine.Wait()
		other.Wait()

		job, _ := f.engine.Status(ctx, f.user.ID)
		if job.RunID != first.RunID || job.Status != models.StatusCompleted {
			t.Errorf("expected the first run to own the completed job, got %+v", job)
		}
		if lib.Count("CreatePlaylist") != 1 || otherLib.Count("LikedTracks") != 0 {
			t.Errorf("expected one set of playlists, got %d and %d calls", lib.Count("CreatePlaylist"), otherLib.Count("LikedTracks"))
		}
		if len(job.CreatedPlaylists) != 1 {
			t.Errorf("expected one recorded playlist, got %+v", job.CreatedPlaylists)
		}
	})

	t.Run("stale run cannot overwrite a newer run", func(t *testing.T) {
		lib := scenarioLibrary(10)
		lib.Gate = make(chan struct{})
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner"})

		if _, err := f.engine.Start(ctx, f.user.ID); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		time.Sleep(5 * time.Millisecond)

		newerLib := scenarioLibrary(10)
		newer := f.sharedEngine(t, newerLib, time.Millisecond)
		second, err := newer.Start(ctx, f.user.ID)
		if err != nil {
			t.Fatalf("expected the stale job to be taken over, got %v", err)
		}
		newer.Wait()

		close(lib.Gate)
		f.engine.Wait()

		job, _ := f.engine.Status(ctx, f.user.ID)
		if job.RunID != second.RunID || job.Status != models.StatusCompleted || job.ErrorMessage != "" {
			t.Errorf("expected the newer run's completed job, got %+v", job)
		}
		if lib.Count("CreatePlaylist") != 0 {
			t.Errorf("superseded run should stop before creating playlists, got %d", lib.Count("CreatePlaylist"))
		}
		if f.engine.Running(f.user.ID) {
			t.Error("superseded run should be released")
		}
	})

	t.Run("restart overwrites the previous run", func(t *testing.T) {
		lib := scenarioLibrary(10)
		lib.CreateErr = errors.New("first run fails")
		lib.CreateErrAt = 1
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner"})

		failed := f.run(t)
		if failed.Status != models.StatusError {
			t.Fatalf("expected first run to fail, got %s", failed.Status)
		}

		second := f.run(t)
		if second.Status != models.StatusCompleted || second.ErrorMessage != "" {
			t.Errorf("expected clean completed run, got %+v", second)
		}
		if second.ID != failed.ID || second.RunID == failed.RunID {
			t.Errorf("expected same record with a new run id, got %d/%s and %d/%s", failed.ID, failed.RunID, second.ID, second.RunID)
		}
		if len(second.CreatedPlaylists) != 1 {
			t.Errorf("expected results from the second run only, got %+v", second.CreatedPlaylists)
		}
	})

	t.Run("run outlives the caller context", func(t *testing.T) {
		lib := scenarioLibrary(1)
		lib.Gate = make(chan struct{})
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner"})

		cctx, cancel := context.WithCancel(ctx)
		if _, err := f.engine.Start(cctx, f.user.ID); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		cancel()
		close(lib.Gate)
		f.engine.Wait()

		job, _ := f.engine.Status(ctx, f.user.ID)
		if job.Status != models.StatusCompleted {
			t.Errorf("expected completed despite cancelled caller, got %s: %s", job.Status, job.ErrorMessage)
		}
	})

	t.Run("settings are read once at start", func(t *testing.T) {
		lib := scenarioLibrary(1)
		lib.Gate = make(chan struct{})
		f := newFixture(t, lib, fixtureOpts{spotifyID: "owner"})

		if _, err := f.engine.Start(ctx, f.user.ID); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if _, err := f.store.Settings().Update(ctx, f.user.ID, models.SettingsPatch{MinSongsPerPlaylist: models.Ref(1)}); err != nil {
			t.Fatalf("failed to update settings: %v", err)
		}
		close(lib.Gate)
		f.engine.Wait()

		if n := lib.Count("CreatePlaylist"); n != 0 {
			t.Errorf("in-flight run should keep min 10, got %d playlists", n)
		}
	})
}

func TestNewGenreEngine(t *testing.T) {
	store := repositories.NewMemoryStore()
	tests := []struct {
		name string
		opts EngineOpts
	}{
		{"missing library", EngineOpts{Users: store.Users(), Settings: store.Settings(), Jobs: store.Jobs(), Tokens: services.StaticTokenProvider("t")}},
		{"missing stores", EngineOpts{Library: &th.MockLibrary{}, Tokens: services.StaticTokenProvider("t")}},
		{"missing tokens", EngineOpts{Library: &th.MockLibrary{}, Users: store.Users(), Settings: store.Settings(), Jobs: store.Jobs()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGenreEngine(tt.opts); !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	}

	t.Run("defaults", func(t *testing.T) {
		e, err := NewGenreEngine(EngineOpts{
			Library: &th.MockLibrary{}, Users: store.Users(), Settings: store.Settings(), Jobs: store.Jobs(),
			Tokens: services.StaticTokenProvider("t"), Logger: shared.NewLogger(io.Discard),
		})
		if err != nil {
			t.Fatalf("NewGenreEngine() error = %v", err)
		}
		for range 100 {
			if c := e.confidence(); c < 85 || c >= 100 {
				t.Fatalf("confidence %v outside [85,100)", c)
			}
		}
		if time.Since(e.now()) > time.Minute {
			t.Error("default clock should be time.Now")
		}
	})
}

func TestBucketProgress(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{1, 1, 95},
		{1, 2, 78},
		{2, 2, 95},
		{1, 3, 72},
		{2, 3, 83},
		{3, 3, 95},
	}
	for _, tt := range tests {
		if got := bucketProgress(tt.done, tt.total); got != tt.want {
			t.Errorf("bucketProgress(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}
