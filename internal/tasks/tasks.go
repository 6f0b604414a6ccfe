package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrify/internal/genres"
	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/services"
	"github.com/desertthunder/genrify/internal/shared"
)

// Step messages persisted on the job record.
const (
	StepFetching  = "Fetching liked songs..."
	StepAnalyzing = "Analyzing audio features..."
	StepCreating  = "Creating playlists..."
	StepComplete  = "Processing complete!"

	unknownError = "Unknown error occurred"

	// DefaultStaleAfter is how long an active job may go without a write before another run
	// may take it over.
	DefaultStaleAfter = 30 * time.Minute
)

// EngineOpts holds the collaborators of a [GenreEngine].
//
// Library, Users, Settings, Jobs and Tokens are required. Progress, when set, receives a copy of
// every persisted transition; sends never block.
type EngineOpts struct {
	Library  services.MusicService
	Users    models.UserStore
	Settings models.SettingsStore
	Jobs     models.JobStore
	Tokens   services.TokenProvider
	Logger   *log.Logger
	Progress chan<- ProgressUpdate

	Confidence func() float64   // placeholder score per genre, defaults to [85,100)
	Clock      func() time.Time // defaults to time.Now
	StaleAfter time.Duration    // defaults to DefaultStaleAfter
}

// StartResult is returned once a run has been accepted.
type StartResult struct {
	Accepted bool   `json:"accepted"`
	JobID    int64  `json:"jobId"`
	RunID    string `json:"runId"`
}

// GenreEngine drives processing jobs through fetching, analyzing and creating.
//
// One run per user may be active at a time, across every engine sharing the job store. Runs are
// detached from the caller's context and always end with the job in completed or error unless a
// newer run has taken the record over.
type GenreEngine struct {
	library    services.MusicService
	users      models.UserStore
	settings   models.SettingsStore
	jobs       models.JobStore
	tokens     services.TokenProvider
	logger     *log.Logger
	progress   chan<- ProgressUpdate
	confidence func() float64
	now        func() time.Time
	staleAfter time.Duration

	mu     sync.Mutex
	active map[int64]string
	wg     sync.WaitGroup
}

// NewGenreEngine creates a [GenreEngine], filling in defaults for the optional options.
func NewGenreEngine(opts EngineOpts) (*GenreEngine, error) {
	switch {
	case opts.Library == nil:
		return nil, fmt.Errorf("%w: music service not initialized", shared.ErrServiceUnavailable)
	case opts.Users == nil, opts.Settings == nil, opts.Jobs == nil:
		return nil, fmt.Errorf("%w: stores not initialized", shared.ErrServiceUnavailable)
	case opts.Tokens == nil:
		return nil, fmt.Errorf("%w: token provider not initialized", shared.ErrServiceUnavailable)
	}

	e := &GenreEngine{
		library:    opts.Library,
		users:      opts.Users,
		settings:   opts.Settings,
		jobs:       opts.Jobs,
		tokens:     opts.Tokens,
		logger:     opts.Logger,
		progress:   opts.Progress,
		confidence: opts.Confidence,
		now:        opts.Clock,
		staleAfter: opts.StaleAfter,
		active:     make(map[int64]string),
	}
	if e.logger == nil {
		e.logger = shared.NewLogger(nil)
	}
	if e.confidence == nil {
		e.confidence = func() float64 { return 85 + rand.Float64()*15 }
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.staleAfter <= 0 {
		e.staleAfter = DefaultStaleAfter
	}
	return e, nil
}

// run is the state of one in-flight pipeline execution.
type run struct {
	userID   int64
	runID    string
	user     models.User
	settings models.Settings
	logger   *log.Logger

	progress  int
	results   []models.GenreResult
	playlists []models.CreatedPlaylist
}

// Start resets the user's job record and launches a run in the background.
//
// It fails with [shared.ErrNotFound] when the user or their settings are missing and with
// [shared.ErrJobInProgress] when a run for the user is still active, here or in another process
// sharing the job store. Neither failure touches the job record.
func (e *GenreEngine) Start(ctx context.Context, userID int64) (*StartResult, error) {
	user, err := e.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	settings, err := e.settings.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for user %d: %w", userID, err)
	}

	runID := shared.GenerateID()
	if err := e.claim(userID, runID); err != nil {
		return nil, err
	}

	job, err := e.reset(ctx, userID, runID)
	if err != nil {
		e.release(userID, runID)
		return nil, err
	}

	r := &run{
		userID:   userID,
		runID:    runID,
		user:     *user,
		settings: *settings,
		logger:   shared.WithLogger(e.logger, "user", userID, "run", runID),
	}
	r.logger.Info("processing job started")
	e.sendProgress(ProgressUpdate{Phase: Fetching, Message: StepFetching, Job: job})

	e.wg.Add(1)
	go e.execute(context.WithoutCancel(ctx), r)

	return &StartResult{Accepted: true, JobID: job.ID, RunID: runID}, nil
}

// Status returns the user's job record, or an idle record when the user has never started a run.
func (e *GenreEngine) Status(ctx context.Context, userID int64) (*models.ProcessingJob, error) {
	job, err := e.jobs.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return models.IdleJob(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job for user %d: %w", userID, err)
	}
	return job, nil
}

// Running reports whether a run for the user is active in this engine.
func (e *GenreEngine) Running(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[userID]
	return ok
}

// Wait blocks until every run started by this engine has finished.
func (e *GenreEngine) Wait() {
	e.wg.Wait()
}

func (e *GenreEngine) claim(userID int64, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.active[userID]; ok {
		return fmt.Errorf("%w for user %d", shared.ErrJobInProgress, userID)
	}
	e.active[userID] = runID
	return nil
}

func (e *GenreEngine) release(userID int64, runID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[userID] == runID {
		delete(e.active, userID)
	}
}

// reset claims the job record for a new run through the store, so engines in other processes
// see the claim.
func (e *GenreEngine) reset(ctx context.Context, userID int64, runID string) (*models.ProcessingJob, error) {
	now := e.now()
	patch := models.JobPatch{
		RunID:            &runID,
		Status:           models.Ref(models.StatusFetching),
		Progress:         models.Ref(0),
		CurrentStep:      models.Ref(StepFetching),
		TotalSongs:       models.Ref(0),
		ProcessedSongs:   models.Ref(0),
		GenreResults:     &[]models.GenreResult{},
		CreatedPlaylists: &[]models.CreatedPlaylist{},
		ErrorMessage:     models.Ref(""),
		StartedAt:        &now,
		CompletedAt:      &time.Time{},
	}

	job, err := e.jobs.Claim(ctx, userID, patch, now.Add(-e.staleAfter))
	if errors.Is(err, shared.ErrJobInProgress) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset job for user %d: %w", userID, err)
	}
	return job, nil
}

// execute runs the pipeline and records the terminal error state when it fails or panics.
func (e *GenreEngine) execute(ctx context.Context, r *run) {
	defer e.wg.Done()
	defer e.release(r.userID, r.runID)
	defer func() {
		if p := recover(); p != nil {
			e.fail(ctx, r, fmt.Errorf("processing panicked: %v", p))
		}
	}()

	start := e.now()
	if err := e.process(ctx, r); err != nil {
		e.fail(ctx, r, err)
		return
	}
	r.logger.Info("processing job completed", "playlists", len(r.playlists), "duration", e.now().Sub(start))
}

func (e *GenreEngine) process(ctx context.Context, r *run) error {
	if err := e.persist(ctx, r, Fetching, models.JobPatch{
		Progress:    models.Ref(10),
		CurrentStep: models.Ref(StepFetching),
	}); err != nil {
		return err
	}

	token, err := e.accessToken(ctx, r)
	if err != nil {
		return err
	}

	tracks, err := e.library.LikedTracks(ctx, token)
	if err != nil {
		return err
	}
	r.logger.Debug("fetched liked songs", "count", len(tracks))

	if err := e.persist(ctx, r, Analyzing, models.JobPatch{
		Progress:    models.Ref(30),
		CurrentStep: models.Ref(StepAnalyzing),
		TotalSongs:  models.Ref(len(tracks)),
	}); err != nil {
		return err
	}

	if err := e.analyze(ctx, r, tracks); err != nil {
		return err
	}

	if err := e.persist(ctx, r, Creating, models.JobPatch{
		Progress:       models.Ref(60),
		CurrentStep:    models.Ref(StepCreating),
		ProcessedSongs: models.Ref(len(tracks)),
	}); err != nil {
		return err
	}

	if err := e.create(ctx, r, tracks); err != nil {
		return err
	}

	return e.persist(ctx, r, Completed, models.JobPatch{
		Progress:    models.Ref(100),
		CurrentStep: models.Ref(StepComplete),
		CompletedAt: models.Ref(e.now()),
	})
}

// analyze attaches audio features by track ID and artist genres by artist ID.
func (e *GenreEngine) analyze(ctx context.Context, r *run, tracks []models.Track) error {
	if len(tracks) == 0 || (!r.settings.UseAudioFeatures && !r.settings.UseArtistGenres) {
		return nil
	}

	token, err := e.accessToken(ctx, r)
	if err != nil {
		return err
	}

	if r.settings.UseAudioFeatures {
		ids := make([]string, 0, len(tracks))
		for _, t := range tracks {
			ids = append(ids, t.ID)
		}

		features, err := e.library.AudioFeatures(ctx, token, ids)
		if err != nil {
			return err
		}

		byTrack := make(map[string]models.AudioFeatures, len(features))
		for _, f := range features {
			byTrack[f.ID] = f
		}
		for i := range tracks {
			if f, ok := byTrack[tracks[i].ID]; ok {
				tracks[i].AudioFeatures = &f
			}
		}
		r.logger.Debug("attached audio features", "tracks", len(tracks), "features", len(features))
	}

	if r.settings.UseArtistGenres {
		var artistIDs []string
		seen := make(map[string]bool)
		for _, t := range tracks {
			for _, id := range t.ArtistIDs() {
				if !seen[id] {
					seen[id] = true
					artistIDs = append(artistIDs, id)
				}
			}
		}

		tags, err := e.library.ArtistGenres(ctx, token, artistIDs)
		if err != nil {
			return err
		}

		for i := range tracks {
			for j := range tracks[i].Artists {
				tracks[i].Artists[j].Genres = tags[tracks[i].Artists[j].ID]
			}
		}
		r.logger.Debug("attached artist genres", "artists", len(tags))
	}
	return nil
}

// create turns every surviving bucket into a playlist, persisting results after each one.
// The token is fetched again for each playlist so long runs outlive a single access token.
func (e *GenreEngine) create(ctx context.Context, r *run, tracks []models.Track) error {
	buckets := genres.Bucketize(genres.ClassifyAll(tracks, r.settings), r.settings.MinSongsPerPlaylist)
	r.logger.Debug("bucketized tracks", "buckets", len(buckets), "min", r.settings.MinSongsPerPlaylist)
	if len(buckets) == 0 {
		return nil
	}

	token, err := e.accessToken(ctx, r)
	if err != nil {
		return err
	}
	owner, err := e.owner(ctx, r, token)
	if err != nil {
		return err
	}

	total := len(buckets)
	for i, bucket := range buckets {
		if i > 0 {
			if token, err = e.accessToken(ctx, r); err != nil {
				return err
			}
		}

		name := genres.PlaylistName(r.settings, bucket.Genre)
		description := genres.PlaylistDescription(bucket.Genre, len(bucket.Tracks))

		playlist, err := e.library.CreatePlaylist(ctx, token, owner, name, description, r.settings.MakePlaylistsPublic)
		if err != nil {
			return fmt.Errorf("failed to create playlist %q: %w", name, err)
		}

		record := models.CreatedPlaylist{
			ID:        playlist.ID,
			Name:      playlist.Name,
			SongCount: len(bucket.Tracks),
			CreatedAt: e.now(),
			Status:    models.PlaylistComplete,
			URL:       playlist.URL,
		}

		if err := e.library.AddTracksToPlaylist(ctx, token, playlist.ID, bucket.URIs()); err != nil {
			record.Status = models.PlaylistError
			r.playlists = append(r.playlists, record)
			if perr := e.persist(ctx, r, Creating, models.JobPatch{CreatedPlaylists: &r.playlists}); perr != nil {
				r.logger.Warn("failed to record incomplete playlist", "playlist", playlist.ID, "error", perr)
			}
			return fmt.Errorf("failed to add tracks to playlist %q: %w", name, err)
		}

		r.playlists = append(r.playlists, record)
		r.results = append(r.results, models.GenreResult{
			Genre:      bucket.Genre,
			Songs:      bucket.Names(),
			Confidence: e.confidence(),
			TrackCount: len(bucket.Tracks),
		})

		update := ProgressUpdate{Phase: Creating, Step: i + 1, Total: total}
		if err := e.persistStep(ctx, r, update, models.JobPatch{
			Progress:         models.Ref(bucketProgress(i+1, total)),
			CurrentStep:      models.Ref(fmt.Sprintf("Creating playlist %d of %d...", i+1, total)),
			GenreResults:     &r.results,
			CreatedPlaylists: &r.playlists,
		}); err != nil {
			return err
		}
		r.logger.Info("created playlist", "genre", bucket.Genre, "playlist", playlist.ID, "tracks", len(bucket.Tracks))
	}
	return nil
}

// owner returns the Spotify account that will own the new playlists.
func (e *GenreEngine) owner(ctx context.Context, r *run, token string) (string, error) {
	if r.user.SpotifyID != "" {
		return r.user.SpotifyID, nil
	}
	profile, err := e.library.CurrentUser(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to resolve playlist owner: %w", err)
	}
	return profile.ID, nil
}

// accessToken returns a token for the run's user. The user is reloaded first so a token refreshed
// and saved earlier in the run is reused instead of being refreshed again.
func (e *GenreEngine) accessToken(ctx context.Context, r *run) (string, error) {
	user, err := e.users.Get(ctx, r.userID)
	if err != nil {
		r.logger.Warn("failed to reload user, using cached token", "error", err)
	} else {
		r.user = *user
	}
	return e.tokens.AccessToken(ctx, &r.user)
}

// bucketProgress maps done of total buckets onto the 60 to 95 range.
func bucketProgress(done, total int) int {
	return int(math.Round(60 + float64(done)/float64(total)*35))
}

func (e *GenreEngine) persist(ctx context.Context, r *run, phase Phase, patch models.JobPatch) error {
	return e.persistStep(ctx, r, ProgressUpdate{Phase: phase}, patch)
}

// persistStep writes patch to the run's job record with the status of update.Phase and mirrors
// the result on the progress channel. Progress values lower than the last persisted one are dropped.
func (e *GenreEngine) persistStep(ctx context.Context, r *run, update ProgressUpdate, patch models.JobPatch) error {
	patch.Status = models.Ref(update.Phase.Status())
	if patch.Progress != nil {
		if *patch.Progress < r.progress {
			patch.Progress = nil
		} else {
			r.progress = *patch.Progress
		}
	}

	job, err := e.jobs.UpdateRun(ctx, r.userID, r.runID, patch)
	if err != nil {
		return fmt.Errorf("failed to persist job progress: %w", err)
	}

	update.Percent = job.Progress
	update.Message = job.CurrentStep
	update.Job = job
	e.sendProgress(update)
	return nil
}

// fail records the terminal error state. Progress and step keep their last persisted values.
func (e *GenreEngine) fail(ctx context.Context, r *run, cause error) {
	msg := cause.Error()
	if msg == "" {
		msg = unknownError
	}
	r.logger.Error("processing job failed", "error", cause)

	job, err := e.jobs.UpdateRun(ctx, r.userID, r.runID, models.JobPatch{
		Status:       models.Ref(Failed.Status()),
		ErrorMessage: &msg,
	})
	if errors.Is(err, shared.ErrRunSuperseded) {
		r.logger.Warn("job record taken over by a newer run", "error", err)
		return
	}
	if err != nil {
		r.logger.Error("failed to record job error", "error", err)
		return
	}
	e.sendProgress(ProgressUpdate{Phase: Failed, Percent: job.Progress, Message: msg, Job: job, Err: cause})
}

// sendProgress sends a progress update through the channel without blocking.
func (e *GenreEngine) sendProgress(update ProgressUpdate) {
	if e.progress == nil {
		return
	}
	select {
	case e.progress <- update:
	default:
	}
}
