package models

import (
	"slices"
	"time"
)

// JobStatus is the state of a [ProcessingJob].
type JobStatus string

const (
	StatusIdle      JobStatus = "idle"
	StatusFetching  JobStatus = "fetching"
	StatusAnalyzing JobStatus = "analyzing"
	StatusCreating  JobStatus = "creating"
	StatusCompleted JobStatus = "completed"
	StatusError     JobStatus = "error"
)

// IsTerminal reports whether a run in this status has finished.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// IsActive reports whether a run in this status is still in flight.
func (s JobStatus) IsActive() bool {
	switch s {
	case StatusFetching, StatusAnalyzing, StatusCreating:
		return true
	default:
		return false
	}
}

func (s JobStatus) String() string { return string(s) }

// PlaylistStatus is the state of a [CreatedPlaylist].
type PlaylistStatus string

const (
	PlaylistCreating PlaylistStatus = "creating"
	PlaylistComplete PlaylistStatus = "complete"
	PlaylistError    PlaylistStatus = "error"
)

// GenreResult summarizes one bucket that became a playlist.
//
// Confidence is a placeholder in [85,100), not a measured score.
type GenreResult struct {
	Genre      string   `json:"genre"`
	Songs      []string `json:"songs"`
	Confidence float64  `json:"confidence"`
	TrackCount int      `json:"trackCount"`
}

// CreatedPlaylist records a playlist created during a run.
type CreatedPlaylist struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	SongCount int            `json:"songCount"`
	CreatedAt time.Time      `json:"createdAt"`
	Status    PlaylistStatus `json:"status"`
	URL       string         `json:"spotifyUrl"`
}

// ProcessingJob is the persisted state of the latest run for a user.
//
// Progress is in [0,100] and never decreases within a run.
type ProcessingJob struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"userId"`
	RunID            string            `json:"runId,omitempty"`
	Status           JobStatus         `json:"status"`
	Progress         int               `json:"progress"`
	CurrentStep      string            `json:"currentStep"`
	TotalSongs       int               `json:"totalSongs"`
	ProcessedSongs   int               `json:"processedSongs"`
	GenreResults     []GenreResult     `json:"genreResults"`
	CreatedPlaylists []CreatedPlaylist `json:"createdPlaylists"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	StartedAt        *time.Time        `json:"startedAt,omitempty"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// IdleJob is the record reported for a user who has never started a run.
func IdleJob(userID int64) *ProcessingJob {
	return &ProcessingJob{
		UserID:           userID,
		Status:           StatusIdle,
		GenreResults:     []GenreResult{},
		CreatedPlaylists: []CreatedPlaylist{},
	}
}

// Claimable reports whether a new run may take over the record. Active records qualify once
// their last write is older than staleBefore.
func (j *ProcessingJob) Claimable(staleBefore time.Time) bool {
	return !j.Status.IsActive() || j.UpdatedAt.Before(staleBefore)
}

// Clone returns a deep copy so callers can read a job while a run keeps writing to the store.
func (j *ProcessingJob) Clone() *ProcessingJob {
	if j == nil {
		return nil
	}
	c := *j
	c.GenreResults = make([]GenreResult, len(j.GenreResults))
	for i, r := range j.GenreResults {
		r.Songs = slices.Clone(r.Songs)
		c.GenreResults[i] = r
	}
	c.CreatedPlaylists = slices.Clone(j.CreatedPlaylists)
	if c.CreatedPlaylists == nil {
		c.CreatedPlaylists = []CreatedPlaylist{}
	}
	if j.StartedAt != nil {
		c.StartedAt = Ref(*j.StartedAt)
	}
	if j.CompletedAt != nil {
		c.CompletedAt = Ref(*j.CompletedAt)
	}
	return &c
}

// JobPatch lists the job fields a store Update may change. Nil fields are left untouched.
//
// A non-nil StartedAt or CompletedAt pointing at the zero time clears the field.
type JobPatch struct {
	RunID            *string
	Status           *JobStatus
	Progress         *int
	CurrentStep      *string
	TotalSongs       *int
	ProcessedSongs   *int
	GenreResults     *[]GenreResult
	CreatedPlaylists *[]CreatedPlaylist
	ErrorMessage     *string
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// Apply merges the patch into job.
func (p JobPatch) Apply(job *ProcessingJob) {
	if p.RunID != nil {
		job.RunID = *p.RunID
	}
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Progress != nil {
		job.Progress = *p.Progress
	}
	if p.CurrentStep != nil {
		job.CurrentStep = *p.CurrentStep
	}
	if p.TotalSongs != nil {
		job.TotalSongs = *p.TotalSongs
	}
	if p.ProcessedSongs != nil {
		job.ProcessedSongs = *p.ProcessedSongs
	}
	if p.GenreResults != nil {
		job.GenreResults = slices.Clone(*p.GenreResults)
	}
	if p.CreatedPlaylists != nil {
		job.CreatedPlaylists = slices.Clone(*p.CreatedPlaylists)
	}
	if p.ErrorMessage != nil {
		job.ErrorMessage = *p.ErrorMessage
	}
	if p.StartedAt != nil {
		job.StartedAt = timeOrNil(*p.StartedAt)
	}
	if p.CompletedAt != nil {
		job.CompletedAt = timeOrNil(*p.CompletedAt)
	}
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
