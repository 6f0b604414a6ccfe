// package models defines the data model for the genre playlist builder
package models

import (
	"context"
	"time"
)

// JobStore persists the single [ProcessingJob] kept per user.
//
// Get and Update return shared.ErrNotFound when the user has no job record.
// Create assigns the job ID and fails when the user already has a record.
//
// Claim hands the record to the run named by patch.RunID, creating it when missing. It fails with
// shared.ErrJobInProgress while the record is active and was last written after staleBefore.
// UpdateRun only writes while the record still belongs to runID and fails with
// shared.ErrRunSuperseded once another run has claimed it.
type JobStore interface {
	Get(ctx context.Context, userID int64) (*ProcessingJob, error)
	Create(ctx context.Context, job *ProcessingJob) (*ProcessingJob, error)
	Update(ctx context.Context, userID int64, patch JobPatch) (*ProcessingJob, error)
	Claim(ctx context.Context, userID int64, patch JobPatch, staleBefore time.Time) (*ProcessingJob, error)
	UpdateRun(ctx context.Context, userID int64, runID string, patch JobPatch) (*ProcessingJob, error)
}

// SettingsStore persists per-user [Settings].
type SettingsStore interface {
	Get(ctx context.Context, userID int64) (*Settings, error)
	Create(ctx context.Context, settings *Settings) (*Settings, error)
	Update(ctx context.Context, userID int64, patch SettingsPatch) (*Settings, error)
}

// UserStore persists [User] accounts.
type UserStore interface {
	Get(ctx context.Context, id int64) (*User, error)
	GetBySpotifyID(ctx context.Context, spotifyID string) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	Update(ctx context.Context, user *User) (*User, error)
}

// Ref returns a pointer to v. Used to build patches.
func Ref[T any](v T) *T {
	return &v
}
