package tasks

import "github.com/desertthunder/genrify/internal/models"

// ProgressUpdate represents a persisted transition of a processing job.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase                 // Pipeline phase
	Step    int                   // Current playlist number while creating
	Total   int                   // Number of playlists to create
	Percent int                   // Job progress after the transition
	Message string                // Current step message
	Job     *models.ProcessingJob // Job record as persisted
	Err     error                 // Set on the [Failed] update
}

// Phase of the processing pipeline
type Phase int

const (
	Fetching Phase = iota
	Analyzing
	Creating
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Fetching:
		return "fetching"
	case Analyzing:
		return "analyzing"
	case Creating:
		return "creating"
	case Completed:
		return "completed"
	case Failed:
		return "error"
	default:
		return ""
	}
}

// Status returns the job status recorded for the phase.
func (p Phase) Status() models.JobStatus {
	switch p {
	case Fetching:
		return models.StatusFetching
	case Analyzing:
		return models.StatusAnalyzing
	case Creating:
		return models.StatusCreating
	case Completed:
		return models.StatusCompleted
	case Failed:
		return models.StatusError
	default:
		return models.StatusIdle
	}
}

// Done reports whether the update ends a run.
func (u ProgressUpdate) Done() bool {
	return u.Phase == Completed || u.Phase == Failed
}
