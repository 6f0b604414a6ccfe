package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
)

const jobColumns = `id, user_id, run_id, status, progress, current_step, total_songs, processed_songs,
	genre_results, created_playlists, error_message, started_at, completed_at, updated_at`

// activeStatuses matches records whose run is still in flight.
var activeStatuses = fmt.Sprintf("('%s', '%s', '%s')",
	models.StatusFetching, models.StatusAnalyzing, models.StatusCreating)

// jobGuard narrows an update to records that still satisfy a condition. check runs against the
// record read inside the transaction; where and args repeat it on the UPDATE itself.
type jobGuard struct {
	where    string
	args     []any
	check    func(job *models.ProcessingJob) error
	conflict func() error
}

// JobRepository implements [models.JobStore]. Result lists are stored as JSON text.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new [JobRepository] with the given database connection
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts the job record for a user. It fails when the user already has one.
func (r *JobRepository) Create(ctx context.Context, job *models.ProcessingJob) (*models.ProcessingJob, error) {
	id, err := NextSequence(ctx, r.db, "processing_jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	created := job.Clone()
	created.ID = id
	created.UpdatedAt = time.Now().UTC()
	if created.Status == "" {
		created.Status = models.StatusIdle
	}

	results, playlists, err := encodeResults(created)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO processing_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		created.ID, created.UserID, created.RunID, created.Status, created.Progress, created.CurrentStep,
		created.TotalSongs, created.ProcessedSongs, results, playlists, created.ErrorMessage,
		nullTime(created.StartedAt), nullTime(created.CompletedAt), created.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: job already exists for user %d", shared.ErrInvalidInput, created.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	return created, nil
}

// Get retrieves the job record of a user
func (r *JobRepository) Get(ctx context.Context, userID int64) (*models.ProcessingJob, error) {
	return getJob(ctx, r.db, userID)
}

// Update merges patch into the user's job record inside a transaction.
func (r *JobRepository) Update(ctx context.Context, userID int64, patch models.JobPatch) (*models.ProcessingJob, error) {
	return r.update(ctx, userID, patch, jobGuard{})
}

// Claim resets the user's record for the run in patch.RunID. The status check is repeated in the
// UPDATE so two processes racing on one database cannot both take the record.
func (r *JobRepository) Claim(ctx context.Context, userID int64, patch models.JobPatch, staleBefore time.Time) (*models.ProcessingJob, error) {
	inProgress := func() error { return fmt.Errorf("%w for user %d", shared.ErrJobInProgress, userID) }

	job, err := r.update(ctx, userID, patch, jobGuard{
		where: ` AND (status NOT IN ` + activeStatuses + ` OR updated_at < ?)`,
		args:  []any{staleBefore.UTC()},
		check: func(job *models.ProcessingJob) error {
			if !job.Claimable(staleBefore) {
				return fmt.Errorf("%w (run %s)", inProgress(), job.RunID)
			}
			return nil
		},
		conflict: inProgress,
	})
	if !errors.Is(err, shared.ErrNotFound) {
		return job, err
	}

	fresh := models.IdleJob(userID)
	patch.Apply(fresh)
	job, err = r.Create(ctx, fresh)
	if errors.Is(err, shared.ErrInvalidInput) {
		return nil, inProgress()
	}
	return job, err
}

// UpdateRun merges patch while the record still belongs to runID.
func (r *JobRepository) UpdateRun(ctx context.Context, userID int64, runID string, patch models.JobPatch) (*models.ProcessingJob, error) {
	superseded := func() error {
		return fmt.Errorf("%w: run %s for user %d", shared.ErrRunSuperseded, runID, userID)
	}

	return r.update(ctx, userID, patch, jobGuard{
		where: ` AND run_id = ?`,
		args:  []any{runID},
		check: func(job *models.ProcessingJob) error {
			if job.RunID != runID {
				return superseded()
			}
			return nil
		},
		conflict: superseded,
	})
}

func (r *JobRepository) update(ctx context.Context, userID int64, patch models.JobPatch, guard jobGuard) (*models.ProcessingJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job, err := getJob(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if guard.check != nil {
		if err := guard.check(job); err != nil {
			return nil, err
		}
	}
	patch.Apply(job)
	job.UpdatedAt = time.Now().UTC()

	results, playlists, err := encodeResults(job)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE processing_jobs
		SET run_id = ?, status = ?, progress = ?, current_step = ?, total_songs = ?, processed_songs = ?,
			genre_results = ?, created_playlists = ?, error_message = ?, started_at = ?, completed_at = ?,
			updated_at = ?
		WHERE user_id = ?` + guard.where
	args := []any{
		job.RunID, job.Status, job.Progress, job.CurrentStep, job.TotalSongs, job.ProcessedSongs,
		results, playlists, job.ErrorMessage, nullTime(job.StartedAt), nullTime(job.CompletedAt),
		job.UpdatedAt, userID,
	}
	res, err := tx.ExecContext(ctx, query, append(args, guard.args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	if n == 0 {
		if guard.conflict != nil {
			return nil, guard.conflict()
		}
		return nil, fmt.Errorf("%w: job for user %d", shared.ErrNotFound, userID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job: %w", err)
	}
	return job, nil
}

func getJob(ctx context.Context, q querier, userID int64) (*models.ProcessingJob, error) {
	var (
		job                  models.ProcessingJob
		status               string
		results, playlists   string
		startedAt, completed sql.NullTime
	)
	err := q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM processing_jobs WHERE user_id = ?`, userID).Scan(
		&job.ID, &job.UserID, &job.RunID, &status, &job.Progress, &job.CurrentStep, &job.TotalSongs,
		&job.ProcessedSongs, &results, &playlists, &job.ErrorMessage, &startedAt, &completed, &job.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "job for user", userID)
	}

	job.Status = models.JobStatus(status)
	job.StartedAt = timePtr(startedAt)
	job.CompletedAt = timePtr(completed)

	if err := json.Unmarshal([]byte(results), &job.GenreResults); err != nil {
		return nil, fmt.Errorf("failed to decode genre results: %w", err)
	}
	if err := json.Unmarshal([]byte(playlists), &job.CreatedPlaylists); err != nil {
		return nil, fmt.Errorf("failed to decode created playlists: %w", err)
	}
	if job.GenreResults == nil {
		job.GenreResults = []models.GenreResult{}
	}
	if job.CreatedPlaylists == nil {
		job.CreatedPlaylists = []models.CreatedPlaylist{}
	}
	return &job, nil
}

func encodeResults(job *models.ProcessingJob) (string, string, error) {
	results := job.GenreResults
	if results == nil {
		results = []models.GenreResult{}
	}
	playlists := job.CreatedPlaylists
	if playlists == nil {
		playlists = []models.CreatedPlaylist{}
	}

	r, err := json.Marshal(results)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode genre results: %w", err)
	}
	p, err := json.Marshal(playlists)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode created playlists: %w", err)
	}
	return string(r), string(p), nil
}
