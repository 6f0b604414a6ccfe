package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/genrify/internal/formatter"
	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
	"github.com/desertthunder/genrify/internal/tasks"
	"github.com/urfave/cli/v3"
)

// ProcessStart starts a run for the selected user and follows it until it reaches completed or error.
//
// The run lives in this process, so the command always waits for it.
func (r *Runner) ProcessStart(ctx context.Context, cmd *cli.Command) error {
	useTUI := cmd.Bool("tui")
	if useTUI {
		if err := r.useFileLogger(); err != nil {
			return err
		}
	}

	user, err := r.currentUser(ctx, cmd)
	if err != nil {
		return err
	}
	engine, err := r.genreEngine()
	if err != nil {
		return err
	}

	result, err := engine.Start(ctx, user.ID)
	if err != nil {
		if errors.Is(err, shared.ErrJobInProgress) {
			return fmt.Errorf("%w: wait for the current run to finish", err)
		}
		return fmt.Errorf("failed to start processing: %w", err)
	}
	r.logger.Info("processing started", "user", user.ID, "job", result.JobID, "run", result.RunID)

	if useTUI {
		if err := r.runWatcher(ctx, user.ID, 0); err != nil {
			return err
		}
	} else {
		r.writePlain("→ Processing liked songs for %s (run %s)\n", user.DisplayName, result.RunID)
		if err := r.follow(ctx, engine, result.RunID); err != nil {
			return err
		}
	}

	job, err := r.latestJob(ctx, user.ID)
	if err != nil {
		return err
	}
	if !useTUI {
		report, err := formatter.ExportToText(job)
		if err != nil {
			return err
		}
		r.writePlain("\n%s", report)
	}
	if job.Status == models.StatusError {
		return fmt.Errorf("processing failed: %s", job.ErrorMessage)
	}
	return nil
}

// follow prints progress updates for runID until every run in engine has finished.
func (r *Runner) follow(ctx context.Context, engine *tasks.GenreEngine, runID string) error {
	done := make(chan struct{})
	go func() {
		engine.Wait()
		close(done)
	}()

	for {
		select {
		case u := <-r.progress:
			r.printProgress(u, runID)
		case <-done:
			for {
				select {
				case u := <-r.progress:
					r.printProgress(u, runID)
				default:
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Runner) printProgress(u tasks.ProgressUpdate, runID string) {
	if u.Job != nil && u.Job.RunID != runID {
		return
	}
	r.writePlain("[%s] %3d%% %s\n", u.Phase, u.Percent, u.Message)
}

// ProcessStatus prints the latest job record in the requested format.
func (r *Runner) ProcessStatus(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		format = formatter.FormatJSON
	}

	user, err := r.currentUser(ctx, cmd)
	if err != nil {
		return err
	}
	job, err := r.latestJob(ctx, user.ID)
	if err != nil {
		return err
	}

	data, err := formatter.Export(job, format)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// ProcessReport writes the latest job record to a file.
func (r *Runner) ProcessReport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	user, err := r.currentUser(ctx, cmd)
	if err != nil {
		return err
	}
	job, err := r.latestJob(ctx, user.ID)
	if err != nil {
		return err
	}
	if job.Status == models.StatusIdle {
		return fmt.Errorf("%w: no processing job for user %d", shared.ErrNotFound, user.ID)
	}

	path, err := formatter.WriteExport(job, format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("report written", "path", path, "format", format)
	return r.writePlain("✓ Report written to %s\n", path)
}

// latestJob reads the job store directly, so status works without Spotify credentials.
func (r *Runner) latestJob(ctx context.Context, userID int64) (*models.ProcessingJob, error) {
	if err := r.stores(); err != nil {
		return nil, err
	}

	job, err := r.jobs.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return models.IdleJob(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}
