package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
	"github.com/desertthunder/genrify/internal/tasks"
	"github.com/desertthunder/genrify/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/genrify-tui.log"

// jobSource reads job status from the store and builds the engine only when a run is restarted.
type jobSource struct {
	r *Runner
}

func (s jobSource) Status(ctx context.Context, userID int64) (*models.ProcessingJob, error) {
	return s.r.latestJob(ctx, userID)
}

func (s jobSource) Start(ctx context.Context, userID int64) (*tasks.StartResult, error) {
	engine, err := s.r.genreEngine()
	if err != nil {
		return nil, err
	}
	return engine.Start(ctx, userID)
}

// ProcessWatch launches the job watcher for the selected user.
func (r *Runner) ProcessWatch(ctx context.Context, cmd *cli.Command) error {
	if err := r.useFileLogger(); err != nil {
		return err
	}

	user, err := r.currentUser(ctx, cmd)
	if err != nil {
		return err
	}
	return r.runWatcher(ctx, user.ID, cmd.Duration("interval"))
}

// runWatcher runs the TUI, then waits for any run it started in this process.
func (r *Runner) runWatcher(ctx context.Context, userID int64, interval time.Duration) error {
	model := ui.NewModel(ctx, ui.Opts{Source: jobSource{r}, UserID: userID, Interval: interval})
	p := tea.NewProgram(model)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	if r.engine != nil && r.engine.Running(userID) {
		r.writePlain("→ Waiting for the current run to finish...\n")
		r.engine.Wait()
	}
	return nil
}

// useFileLogger redirects logs to a file so they do not interfere with TUI rendering.
func (r *Runner) useFileLogger() error {
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)
	return nil
}
