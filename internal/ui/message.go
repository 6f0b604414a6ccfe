package ui

import (
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/tasks"
)

// statusMsg carries the result of one status read.
type statusMsg struct {
	job *models.ProcessingJob
	err error
}

// tickMsg fires when the poll interval elapses.
type tickMsg time.Time

// startedMsg carries the result of a restart request.
type startedMsg struct {
	result *tasks.StartResult
	err    error
}
