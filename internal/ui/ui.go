package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/tasks"
)

// DefaultPollInterval is how often the watcher reads the job status.
const DefaultPollInterval = 2 * time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	WatchView ViewState = iota
	ResultView
	ErrorView
)

// JobSource reads and restarts processing runs. [tasks.GenreEngine] satisfies it.
type JobSource interface {
	Status(ctx context.Context, userID int64) (*models.ProcessingJob, error)
	Start(ctx context.Context, userID int64) (*tasks.StartResult, error)
}

// Opts configures a [Model].
type Opts struct {
	Source   JobSource
	UserID   int64
	Interval time.Duration
	// ExitOnDone quits the program as soon as the job reaches a terminal status.
	ExitOnDone bool
}

// Model represents the watcher state.
type Model struct {
	ctx        context.Context
	source     JobSource
	userID     int64
	interval   time.Duration
	exitOnDone bool
	view       ViewState
	job        *models.ProcessingJob
	err        error
	width      int
	height     int
	bar        progress.Model
	playlists  list.Model
	help       help.Model
	keys       keyMap
}

// NewModel creates a watcher for the given user's job.
func NewModel(ctx context.Context, opts Opts) *Model {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	playlists := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	playlists.Title = "Created Playlists"
	playlists.SetShowHelp(false)

	return &Model{
		ctx:        ctx,
		source:     opts.Source,
		userID:     opts.UserID,
		interval:   interval,
		exitOnDone: opts.ExitOnDone,
		view:       WatchView,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		playlists:  playlists,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Job returns the last status read, or nil before the first read completes.
func (m *Model) Job() *models.ProcessingJob { return m.job }

// Err returns the error shown in [ErrorView], if any.
func (m *Model) Err() error { return m.err }

// State returns the current view state.
func (m *Model) State() ViewState { return m.view }

// Init reads the job status immediately.
func (m *Model) Init() tea.Cmd {
	return m.fetchStatus()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(min(msg.Width-8, 60), 10)
		m.playlists.SetSize(max(msg.Width-4, 0), max(msg.Height-8, 0))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case tickMsg:
		return m, m.fetchStatus()

	case statusMsg:
		return m.handleStatus(msg)

	case startedMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to start processing: %w", msg.err)
			m.view = ErrorView
			return m, nil
		}
		m.err = nil
		m.view = WatchView
		return m, m.fetchStatus()
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.playlists, cmd = m.playlists.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchStatus()
	case key.Matches(msg, m.keys.restart):
		if m.job != nil && m.job.Status.IsActive() {
			return m, nil
		}
		return m, m.start()
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.playlists, cmd = m.playlists.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleStatus(msg statusMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.view = ErrorView
		return m, nil
	}

	m.job = msg.job
	switch m.job.Status {
	case models.StatusCompleted:
		m.view = ResultView
		m.playlists.SetItems(playlistItems(m.job.CreatedPlaylists))
	case models.StatusError:
		m.err = fmt.Errorf("%s", m.job.ErrorMessage)
		m.view = ErrorView
	case models.StatusIdle:
		m.view = WatchView
		return m, nil
	default:
		m.view = WatchView
		return m, m.tick()
	}

	if m.exitOnDone {
		return m, tea.Quit
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ResultView:
		return m.renderResult()
	case ErrorView:
		return m.renderError()
	default:
		return m.renderWatch()
	}
}

func (m *Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		job, err := m.source.Status(m.ctx, m.userID)
		return statusMsg{job: job, err: err}
	}
}

func (m *Model) start() tea.Cmd {
	return func() tea.Msg {
		result, err := m.source.Start(m.ctx, m.userID)
		return startedMsg{result: result, err: err}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) renderWatch() string {
	title := styles.title.Render("Sorting Liked Songs by Genre")

	if m.job == nil {
		return fmt.Sprintf("%s\nLoading status...\n", title)
	}
	if m.job.Status == models.StatusIdle {
		helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})
		return fmt.Sprintf("%s\nNo run yet.\n\n%s", title, helpView)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "%s %3d%%\n", m.bar.ViewAs(float64(m.job.Progress)/100), m.job.Progress)
	fmt.Fprintf(&b, "%s\n", styles.step.Render(m.job.CurrentStep))
	if m.job.TotalSongs > 0 {
		fmt.Fprintf(&b, "%s\n", styles.help.Render(fmt.Sprintf("%d liked songs, %d analyzed", m.job.TotalSongs, m.job.ProcessedSongs)))
	}
	if n := len(m.job.CreatedPlaylists); n > 0 {
		fmt.Fprintf(&b, "%s\n", styles.ok.Render(fmt.Sprintf("%d playlists created", n)))
	}
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderResult() string {
	title := styles.ok.Render("✓ Processing Complete!")
	info := fmt.Sprintf("%d songs sorted into %d playlists", m.job.ProcessedSongs, len(m.job.CreatedPlaylists))

	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if len(m.job.CreatedPlaylists) == 0 {
		return fmt.Sprintf("%s\n%s\n%s\n\n%s", title, info,
			styles.warn.Render("No genre had enough songs for a playlist."), helpView)
	}
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, info, m.playlists.View(), helpView)
}

func (m *Model) renderError() string {
	msg := "unknown error"
	if m.err != nil {
		msg = m.err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", styles.err.Render("Processing failed: "+msg))
	if m.job != nil {
		for _, p := range m.job.CreatedPlaylists {
			if p.Status == models.PlaylistError {
				fmt.Fprintf(&b, "  %s\n", styles.warn.Render("✗ "+p.Name))
			} else {
				fmt.Fprintf(&b, "  ✓ %s\n", p.Name)
			}
		}
	}
	fmt.Fprintf(&b, "\n%s", m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit}))
	return b.String()
}
