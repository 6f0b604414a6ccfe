package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/repositories"
	"github.com/desertthunder/genrify/internal/services"
	"github.com/desertthunder/genrify/internal/shared"
	"github.com/desertthunder/genrify/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultConfigPath = "config.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies not supplied through [RunnerOpts] are built on first use from the loaded config.
type Runner struct {
	config     *shared.Config
	configPath string
	loaded     bool
	library    services.MusicService
	users      models.UserStore
	settings   models.SettingsStore
	jobs       models.JobStore
	tokens     services.TokenProvider
	engine     *tasks.GenreEngine
	progress   chan tasks.ProgressUpdate
	db         *sql.DB
	logger     *log.Logger
	output     io.Writer
	browser    func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Library    services.MusicService
	Users      models.UserStore
	Settings   models.SettingsStore
	Jobs       models.JobStore
	Tokens     services.TokenProvider
	Logger     *log.Logger
	Output     io.Writer
	// Browser opens the authorization URL, defaults to [shared.OpenBrowser]
	Browser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	loaded := opts.Config != nil
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = defaultConfigPath
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Browser == nil {
		opts.Browser = shared.OpenBrowser
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		loaded:     loaded,
		library:    opts.Library,
		users:      opts.Users,
		settings:   opts.Settings,
		jobs:       opts.Jobs,
		tokens:     opts.Tokens,
		logger:     opts.Logger,
		output:     opts.Output,
		browser:    opts.Browser,
	}
}

// SetLogger replaces the logger used by the runner and anything it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, settingsCommand, processCommand, statsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the config named by --config unless one was injected, then applies the log level.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}

	if !r.loaded {
		config, err := shared.LoadConfigOrDefault(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.loaded = true
	}

	level := r.config.Log.Level
	if cmd.Bool("verbose") {
		level = "debug"
	}
	ll, err := shared.ParseLogLevel(level)
	if err != nil {
		return ctx, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	shared.SetLogLevel(r.logger, ll)
	return ctx, nil
}

// Close releases the database opened by the runner, if any.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// musicService returns the injected library or builds a Spotify client from the config.
func (r *Runner) musicService() (services.MusicService, error) {
	if r.library != nil {
		return r.library, nil
	}

	creds := r.config.Credentials.Spotify
	if !creds.Valid() {
		return nil, fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s or %s/%s",
			shared.ErrMissingCredentials, r.configPath, shared.EnvClientID, shared.EnvClientSecret)
	}

	svc, err := services.NewSpotifyService(creds.Map(), services.SpotifyOpts{
		BaseURL:   r.config.Spotify.BaseURL,
		RateLimit: r.config.Spotify.RateLimit,
		Burst:     r.config.Spotify.Burst,
		Timeout:   r.config.Spotify.Timeout(),
		Logger:    r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w", err)
	}
	r.library = svc
	return svc, nil
}

// stores opens the sqlite database when the stores were not injected.
func (r *Runner) stores() error {
	if r.users != nil && r.settings != nil && r.jobs != nil {
		return nil
	}

	r.logger.Debug("opening database", "path", r.config.Database.Path)
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	r.db = db

	if r.users == nil {
		r.users = repositories.NewUserRepository(db)
	}
	if r.settings == nil {
		r.settings = repositories.NewSettingsRepository(db)
	}
	if r.jobs == nil {
		r.jobs = repositories.NewJobRepository(db)
	}
	return nil
}

type oauthConfigurer interface {
	GetOAuthConfig() *oauth2.Config
}

// tokenProvider returns the injected provider or one that refreshes through the Spotify OAuth config.
func (r *Runner) tokenProvider() (services.TokenProvider, error) {
	if r.tokens != nil {
		return r.tokens, nil
	}
	if err := r.stores(); err != nil {
		return nil, err
	}
	library, err := r.musicService()
	if err != nil {
		return nil, err
	}

	oc, ok := library.(oauthConfigurer)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support token refresh", shared.ErrServiceUnavailable, library.Name())
	}
	r.tokens = services.NewOAuthTokenProvider(oc.GetOAuthConfig(), r.users, r.logger)
	return r.tokens, nil
}

// genreEngine builds the processing engine once all of its dependencies are available.
func (r *Runner) genreEngine() (*tasks.GenreEngine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	library, err := r.musicService()
	if err != nil {
		return nil, err
	}
	tokens, err := r.tokenProvider()
	if err != nil {
		return nil, err
	}
	if err := r.stores(); err != nil {
		return nil, err
	}

	r.progress = make(chan tasks.ProgressUpdate, 64)
	engine, err := tasks.NewGenreEngine(tasks.EngineOpts{
		Library:  library,
		Users:    r.users,
		Settings: r.settings,
		Jobs:     r.jobs,
		Tokens:   tokens,
		Logger:   r.logger,
		Progress: r.progress,
	})
	if err != nil {
		return nil, err
	}
	r.engine = engine
	return engine, nil
}

// currentUser loads the user selected by --user.
func (r *Runner) currentUser(ctx context.Context, cmd *cli.Command) (*models.User, error) {
	if err := r.stores(); err != nil {
		return nil, err
	}

	id := int64(cmd.Int("user"))
	user, err := r.users.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: run `genrify auth login` first", err)
	}
	return user, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
