package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/repositories"
	"github.com/desertthunder/genrify/internal/services"
	"github.com/desertthunder/genrify/internal/shared"
	tu "github.com/desertthunder/genrify/internal/testing"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// spotifyStub adds the login and stats endpoints to [tu.MockLibrary].
type spotifyStub struct {
	*tu.MockLibrary
}

func (s *spotifyStub) GetAuthURL(state string) string {
	return "https://accounts.example/authorize?state=" + state
}

func (s *spotifyStub) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh-" + code, Expiry: time.Now().Add(time.Hour)}, nil
}

func (s *spotifyStub) Stats(_ context.Context, token string) (*services.LibraryStats, error) {
	return &services.LibraryStats{LikedSongs: 321, Playlists: 12}, nil
}

type fixture struct {
	runner  *Runner
	output  *bytes.Buffer
	store   *repositories.MemoryStore
	library *tu.MockLibrary
	config  *shared.Config
}

func newFixture(t *testing.T, library *tu.MockLibrary) *fixture {
	t.Helper()

	if library == nil {
		library = &tu.MockLibrary{}
	}
	config := shared.DefaultConfig()
	config.Database.Path = filepath.Join(t.TempDir(), "genrify.db")

	store := repositories.NewMemoryStore()
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:   config,
		Library:  &spotifyStub{MockLibrary: library},
		Users:    store.Users(),
		Settings: store.Settings(),
		Jobs:     store.Jobs(),
		Tokens:   services.StaticTokenProvider("token"),
		Logger:   shared.NewLogger(&bytes.Buffer{}),
		Output:   output,
		Browser:  func(string) error { return errors.New("no browser in tests") },
	})
	return &fixture{runner: runner, output: output, store: store, library: library, config: config}
}

// seedUser creates user 1 with default settings.
func (f *fixture) seedUser(t *testing.T) *models.User {
	t.Helper()
	ctx := context.Background()
	user, err := f.store.Users().Create(ctx, &models.User{SpotifyID: "spotify-user", DisplayName: "Tester", AccessToken: "token"})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	settings := models.DefaultSettings(user.ID)
	settings.MinSongsPerPlaylist = 2
	if _, err := f.store.Settings().Create(ctx, settings); err != nil {
		t.Fatalf("failed to create settings: %v", err)
	}
	return user
}

func (f *fixture) run(t *testing.T, args ...string) error {
	t.Helper()
	app := &cli.Command{
		Name:     "genrify",
		Flags:    rootFlags(),
		Before:   f.runner.Before,
		Commands: f.runner.register(),
		Writer:   f.output,
	}
	return app.Run(context.Background(), append([]string{"genrify"}, args...))
}

func sampleLibrary() *tu.MockLibrary {
	track := func(id, artist string) models.Track {
		return models.Track{ID: id, Name: "Song " + id, URI: "spotify:track:" + id, Artists: []models.Artist{{ID: artist}}}
	}
	return &tu.MockLibrary{
		Tracks: []models.Track{track("1", "a"), track("2", "a"), track("3", "b"), track("4", "b"), track("5", "c")},
		Genres: map[string][]string{"a": {"Pop"}, "b": {"rock"}, "c": {"jazz"}},
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			store := repositories.NewMemoryStore()
			library := &tu.MockLibrary{}

			runner := NewRunner(RunnerOpts{
				Config:   config,
				Logger:   logger,
				Output:   output,
				Library:  library,
				Users:    store.Users(),
				Settings: store.Settings(),
				Jobs:     store.Jobs(),
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if !runner.loaded {
				t.Error("expected injected config to count as loaded")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.library != library {
				t.Error("expected library to be set")
			}
			if err := runner.stores(); err != nil {
				t.Errorf("expected injected stores to be used, got %v", err)
			}
			if runner.db != nil {
				t.Error("expected no database to be opened")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.loaded {
				t.Error("expected default config to be replaced on Before")
			}
			if runner.configPath != defaultConfigPath {
				t.Errorf("expected %s, got %s", defaultConfigPath, runner.configPath)
			}
		})

		t.Run("with nil logger and output uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.browser == nil {
				t.Error("expected default browser opener")
			}
		})
	})

	t.Run("Before", func(t *testing.T) {
		t.Run("loads config from flag", func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.toml")
			data := fmt.Sprintf("[database]\npath = %q\n\n[log]\nlevel = \"warn\"\n", filepath.Join(dir, "custom.db"))
			if err := os.WriteFile(path, []byte(data), 0644); err != nil {
				t.Fatal(err)
			}

			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}, Logger: shared.NewLogger(&bytes.Buffer{})})
			app := &cli.Command{Name: "genrify", Flags: rootFlags(), Before: runner.Before, Action: func(context.Context, *cli.Command) error { return nil }}
			if err := app.Run(context.Background(), []string{"genrify", "--config", path}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if runner.config.Database.Path != filepath.Join(dir, "custom.db") {
				t.Errorf("expected database path from file, got %s", runner.config.Database.Path)
			}
			if runner.config.Credentials.Spotify.RedirectURI == "" {
				t.Error("expected defaults to fill missing keys")
			}
			if runner.logger.GetLevel().String() != "warn" {
				t.Errorf("expected warn level, got %s", runner.logger.GetLevel())
			}
		})

		t.Run("verbose overrides level", func(t *testing.T) {
			f := newFixture(t, nil)
			f.seedUser(t)
			f.runner.config.Log.Level = "error"
			if err := f.run(t, "--verbose", "settings", "show"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if f.runner.logger.GetLevel().String() != "debug" {
				t.Errorf("expected debug level, got %s", f.runner.logger.GetLevel())
			}
		})

		t.Run("invalid level", func(t *testing.T) {
			f := newFixture(t, nil)
			f.runner.config.Log.Level = "loud"
			err := f.run(t, "settings", "show")
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})

	t.Run("musicService", func(t *testing.T) {
		t.Run("requires credentials", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify = shared.SpotifyConfig{}
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{})})

			if _, err := runner.musicService(); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("builds spotify client from config", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Credentials.Spotify = shared.SpotifyConfig{ClientID: "id", ClientSecret: "secret"}
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(&bytes.Buffer{})})

			library, err := runner.musicService()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if _, ok := library.(*services.SpotifyService); !ok {
				t.Errorf("expected *services.SpotifyService, got %T", library)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		if err := runner.writePlain("hello %s", "world"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := runner.writePlainln("done"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		runner.writePlainHeader("Title")

		result := output.String()
		if !strings.HasPrefix(result, "hello world\ndone\n") {
			t.Errorf("unexpected output %q", result)
		}
		if !strings.Contains(result, "═\nTitle\n═") {
			t.Errorf("expected header, got %q", result)
		}
		if err := NewRunner(RunnerOpts{Output: &tu.FWriter{}}).writePlain("x"); err == nil {
			t.Error("expected error from failing writer")
		}
	})
}

func TestSetupCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		f := newFixture(t, nil)
		path := filepath.Join(t.TempDir(), "nested", "config.toml")

		if err := f.run(t, "--config", path, "setup", "config"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, path)
		if !strings.Contains(f.output.String(), "Config written to") {
			t.Errorf("unexpected output %q", f.output.String())
		}

		f.output.Reset()
		if err := f.run(t, "--config", path, "setup", "config"); err != nil {
			t.Fatalf("expected existing file to be reported, got %v", err)
		}
		if !strings.Contains(f.output.String(), "already exists") {
			t.Errorf("unexpected output %q", f.output.String())
		}
	})

	t.Run("database", func(t *testing.T) {
		f := newFixture(t, nil)

		if err := f.run(t, "setup", "database"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, f.config.Database.Path)
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("login creates user and default settings", func(t *testing.T) {
		library := &tu.MockLibrary{User: &services.SpotifyUser{ID: "spotify-42", DisplayName: "Listener", Email: "l@example.com"}}
		f := newFixture(t, library)

		port := freePort(t)
		f.config.Server.Host = "127.0.0.1"
		f.config.Server.Port = port
		f.config.Credentials.Spotify.RedirectURI = fmt.Sprintf("http://127.0.0.1:%d/auth/callback", port)
		f.runner.browser = func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			callback := fmt.Sprintf("http://127.0.0.1:%d/auth/callback?code=abc&state=%s", port, u.Query().Get("state"))
			resp, err := http.Get(callback)
			if err != nil {
				return err
			}
			resp.Body.Close()
			return nil
		}

		if err := f.run(t, "auth", "login"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		ctx := context.Background()
		user, err := f.store.Users().GetBySpotifyID(ctx, "spotify-42")
		if err != nil {
			t.Fatalf("expected user to be stored, got %v", err)
		}
		if user.AccessToken != "access-abc" || user.RefreshToken != "refresh-abc" {
			t.Errorf("unexpected tokens %q %q", user.AccessToken, user.RefreshToken)
		}
		if user.DisplayName != "Listener" || user.Email != "l@example.com" {
			t.Errorf("unexpected profile %+v", user)
		}

		settings, err := f.store.Settings().Get(ctx, user.ID)
		if err != nil {
			t.Fatalf("expected default settings, got %v", err)
		}
		if settings.MinSongsPerPlaylist != 10 || !settings.AddEmojis {
			t.Errorf("expected default settings, got %+v", settings)
		}

		out := f.output.String()
		if !strings.Contains(out, "Authorization successful") || !strings.Contains(out, "Default settings created") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("login updates existing user", func(t *testing.T) {
		library := &tu.MockLibrary{User: &services.SpotifyUser{ID: "spotify-user", DisplayName: "Renamed"}}
		f := newFixture(t, library)
		existing := f.seedUser(t)

		token := &oauth2.Token{AccessToken: "new-access", Expiry: time.Now().Add(time.Hour)}
		user, created, err := f.runner.saveUser(context.Background(), library.User, token)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if created {
			t.Error("expected existing user to be updated")
		}
		if user.ID != existing.ID || user.AccessToken != "new-access" || user.DisplayName != "Renamed" {
			t.Errorf("unexpected user %+v", user)
		}

		settings, _ := f.store.Settings().Get(context.Background(), user.ID)
		if settings.MinSongsPerPlaylist != 2 {
			t.Error("expected existing settings to be kept")
		}
	})

	t.Run("status", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seedUser(t)

		if err := f.run(t, "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := f.output.String()
		if !strings.Contains(out, "User: Tester (spotify-user)") || !strings.Contains(out, "Token: ✓ Valid") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("status without user", func(t *testing.T) {
		f := newFixture(t, nil)
		if err := f.run(t, "auth", "status"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSettingsCommands(t *testing.T) {
	t.Run("show", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seedUser(t)

		if err := f.run(t, "settings", "show"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		out := f.output.String()
		if !strings.Contains(out, "Min songs / playlist: 2") || !strings.Contains(out, "Playlist prefix:      (none)") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("set only changes passed flags", func(t *testing.T) {
		f := newFixture(t, nil)
		user := f.seedUser(t)

		if err := f.run(t, "settings", "set", "--min-songs", "5", "--prefix", "Auto", "--emojis=false"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		settings, _ := f.store.Settings().Get(context.Background(), user.ID)
		if settings.MinSongsPerPlaylist != 5 || settings.PlaylistPrefix != "Auto" || settings.AddEmojis {
			t.Errorf("unexpected settings %+v", settings)
		}
		if !settings.UseAudioFeatures || !settings.UseArtistGenres {
			t.Error("expected unset flags to keep their values")
		}
	})

	t.Run("set requires a flag", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seedUser(t)
		if err := f.run(t, "settings", "set"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("set rejects invalid minimum", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seedUser(t)
		if err := f.run(t, "settings", "set", "--min-songs", "0"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestProcessCommands(t *testing.T) {
	t.Run("start follows the run to completion", func(t *testing.T) {
		f := newFixture(t, sampleLibrary())
		f.seedUser(t)

		if err := f.run(t, "process", "start"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := f.output.String()
		for _, want := range []string{
			"[fetching]   0% Fetching liked songs...",
			"[completed] 100% Processing complete!",
			"Playlists (2):",
			"🎵Pop (2 songs)",
			"🎸Rock (2 songs)",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if strings.Contains(out, "Jazz") {
			t.Error("expected jazz bucket below the minimum to be dropped")
		}
	})

	t.Run("start reports failure", func(t *testing.T) {
		library := sampleLibrary()
		library.CreateErr = errors.New("quota exceeded")
		library.CreateErrAt = 2
		f := newFixture(t, library)
		f.seedUser(t)

		err := f.run(t, "process", "start")
		if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
			t.Fatalf("expected processing failure, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Error: failed to create playlist") {
			t.Errorf("expected error in report:\n%s", f.output.String())
		}
	})

	t.Run("start without settings", func(t *testing.T) {
		f := newFixture(t, sampleLibrary())
		if _, err := f.store.Users().Create(context.Background(), &models.User{SpotifyID: "x", AccessToken: "t"}); err != nil {
			t.Fatal(err)
		}
		if err := f.run(t, "process", "start"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("status of idle user", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seedUser(t)

		if err := f.run(t, "process", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.output.String() != "[idle] 0%\n" {
			t.Errorf("unexpected output %q", f.output.String())
		}
	})

	t.Run("status as JSON", func(t *testing.T) {
		f := newFixture(t, sampleLibrary())
		f.seedUser(t)
		if err := f.run(t, "process", "start"); err != nil {
			t.Fatal(err)
		}

		f.output.Reset()
		if err := f.run(t, "process", "status", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), `"status": "completed"`) {
			t.Errorf("unexpected output %s", f.output.String())
		}
	})

	t.Run("status rejects unknown format", func(t *testing.T) {
		f := newFixture(t, nil)
		f.seedUser(t)
		if err := f.run(t, "process", "status", "--format", "xml"); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})

	t.Run("report", func(t *testing.T) {
		f := newFixture(t, sampleLibrary())
		f.seedUser(t)

		dir := filepath.Join(t.TempDir(), "exports", "latest")
		path := filepath.Join(dir, "report.md")
		if err := f.run(t, "process", "report", "--format", "md", "-o", path); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound before any run, got %v", err)
		}

		if err := f.run(t, "process", "start"); err != nil {
			t.Fatal(err)
		}
		if err := f.run(t, "process", "report", "--format", "md", "-o", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertDirExists(t, dir)
		if !strings.Contains(tu.MustReadFile(t, path), "# Genre Playlists") {
			t.Error("expected markdown report")
		}
	})
}

func TestStatsCommand(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t)

	if err := f.run(t, "stats"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	out := f.output.String()
	if !strings.Contains(out, "Liked songs: 321") || !strings.Contains(out, "Playlists:   12") {
		t.Errorf("unexpected output %q", out)
	}
}
