// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/genrify/internal/formatter"
	"github.com/desertthunder/genrify/internal/ui"
	"github.com/urfave/cli/v3"
)

// rootFlags are shared by every command.
func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   defaultConfigPath,
			Sources: cli.EnvVars("GENRIFY_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "user",
			Aliases: []string{"u"},
			Usage:   "Local user ID printed by `auth login`",
			Value:   1,
			Sources: cli.EnvVars("GENRIFY_USER"),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, markdown, csv or json",
		Value:   string(formatter.FormatText),
	}
}

// setupCommand handles setup operations for database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
		},
	}
}

// authCommand handles Spotify authorization
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authorize with Spotify using OAuth2 and store the user",
				Action: r.AuthLogin,
			},
			{
				Name:  "status",
				Usage: "Show the stored user and token state",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.AuthStatus,
			},
		},
	}
}

// settingsCommand shows and updates per-user settings
func settingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "Show or change classification and playlist settings",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the current settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
				},
				Action: r.SettingsShow,
			},
			{
				Name:  "set",
				Usage: "Change one or more settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "audio-features", Usage: "Classify by audio features"},
					&cli.BoolFlag{Name: "artist-genres", Usage: "Classify by artist genre tags"},
					&cli.IntFlag{Name: "min-songs", Usage: "Minimum songs for a genre to get a playlist"},
					&cli.BoolFlag{Name: "public", Usage: "Create public playlists"},
					&cli.BoolFlag{Name: "emojis", Usage: "Prefix playlist names with a genre emoji"},
					&cli.StringFlag{Name: "prefix", Usage: "Text placed before every playlist name"},
				},
				Action: r.SettingsSet,
			},
		},
	}
}

// processCommand runs and inspects processing jobs
func processCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "process",
		Aliases: []string{"run"},
		Usage:   "Sort liked songs into genre playlists",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start a run and follow it until it finishes",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "tui", Usage: "Follow progress in the terminal UI"},
				},
				Action: r.ProcessStart,
			},
			{
				Name:  "status",
				Usage: "Print the latest job record",
				Flags: []cli.Flag{
					formatFlag(),
					&cli.BoolFlag{Name: "json", Usage: "Shorthand for --format json"},
				},
				Action: r.ProcessStatus,
			},
			{
				Name:  "watch",
				Usage: "Watch the latest job in the terminal UI",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Usage: "Poll interval", Value: ui.DefaultPollInterval},
				},
				Action: r.ProcessWatch,
			},
			{
				Name:  "report",
				Usage: "Write the latest job record to a file",
				Flags: []cli.Flag{
					formatFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default genrify_report.<ext>)",
					},
				},
				Action: r.ProcessReport,
			},
		},
	}
}

// statsCommand reports library totals
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show liked song and playlist counts",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Stats,
	}
}
