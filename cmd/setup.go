package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/desertthunder/genrify/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	r.logger.Info("initializing database", "path", r.config.Database.Path)

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	return r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)
}

// SetupConfig writes the example config to the --config path unless a file already exists there.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			r.logger.Warn("config file already exists", "path", r.configPath)
			return r.writePlain("Config already exists at %s\n", r.configPath)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}

	r.logger.Info("config file created", "path", r.configPath)
	r.writePlain("✓ Config written to %s\n", r.configPath)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret (or %s/%s)\n", shared.EnvClientID, shared.EnvClientSecret)
	r.writePlain("2. Run 'genrify auth login'\n")
	return nil
}
