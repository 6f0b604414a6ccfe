package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/genrify/internal/services"
	"github.com/desertthunder/genrify/internal/shared"
	"github.com/urfave/cli/v3"
)

type statsReader interface {
	Stats(ctx context.Context, token string) (*services.LibraryStats, error)
}

// Stats prints the number of liked songs and playlists in the user's library.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(ctx, cmd)
	if err != nil {
		return err
	}
	library, err := r.musicService()
	if err != nil {
		return err
	}
	reader, ok := library.(statsReader)
	if !ok {
		return fmt.Errorf("%w: %s does not report library stats", shared.ErrServiceUnavailable, library.Name())
	}
	tokens, err := r.tokenProvider()
	if err != nil {
		return err
	}

	token, err := tokens.AccessToken(ctx, user)
	if err != nil {
		return err
	}
	stats, err := reader.Stats(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to load library stats: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}
	r.writePlain("Liked songs: %d\n", stats.LikedSongs)
	r.writePlain("Playlists:   %d\n", stats.Playlists)
	return nil
}
