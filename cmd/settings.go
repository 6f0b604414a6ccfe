package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
	"github.com/urfave/cli/v3"
)

// SettingsShow prints the user's settings.
func (r *Runner) SettingsShow(ctx context.Context, cmd *cli.Command) error {
	user, err := r.currentUser(ctx, cmd)
	if err != nil {
		return err
	}

	settings, err := r.settings.Get(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(settings, true)
	}
	r.printSettings(settings)
	return nil
}

// SettingsSet applies the flags that were passed on the command line and prints the result.
func (r *Runner) SettingsSet(ctx context.Context, cmd *cli.Command) error {
	patch := settingsPatch(cmd)
	if patch.Empty() {
		return fmt.Errorf("%w: pass at least one of --audio-features, --artist-genres, --min-songs, --public, --emojis, --prefix",
			shared.ErrMissingArgument)
	}

	user, err := r.currentUser(ctx, cmd)
	if err != nil {
		return err
	}

	settings, err := r.settings.Update(ctx, user.ID, patch)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}

	r.logger.Info("settings updated", "user", user.ID)
	r.writePlain("✓ Settings updated\n\n")
	r.printSettings(settings)
	return nil
}

// settingsPatch builds a patch from the flags the user set explicitly.
func settingsPatch(cmd *cli.Command) models.SettingsPatch {
	var patch models.SettingsPatch
	if cmd.IsSet("audio-features") {
		patch.UseAudioFeatures = models.Ref(cmd.Bool("audio-features"))
	}
	if cmd.IsSet("artist-genres") {
		patch.UseArtistGenres = models.Ref(cmd.Bool("artist-genres"))
	}
	if cmd.IsSet("min-songs") {
		patch.MinSongsPerPlaylist = models.Ref(cmd.Int("min-songs"))
	}
	if cmd.IsSet("public") {
		patch.MakePlaylistsPublic = models.Ref(cmd.Bool("public"))
	}
	if cmd.IsSet("emojis") {
		patch.AddEmojis = models.Ref(cmd.Bool("emojis"))
	}
	if cmd.IsSet("prefix") {
		patch.PlaylistPrefix = models.Ref(cmd.String("prefix"))
	}
	return patch
}

func (r *Runner) printSettings(s *models.Settings) {
	r.writePlainHeader("Settings")
	r.writePlain("Use audio features:   %s\n", yesNo(s.UseAudioFeatures))
	r.writePlain("Use artist genres:    %s\n", yesNo(s.UseArtistGenres))
	r.writePlain("Min songs / playlist: %d\n", s.MinSongsPerPlaylist)
	r.writePlain("Public playlists:     %s\n", yesNo(s.MakePlaylistsPublic))
	r.writePlain("Genre emojis:         %s\n", yesNo(s.AddEmojis))
	if s.PlaylistPrefix == "" {
		r.writePlain("Playlist prefix:      (none)\n")
	} else {
		r.writePlain("Playlist prefix:      %q\n", s.PlaylistPrefix)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
