package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
)

const settingsColumns = `id, user_id, use_audio_features, use_artist_genres, min_songs_per_playlist,
	make_playlists_public, add_emojis, playlist_prefix, updated_at`

// SettingsRepository implements [models.SettingsStore] with one row per user.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Create inserts settings for a user that has none yet.
func (r *SettingsRepository) Create(ctx context.Context, settings *models.Settings) (*models.Settings, error) {
	if settings.MinSongsPerPlaylist < 1 {
		return nil, fmt.Errorf("%w: minimum songs per playlist must be at least 1", shared.ErrInvalidInput)
	}

	id, err := NextSequence(ctx, r.db, "settings")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	created := *settings
	created.ID = id
	created.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO settings (` + settingsColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		created.ID, created.UserID, created.UseAudioFeatures, created.UseArtistGenres,
		created.MinSongsPerPlaylist, created.MakePlaylistsPublic, created.AddEmojis,
		created.PlaylistPrefix, created.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: settings already exist for user %d", shared.ErrInvalidInput, created.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert settings: %w", err)
	}

	return &created, nil
}

// Get retrieves the settings of a user
func (r *SettingsRepository) Get(ctx context.Context, userID int64) (*models.Settings, error) {
	return getSettings(ctx, r.db, userID)
}

// Update validates and merges patch into the user's settings.
func (r *SettingsRepository) Update(ctx context.Context, userID int64, patch models.SettingsPatch) (*models.Settings, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	settings, err := getSettings(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if err := patch.Apply(settings); err != nil {
		return nil, err
	}
	settings.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE settings
		SET use_audio_features = ?, use_artist_genres = ?, min_songs_per_playlist = ?,
			make_playlists_public = ?, add_emojis = ?, playlist_prefix = ?, updated_at = ?
		WHERE user_id = ?
	`
	_, err = tx.ExecContext(ctx, query,
		settings.UseAudioFeatures, settings.UseArtistGenres, settings.MinSongsPerPlaylist,
		settings.MakePlaylistsPublic, settings.AddEmojis, settings.PlaylistPrefix, settings.UpdatedAt, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settings: %w", err)
	}
	return settings, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSettings(ctx context.Context, q querier, userID int64) (*models.Settings, error) {
	var s models.Settings
	err := q.QueryRowContext(ctx, `SELECT `+settingsColumns+` FROM settings WHERE user_id = ?`, userID).Scan(
		&s.ID, &s.UserID, &s.UseAudioFeatures, &s.UseArtistGenres, &s.MinSongsPerPlaylist,
		&s.MakePlaylistsPublic, &s.AddEmojis, &s.PlaylistPrefix, &s.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err, "settings for user", userID)
	}
	return &s, nil
}
