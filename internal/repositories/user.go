package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
)

const userColumns = `id, spotify_id, display_name, email, access_token, refresh_token, token_expiry,
	profile_image, created_at, updated_at`

// UserRepository implements [models.UserStore] for [models.User] persistence.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user with a sequence-generated ID. Spotify IDs are unique.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.SpotifyID == "" {
		return nil, fmt.Errorf("%w: spotify id is required", shared.ErrInvalidInput)
	}

	id, err := NextSequence(ctx, r.db, "users")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	created := *user
	created.ID = id
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		created.ID, created.SpotifyID, created.DisplayName, created.Email,
		created.AccessToken, created.RefreshToken, nullTime(&created.TokenExpiry),
		created.ProfileImage, created.CreatedAt, created.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: user %s already exists", shared.ErrInvalidInput, created.SpotifyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &created, nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return user, nil
}

// GetBySpotifyID retrieves a user by their Spotify account ID
func (r *UserRepository) GetBySpotifyID(ctx context.Context, spotifyID string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE spotify_id = ?`, spotifyID)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user", spotifyID)
	}
	return user, nil
}

// Update overwrites the profile and token fields of an existing user
func (r *UserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	updated := *user
	updated.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET display_name = ?, email = ?, access_token = ?, refresh_token = ?, token_expiry = ?,
			profile_image = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		updated.DisplayName, updated.Email, updated.AccessToken, updated.RefreshToken,
		nullTime(&updated.TokenExpiry), updated.ProfileImage, updated.UpdatedAt, updated.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: user %d", shared.ErrNotFound, user.ID)
	}

	return r.Get(ctx, updated.ID)
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user   models.User
		expiry sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.SpotifyID, &user.DisplayName, &user.Email, &user.AccessToken,
		&user.RefreshToken, &expiry, &user.ProfileImage, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		user.TokenExpiry = expiry.Time
	}
	return &user, nil
}
