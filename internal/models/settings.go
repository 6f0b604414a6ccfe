package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/desertthunder/genrify/internal/shared"
)

// MaxPrefixLength caps the playlist prefix, counted in runes.
const MaxPrefixLength = 50

// Settings is the per-user configuration read once when a run starts.
type Settings struct {
	ID                  int64     `json:"id"`
	UserID              int64     `json:"userId"`
	UseAudioFeatures    bool      `json:"useAudioFeatures"`
	UseArtistGenres     bool      `json:"useArtistGenres"`
	MinSongsPerPlaylist int       `json:"minSongsPerPlaylist"`
	MakePlaylistsPublic bool      `json:"makePlaylistsPublic"`
	AddEmojis           bool      `json:"addEmojis"`
	PlaylistPrefix      string    `json:"playlistPrefix"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// DefaultSettings returns the settings created for a user on first login.
func DefaultSettings(userID int64) *Settings {
	return &Settings{
		UserID:              userID,
		UseAudioFeatures:    true,
		UseArtistGenres:     true,
		MinSongsPerPlaylist: 10,
		MakePlaylistsPublic: false,
		AddEmojis:           true,
		PlaylistPrefix:      "",
	}
}

// SettingsPatch lists the settings a user may change. Nil fields are left untouched.
type SettingsPatch struct {
	UseAudioFeatures    *bool   `json:"useAudioFeatures,omitempty"`
	UseArtistGenres     *bool   `json:"useArtistGenres,omitempty"`
	MinSongsPerPlaylist *int    `json:"minSongsPerPlaylist,omitempty"`
	MakePlaylistsPublic *bool   `json:"makePlaylistsPublic,omitempty"`
	AddEmojis           *bool   `json:"addEmojis,omitempty"`
	PlaylistPrefix      *string `json:"playlistPrefix,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SettingsPatch) Empty() bool {
	return p.UseAudioFeatures == nil && p.UseArtistGenres == nil && p.MinSongsPerPlaylist == nil &&
		p.MakePlaylistsPublic == nil && p.AddEmojis == nil && p.PlaylistPrefix == nil
}

// Validate rejects values that Apply must never write.
func (p SettingsPatch) Validate() error {
	if p.MinSongsPerPlaylist != nil && *p.MinSongsPerPlaylist < 1 {
		return fmt.Errorf("%w: minimum songs per playlist must be at least 1, got %d", shared.ErrInvalidInput, *p.MinSongsPerPlaylist)
	}
	if p.PlaylistPrefix != nil {
		prefix := *p.PlaylistPrefix
		if n := utf8.RuneCountInString(prefix); n > MaxPrefixLength {
			return fmt.Errorf("%w: playlist prefix is %d characters, limit is %d", shared.ErrInvalidInput, n, MaxPrefixLength)
		}
		if strings.IndexFunc(prefix, unicode.IsControl) >= 0 {
			return fmt.Errorf("%w: playlist prefix contains control characters", shared.ErrInvalidInput)
		}
	}
	return nil
}

// Apply validates the patch and merges it into s. s is unchanged when validation fails.
func (p SettingsPatch) Apply(s *Settings) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.UseAudioFeatures != nil {
		s.UseAudioFeatures = *p.UseAudioFeatures
	}
	if p.UseArtistGenres != nil {
		s.UseArtistGenres = *p.UseArtistGenres
	}
	if p.MinSongsPerPlaylist != nil {
		s.MinSongsPerPlaylist = *p.MinSongsPerPlaylist
	}
	if p.MakePlaylistsPublic != nil {
		s.MakePlaylistsPublic = *p.MakePlaylistsPublic
	}
	if p.AddEmojis != nil {
		s.AddEmojis = *p.AddEmojis
	}
	if p.PlaylistPrefix != nil {
		s.PlaylistPrefix = strings.TrimSpace(*p.PlaylistPrefix)
	}
	return nil
}
