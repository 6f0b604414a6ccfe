package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/genrify/internal/models"
)

var _ list.Item = playlistItem{}

// playlistItem wraps [models.CreatedPlaylist] to implement [list.Item].
type playlistItem struct {
	playlist models.CreatedPlaylist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string {
	if i.playlist.Status == models.PlaylistError {
		return "✗ " + i.playlist.Name
	}
	return i.playlist.Name
}

func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%d songs", i.playlist.SongCount)
	if i.playlist.URL != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.URL)
	}
	return desc
}

func playlistItems(playlists []models.CreatedPlaylist) []list.Item {
	items := make([]list.Item, len(playlists))
	for i, p := range playlists {
		items[i] = playlistItem{playlist: p}
	}
	return items
}
