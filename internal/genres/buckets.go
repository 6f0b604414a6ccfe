package genres

import (
	"fmt"

	"github.com/desertthunder/genrify/internal/models"
)

// Classified pairs a track with the labels [Classify] assigned to it.
type Classified struct {
	Track  models.Track
	Labels []string
}

// ClassifyAll runs [Classify] over tracks, keeping their order.
func ClassifyAll(tracks []models.Track, settings models.Settings) []Classified {
	out := make([]Classified, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, Classified{Track: t, Labels: Classify(t, settings)})
	}
	return out
}

// Bucketize groups tracks by label and drops buckets holding fewer than minSize tracks.
//
// Buckets come back in the order their label was first seen; tracks keep input order.
// A minSize below 1 is treated as 1.
func Bucketize(tracks []Classified, minSize int) []models.GenreBucket {
	minSize = max(minSize, 1)

	var order []string
	grouped := make(map[string][]models.Track)
	for _, c := range tracks {
		for _, label := range c.Labels {
			if _, seen := grouped[label]; !seen {
				order = append(order, label)
			}
			grouped[label] = append(grouped[label], c.Track)
		}
	}

	buckets := make([]models.GenreBucket, 0, len(order))
	for _, label := range order {
		if len(grouped[label]) < minSize {
			continue
		}
		buckets = append(buckets, models.GenreBucket{Genre: label, Tracks: grouped[label]})
	}
	return buckets
}

var emojis = map[string]string{
	"Pop":          "🎵",
	"Rock":         "🎸",
	"Hip-Hop":      "🎤",
	"Electronic":   "🎧",
	"Jazz":         "🎷",
	"Classical":    "🎼",
	"Country":      "🤠",
	"Folk":         "🪕",
	"Indie":        "🎨",
	"Alternative":  "🎭",
	"R&B":          "🎶",
	"Soul":         "💫",
	"Blues":        "🎺",
	"Reggae":       "🌴",
	"Punk":         "⚡",
	"Metal":        "🤘",
	"Acoustic":     "🎻",
	"Instrumental": "🎹",
}

// DefaultEmoji is used for genres without an entry in the emoji table.
const DefaultEmoji = "🎵"

// Emoji returns the emoji shown in front of a genre's playlist name.
func Emoji(genre string) string {
	if e, ok := emojis[genre]; ok {
		return e
	}
	return DefaultEmoji
}

// PlaylistName builds "{prefix }{emoji}{genre}" from the user's settings.
func PlaylistName(settings models.Settings, genre string) string {
	name := ""
	if settings.PlaylistPrefix != "" {
		name = settings.PlaylistPrefix + " "
	}
	if settings.AddEmojis {
		name += Emoji(genre)
	}
	return name + genre
}

func PlaylistDescription(genre string, count int) string {
	return fmt.Sprintf("Auto-generated playlist containing %d songs classified as %s", count, genre)
}
