package genres

import (
	"slices"
	"strings"

	"github.com/desertthunder/genrify/internal/models"
)

// Unclassified is assigned to tracks that produce no label.
const Unclassified = "Unclassified"

var canonical = map[string]string{
	"pop":          "Pop",
	"rock":         "Rock",
	"hip hop":      "Hip-Hop",
	"hip-hop":      "Hip-Hop",
	"rap":          "Hip-Hop",
	"electronic":   "Electronic",
	"edm":          "Electronic",
	"dance":        "Electronic",
	"jazz":         "Jazz",
	"classical":    "Classical",
	"country":      "Country",
	"folk":         "Folk",
	"indie":        "Indie",
	"alternative":  "Alternative",
	"r&b":          "R&B",
	"soul":         "Soul",
	"blues":        "Blues",
	"reggae":       "Reggae",
	"punk":         "Punk",
	"metal":        "Metal",
	"acoustic":     "Acoustic",
	"instrumental": "Instrumental",
}

// Normalize maps a genre label to its canonical spelling. Lookup ignores case and surrounding
// whitespace; labels outside the table are returned unchanged.
func Normalize(label string) string {
	if c, ok := canonical[strings.ToLower(strings.TrimSpace(label))]; ok {
		return c
	}
	return label
}

// FeatureLabel picks a single label from audio features. The first matching rule wins.
func FeatureLabel(f models.AudioFeatures) string {
	switch {
	case f.Energy > 0.7 && f.Danceability > 0.7:
		return "Electronic"
	case f.Acousticness > 0.6:
		return "Acoustic"
	case f.Instrumentalness > 0.5:
		return "Instrumental"
	case f.Energy > 0.8:
		return "Rock"
	case f.Valence > 0.8:
		return "Pop"
	case f.Speechiness > 0.66:
		return "Hip-Hop"
	default:
		return "Alternative"
	}
}

// Classify returns the normalized labels for a track in first-seen order without duplicates.
//
// Artist tags come first when UseArtistGenres is set, followed by the feature label when
// UseAudioFeatures is set and the track has features attached.
func Classify(track models.Track, settings models.Settings) []string {
	var raw []string
	if settings.UseArtistGenres {
		for _, a := range track.Artists {
			raw = append(raw, a.Genres...)
		}
	}
	if settings.UseAudioFeatures && track.AudioFeatures != nil {
		raw = append(raw, FeatureLabel(*track.AudioFeatures))
	}
	if len(raw) == 0 {
		return []string{Unclassified}
	}

	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		n := Normalize(l)
		if n == "" || slices.Contains(labels, n) {
			continue
		}
		labels = append(labels, n)
	}
	if len(labels) == 0 {
		return []string{Unclassified}
	}
	return labels
}
