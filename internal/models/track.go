package models

// Track is a liked song. It is enriched in place during analysis and never persisted.
type Track struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Artists       []Artist       `json:"artists"`
	URI           string         `json:"uri"`
	AudioFeatures *AudioFeatures `json:"audioFeatures,omitempty"`
}

// ArtistIDs returns the IDs of the track's artists in credit order, skipping empty IDs.
func (t Track) ArtistIDs() []string {
	ids := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// Artist is an artist credited on a track. Genres is only populated when artist genres are enabled.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres,omitempty"`
}

// AudioFeatures holds Spotify's numeric descriptors for a track.
//
// Most values are in [0,1]; Loudness is in dB and Tempo in BPM.
type AudioFeatures struct {
	ID               string  `json:"id"`
	Acousticness     float64 `json:"acousticness"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Loudness         float64 `json:"loudness"`
	Speechiness      float64 `json:"speechiness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
}

// GenreBucket groups the tracks that carry one normalized genre label.
type GenreBucket struct {
	Genre  string  `json:"genre"`
	Tracks []Track `json:"tracks"`
}

// URIs returns the bucket's track URIs in bucket order.
func (b GenreBucket) URIs() []string {
	uris := make([]string, 0, len(b.Tracks))
	for _, t := range b.Tracks {
		uris = append(uris, t.URI)
	}
	return uris
}

// Names returns the bucket's track names in bucket order.
func (b GenreBucket) Names() []string {
	names := make([]string, 0, len(b.Tracks))
	for _, t := range b.Tracks {
		names = append(names, t.Name)
	}
	return names
}

// Playlist is a playlist created on the user's account.
type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}
