package models

import "time"

// User is a Spotify account that has completed the authorization code flow.
type User struct {
	ID           int64     `json:"id"`
	SpotifyID    string    `json:"spotifyId"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"tokenExpiry"`
	ProfileImage string    `json:"profileImage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasToken reports whether the user has any stored credentials.
func (u *User) HasToken() bool {
	return u.AccessToken != "" || u.RefreshToken != ""
}
