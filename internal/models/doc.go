// Package models defines the domain entities and store contracts for genrify.
//
// The package contains three categories of types:
//
// 1. Catalog data fetched from Spotify for the lifetime of one run
//   - [Track] : a liked song with its artists and optional [AudioFeatures]
//   - [Artist] : artist reference with genre tags attached during analysis
//   - [GenreBucket] : tracks sharing one normalized genre label
//   - [Playlist] : a playlist created by a run
//
// 2. Persistent records
//   - [User] : an authenticated Spotify account and its tokens
//   - [Settings] : per-user classification settings
//   - [ProcessingJob] : the state of the latest run for a user
//
// 3. Patches and stores
//   - [JobPatch] and [SettingsPatch] describe partial updates, merged with Apply
//   - [JobStore], [SettingsStore] and [UserStore] are implemented by the repositories package
package models
