// Package tasks orchestrates processing jobs that sort a user's liked songs into genre playlists.
//
// # Pipeline
//
// [GenreEngine.Start] validates the user, resets their job record and runs the pipeline in a
// background goroutine:
//
//  1. fetching (10%): obtain a bearer token and page through the liked songs
//  2. analyzing (30%): attach audio features by track ID and genre tags by artist ID
//  3. creating (60% to 95%): classify, bucketize and create one playlist per bucket
//  4. completed (100%)
//
// Any failure moves the job to error with the failure message. Progress and step keep their last
// persisted values.
//
// # Progress Reporting
//
// Every persisted transition is mirrored as a [ProgressUpdate] on the optional channel passed in
// [EngineOpts]. Updates use select with default to prevent blocking.
//
// Callers in other processes poll the job store instead, see [GenreEngine.Status].
package tasks
