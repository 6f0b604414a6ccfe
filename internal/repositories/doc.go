// Package repositories implements the user, settings and job stores.
//
// Two implementations are provided:
//   - [MemoryStore] : mutex-guarded maps with monotonic ID counters, used by tests and one-shot runs
//   - [UserRepository], [SettingsRepository], [JobRepository] : SQLite persistence so the job can be
//     polled from another process
//
// IDs for SQLite rows come from [NextSequence], which atomically increments per-table counters kept in
// dedicated sequence tables. Lookups for missing records return [shared.ErrNotFound].
package repositories
