package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/genrify/internal/models"
	"github.com/desertthunder/genrify/internal/shared"
)

// MemoryStore keeps users, settings and jobs in maps guarded by one mutex.
//
// IDs come from per-kind counters that only grow. Every read returns a copy.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]*models.User
	settings map[int64]*models.Settings      // by user ID
	jobs     map[int64]*models.ProcessingJob // by user ID

	userSeq, settingsSeq, jobSeq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[int64]*models.User),
		settings: make(map[int64]*models.Settings),
		jobs:     make(map[int64]*models.ProcessingJob),
	}
}

// Users returns the [models.UserStore] view of the store.
func (s *MemoryStore) Users() *MemoryUsers { return &MemoryUsers{s} }

// Settings returns the [models.SettingsStore] view of the store.
func (s *MemoryStore) Settings() *MemorySettings { return &MemorySettings{s} }

// Jobs returns the [models.JobStore] view of the store.
func (s *MemoryStore) Jobs() *MemoryJobs { return &MemoryJobs{s} }

type MemoryUsers struct{ s *MemoryStore }

func (m *MemoryUsers) Get(_ context.Context, id int64) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", shared.ErrNotFound, id)
	}
	c := *u
	return &c, nil
}

func (m *MemoryUsers) GetBySpotifyID(_ context.Context, spotifyID string) (*models.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, u := range m.s.users {
		if u.SpotifyID == spotifyID {
			c := *u
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", shared.ErrNotFound, spotifyID)
}

func (m *MemoryUsers) Create(_ context.Context, user *models.User) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, u := range m.s.users {
		if user.SpotifyID != "" && u.SpotifyID == user.SpotifyID {
			return nil, fmt.Errorf("%w: user %s already exists", shared.ErrInvalidInput, user.SpotifyID)
		}
	}

	m.s.userSeq++
	c := *user
	c.ID = m.s.userSeq
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.s.users[c.ID] = &c

	out := c
	return &out, nil
}

func (m *MemoryUsers) Update(_ context.Context, user *models.User) (*models.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	existing, ok := m.s.users[user.ID]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", shared.ErrNotFound, user.ID)
	}

	c := *user
	c.SpotifyID = existing.SpotifyID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	m.s.users[c.ID] = &c

	out := c
	return &out, nil
}

type MemorySettings struct{ s *MemoryStore }

func (m *MemorySettings) Get(_ context.Context, userID int64) (*models.Settings, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	st, ok := m.s.settings[userID]
	if !ok {
		return nil, fmt.Errorf("%w: settings for user %d", shared.ErrNotFound, userID)
	}
	c := *st
	return &c, nil
}

func (m *MemorySettings) Create(_ context.Context, settings *models.Settings) (*models.Settings, error) {
	if settings.MinSongsPerPlaylist < 1 {
		return nil, fmt.Errorf("%w: minimum songs per playlist must be at least 1", shared.ErrInvalidInput)
	}

	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.settings[settings.UserID]; ok {
		return nil, fmt.Errorf("%w: settings already exist for user %d", shared.ErrInvalidInput, settings.UserID)
	}

	m.s.settingsSeq++
	c := *settings
	c.ID = m.s.settingsSeq
	c.UpdatedAt = time.Now().UTC()
	m.s.settings[c.UserID] = &c

	out := c
	return &out, nil
}

// Update validates and merges patch. The stored settings are untouched when validation fails.
func (m *MemorySettings) Update(_ context.Context, userID int64, patch models.SettingsPatch) (*models.Settings, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	st, ok := m.s.settings[userID]
	if !ok {
		return nil, fmt.Errorf("%w: settings for user %d", shared.ErrNotFound, userID)
	}

	c := *st
	if err := patch.Apply(&c); err != nil {
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()
	m.s.settings[userID] = &c

	out := c
	return &out, nil
}

type MemoryJobs struct{ s *MemoryStore }

func (m *MemoryJobs) Get(_ context.Context, userID int64) (*models.ProcessingJob, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	job, ok := m.s.jobs[userID]
	if !ok {
		return nil, fmt.Errorf("%w: job for user %d", shared.ErrNotFound, userID)
	}
	return job.Clone(), nil
}

func (m *MemoryJobs) Create(_ context.Context, job *models.ProcessingJob) (*models.ProcessingJob, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.jobs[job.UserID]; ok {
		return nil, fmt.Errorf("%w: job already exists for user %d", shared.ErrInvalidInput, job.UserID)
	}
	return m.insert(job), nil
}

func (m *MemoryJobs) Update(_ context.Context, userID int64, patch models.JobPatch) (*models.ProcessingJob, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	job, ok := m.s.jobs[userID]
	if !ok {
		return nil, fmt.Errorf("%w: job for user %d", shared.ErrNotFound, userID)
	}
	patch.Apply(job)
	job.UpdatedAt = time.Now().UTC()
	return job.Clone(), nil
}

func (m *MemoryJobs) Claim(_ context.Context, userID int64, patch models.JobPatch, staleBefore time.Time) (*models.ProcessingJob, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	job, ok := m.s.jobs[userID]
	if !ok {
		fresh := models.IdleJob(userID)
		patch.Apply(fresh)
		return m.insert(fresh), nil
	}
	if !job.Claimable(staleBefore) {
		return nil, fmt.Errorf("%w for user %d (run %s)", shared.ErrJobInProgress, userID, job.RunID)
	}
	patch.Apply(job)
	job.UpdatedAt = time.Now().UTC()
	return job.Clone(), nil
}

func (m *MemoryJobs) UpdateRun(_ context.Context, userID int64, runID string, patch models.JobPatch) (*models.ProcessingJob, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	job, ok := m.s.jobs[userID]
	if !ok {
		return nil, fmt.Errorf("%w: job for user %d", shared.ErrNotFound, userID)
	}
	if job.RunID != runID {
		return nil, fmt.Errorf("%w: run %s for user %d", shared.ErrRunSuperseded, runID, userID)
	}
	patch.Apply(job)
	job.UpdatedAt = time.Now().UTC()
	return job.Clone(), nil
}

// insert stores a copy of job under the next ID. Callers hold the write lock.
func (m *MemoryJobs) insert(job *models.ProcessingJob) *models.ProcessingJob {
	m.s.jobSeq++
	c := job.Clone()
	c.ID = m.s.jobSeq
	if c.Status == "" {
		c.Status = models.StatusIdle
	}
	c.UpdatedAt = time.Now().UTC()
	m.s.jobs[c.UserID] = c
	return c.Clone()
}

var (
	_ models.UserStore     = (*MemoryUsers)(nil)
	_ models.SettingsStore = (*MemorySettings)(nil)
	_ models.JobStore      = (*MemoryJobs)(nil)
	_ models.UserStore     = (*UserRepository)(nil)
	_ models.SettingsStore = (*SettingsRepository)(nil)
	_ models.JobStore      = (*JobRepository)(nil)
)
