package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"sortruns/internal/apperrors"
	"sortruns/internal/run"
)

// Memory is an in-memory run.Repository for tests and local development.
type Memory struct {
	mu          sync.RWMutex
	users       map[string]string // username -> id
	dataSources map[string]*run.DataSource
	runs        map[string]*run.Run // userID/identifier -> run
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[string]string),
		dataSources: make(map[string]*run.DataSource),
		runs:        make(map[string]*run.Run),
	}
}

// Ready always succeeds.
func (m *Memory) Ready(context.Context) error {
	return nil
}

func runKey(userID, identifier string) string {
	return userID + "/" + identifier
}

// CreateSubmission persists the data source and run atomically.
func (m *Memory) CreateSubmission(_ context.Context, ds *run.DataSource, r *run.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.DataSourceID = ds.ID

	key := runKey(r.UserID, r.Identifier)
	if _, exists := m.runs[key]; exists {
		return apperrors.Conflict("run", r.Identifier, "run identifier already in use")
	}

	dsCopy := *ds
	rCopy := *r
	m.dataSources[ds.ID] = &dsCopy
	m.runs[key] = &rCopy
	return nil
}

// GetRun loads a run by identifier within a user scope.
func (m *Memory) GetRun(_ context.Context, userID, identifier string) (*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runKey(userID, identifier)]
	if !ok {
		return nil, apperrors.NotFound("run", identifier)
	}
	rCopy := *r
	return &rCopy, nil
}

// GetDataSource loads a data source by ID.
func (m *Memory) GetDataSource(_ context.Context, id string) (*run.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ds, ok := m.dataSources[id]
	if !ok {
		return nil, apperrors.NotFound("data source", id)
	}
	dsCopy := *ds
	return &dsCopy, nil
}

// ListRuns returns all runs owned by a user, most recent first.
func (m *Memory) ListRuns(_ context.Context, userID string) ([]*run.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var runs []*run.Run
	for _, r := range m.runs {
		if r.UserID != userID {
			continue
		}
		rCopy := *r
		runs = append(runs, &rCopy)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].LastRunAt.After(runs[j].LastRunAt)
	})
	return runs, nil
}

// UpdateRunStatus writes the status and captured logs of a run.
func (m *Memory) UpdateRunStatus(_ context.Context, userID, identifier string, status run.State, logs string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runKey(userID, identifier)]
	if !ok {
		return apperrors.NotFound("run", identifier)
	}
	r.Status = status
	r.Logs = logs
	return nil
}

// DeleteRun removes a run record.
func (m *Memory) DeleteRun(_ context.Context, userID, identifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runKey(userID, identifier)
	if _, ok := m.runs[key]; !ok {
		return apperrors.NotFound("run", identifier)
	}
	delete(m.runs, key)
	return nil
}

// GetUserID resolves a username, creating the account on first use.
func (m *Memory) GetUserID(_ context.Context, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.users[username]; ok {
		return id, nil
	}
	id := uuid.NewString()
	m.users[username] = id
	return id, nil
}
