package sessionstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
)

// Store is the Session Store contract. Every mutation is atomic: Update
// re-reads the row, applies the mutator, and persists the result as one
// indivisible step, so two concurrent calls on the same id form a
// linearizable sequence.
type Store interface {
	// Insert adds a new row. Returns apierr.Conflict on duplicate session_id.
	Insert(ctx context.Context, s Session) error
	// Get returns a row by id. Returns apierr.NotFound if absent.
	Get(ctx context.Context, id string) (Session, error)
	// Update atomically applies mutator to the row named by id and persists
	// the result. Returns apierr.NotFound if the row is absent, or whatever
	// error mutator returned (propagated without being persisted).
	Update(ctx context.Context, id string, mutator Mutator) (Session, error)
	// Delete removes a row. Returns apierr.NotFound if absent.
	Delete(ctx context.Context, id string) error
	// List returns every row, no particular order guaranteed.
	List(ctx context.Context) ([]Session, error)
	// ExpiredBefore returns every row whose ValidUntil is strictly before t.
	ExpiredBefore(ctx context.Context, t time.Time) ([]Session, error)
}

// MemoryStore is an in-memory Session Store for tests and local development.
//
// Row mutations serialize per session id via a dedicated per-row mutex, so
// concurrent operations against unrelated sessions proceed independently.
type MemoryStore struct {
	mapMu sync.Mutex
	rows  map[string]*rowState
}

type rowState struct {
	mu      sync.Mutex
	session Session
	present bool
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*rowState)}
}

func (s *MemoryStore) rowFor(id string) *rowState {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		row = &rowState{}
		s.rows[id] = row
	}
	return row
}

func (s *MemoryStore) Insert(_ context.Context, session Session) error {
	row := s.rowFor(session.ID)
	row.mu.Lock()
	defer row.mu.Unlock()
	if row.present {
		return apierr.Conflict("session " + session.ID + " already exists")
	}
	row.session = session
	row.present = true
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	row := s.rowFor(id)
	row.mu.Lock()
	defer row.mu.Unlock()
	if !row.present {
		return Session{}, apierr.NotFound("session " + id)
	}
	return row.session, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutator Mutator) (Session, error) {
	row := s.rowFor(id)
	row.mu.Lock()
	defer row.mu.Unlock()
	if !row.present {
		return Session{}, apierr.NotFound("session " + id)
	}
	working := row.session
	if err := mutator(&working); err != nil {
		return Session{}, err
	}
	row.session = working
	return working, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	row := s.rowFor(id)
	row.mu.Lock()
	defer row.mu.Unlock()
	if !row.present {
		return apierr.NotFound("session " + id)
	}
	row.present = false
	row.session = Session{}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Session, error) {
	s.mapMu.Lock()
	ids := make([]string, 0, len(s.rows))
	for id := range s.rows {
		ids = append(ids, id)
	}
	s.mapMu.Unlock()

	sort.Strings(ids)
	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		row := s.rowFor(id)
		row.mu.Lock()
		if row.present {
			out = append(out, row.session)
		}
		row.mu.Unlock()
	}
	return out, nil
}

func (s *MemoryStore) ExpiredBefore(ctx context.Context, t time.Time) ([]Session, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, session := range all {
		if session.ValidUntil.Before(t) {
			out = append(out, session)
		}
	}
	return out, nil
}
