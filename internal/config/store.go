package config

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ppodhajski/RenderingResourceManager/internal/apierr"
)

// Store is the Config Store contract: atomic upsert/delete/list over
// RendererConfig rows keyed by id.
type Store interface {
	// Create inserts a new config. Returns apierr.Conflict if id already exists.
	Create(ctx context.Context, cfg RendererConfig) error
	// Update replaces every field of an existing row. Returns apierr.NotFound
	// if no row with that id exists.
	Update(ctx context.Context, cfg RendererConfig) error
	// Delete removes a row. Returns apierr.NotFound if absent.
	Delete(ctx context.Context, id string) error
	// Get returns a row by id, matched case-sensitively as stored. Returns
	// apierr.NotFound if absent.
	Get(ctx context.Context, id string) (RendererConfig, error)
	// List returns all rows ordered by id ascending.
	List(ctx context.Context) ([]RendererConfig, error)
	// Clear removes all rows.
	Clear(ctx context.Context) error
}

// GetLowercased looks up a config by the lowercased form of id, matching the
// Session Engine's lookup contract: configuration ids are case-insensitive
// from the client's perspective.
func GetLowercased(ctx context.Context, store Store, id string) (RendererConfig, error) {
	return store.Get(ctx, strings.ToLower(id))
}

// MemoryStore is an in-memory Config Store implementation for tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]RendererConfig
}

// NewMemoryStore creates an empty in-memory config store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]RendererConfig)}
}

func (s *MemoryStore) Create(_ context.Context, cfg RendererConfig) error {
	if err := cfg.Validate(); err != nil {
		return apierr.InvalidArgument(err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[cfg.ID]; exists {
		return apierr.Conflict("renderer config " + cfg.ID + " already exists")
	}
	s.rows[cfg.ID] = cfg
	return nil
}

func (s *MemoryStore) Update(_ context.Context, cfg RendererConfig) error {
	if err := cfg.Validate(); err != nil {
		return apierr.InvalidArgument(err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[cfg.ID]; !exists {
		return apierr.NotFound("renderer config " + cfg.ID)
	}
	s.rows[cfg.ID] = cfg
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rows[id]; !exists {
		return apierr.NotFound("renderer config " + id)
	}
	delete(s.rows, id)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (RendererConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, exists := s.rows[id]
	if !exists {
		return RendererConfig{}, apierr.NotFound("renderer config " + id)
	}
	return cfg, nil
}

func (s *MemoryStore) List(_ context.Context) ([]RendererConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RendererConfig, 0, len(s.rows))
	for _, cfg := range s.rows {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string]RendererConfig)
	return nil
}
