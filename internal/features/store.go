// Package features owns the known identities and their reference vectors.
package features

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/your-org/presence/internal/models"
)

var (
	ErrInvalid  = errors.New("invalid identity")
	ErrNotFound = errors.New("identity not found")
)

// Repository persists identities. Implementations store one record per identity.
type Repository interface {
	LoadIdentities(ctx context.Context) ([]models.Identity, error)
	SaveIdentity(ctx context.Context, id models.Identity) error
	DeleteIdentity(ctx context.Context, id string) error
}

// Store is the in-memory identity gallery, written through to a Repository.
type Store struct {
	mu    sync.RWMutex
	repo  Repository
	items map[string]models.Identity
	now   func() time.Time
}

func NewStore(repo Repository) *Store {
	return &Store{
		repo:  repo,
		items: make(map[string]models.Identity),
		now:   time.Now,
	}
}

// Load replaces the in-memory gallery with the repository contents.
func (s *Store) Load(ctx context.Context) error {
	list, err := s.repo.LoadIdentities(ctx)
	if err != nil {
		return fmt.Errorf("load identities: %w", err)
	}

	items := make(map[string]models.Identity, len(list))
	for _, id := range list {
		if id.ID == "" || len(id.Vector) == 0 {
			continue
		}
		items[id.ID] = id.Clone()
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

// Add stores an identity, replacing any existing vector for the same id.
func (s *Store) Add(ctx context.Context, identity models.Identity) error {
	identity.ID = strings.TrimSpace(identity.ID)
	if identity.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalid)
	}
	if len(identity.Vector) == 0 {
		return fmt.Errorf("%w: feature vector is required", ErrInvalid)
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.ID
	}

	identity = identity.Clone()
	now := s.now()
	identity.ProcessedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.items[identity.ID]
	if existed {
		identity.CreatedAt = prev.CreatedAt
	} else if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}

	s.items[identity.ID] = identity
	if err := s.repo.SaveIdentity(ctx, identity); err != nil {
		if existed {
			s.items[identity.ID] = prev
		} else {
			delete(s.items, identity.ID)
		}
		return fmt.Errorf("save identity %s: %w", identity.ID, err)
	}
	return nil
}

// Remove deletes an identity. It reports false, without error, when the id is unknown.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.items[id]
	if !ok {
		return false, nil
	}

	delete(s.items, id)
	if err := s.repo.DeleteIdentity(ctx, id); err != nil {
		s.items[id] = prev
		return false, fmt.Errorf("delete identity %s: %w", id, err)
	}
	return true, nil
}

// Get returns a copy of one identity.
func (s *Store) Get(id string) (models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.items[id]
	if !ok {
		return models.Identity{}, ErrNotFound
	}
	return identity.Clone(), nil
}

// All returns copies of every identity ordered by id.
func (s *Store) All() []models.Identity {
	s.mu.RLock()
	out := make([]models.Identity, 0, len(s.items))
	for _, identity := range s.items {
		out = append(out, identity.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot implements vision.Gallery.
func (s *Store) Snapshot() []models.Identity {
	return s.All()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
