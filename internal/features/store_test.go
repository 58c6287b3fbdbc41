package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/your-org/presence/internal/models"
)

type memRepo struct {
	saved     map[string]models.Identity
	deleted   []string
	saveErr   error
	deleteErr error
	loadErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{saved: make(map[string]models.Identity)}
}

func (m *memRepo) LoadIdentities(ctx context.Context) ([]models.Identity, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	var out []models.Identity
	for _, id := range m.saved {
		out = append(out, id)
	}
	return out, nil
}

func (m *memRepo) SaveIdentity(ctx context.Context, id models.Identity) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved[id.ID] = id
	return nil
}

func (m *memRepo) DeleteIdentity(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.saved, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestStore_AddValidation(t *testing.T) {
	s := NewStore(newMemRepo())
	ctx := context.Background()

	tests := []struct {
		name     string
		identity models.Identity
	}{
		{"missing id", models.Identity{Vector: []float32{1}}},
		{"blank id", models.Identity{ID: "   ", Vector: []float32{1}}},
		{"missing vector", models.Identity{ID: "dr-smith"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Add(ctx, tt.identity); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0 after rejected adds", s.Len())
	}
}

func TestStore_AddOverwrites(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo)
	ctx := context.Background()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return created }
	if err := s.Add(ctx, models.Identity{ID: "dr-smith", DisplayName: "Dr. Smith", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	later := created.Add(time.Hour)
	s.now = func() time.Time { return later }
	if err := s.Add(ctx, models.Identity{ID: "dr-smith", DisplayName: "Dr. Smith", Vector: []float32{0, 1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Get("dr-smith")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Vector[0] != 0 || got.Vector[1] != 1 {
		t.Errorf("vector = %v, want [0 1] (last write wins)", got.Vector)
	}
	if !got.CreatedAt.Equal(created) || !got.ProcessedAt.Equal(later) {
		t.Errorf("created/processed = %v/%v", got.CreatedAt, got.ProcessedAt)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1", s.Len())
	}
	if repo.saved["dr-smith"].Vector[1] != 1 {
		t.Error("repository not updated")
	}
}

func TestStore_AddRollsBackOnSaveFailure(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo)
	ctx := context.Background()

	if err := s.Add(ctx, models.Identity{ID: "a", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	repo.saveErr = errors.New("disk full")
	if err := s.Add(ctx, models.Identity{ID: "a", Vector: []float32{0, 1}}); err == nil {
		t.Fatal("expected error")
	}
	if err := s.Add(ctx, models.Identity{ID: "b", Vector: []float32{0, 1}}); err == nil {
		t.Fatal("expected error")
	}

	got, _ := s.Get("a")
	if got.Vector[0] != 1 {
		t.Errorf("vector = %v, want original after failed overwrite", got.Vector)
	}
	if _, err := s.Get("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(b) err = %v, want ErrNotFound", err)
	}
}

func TestStore_Remove(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(repo)
	ctx := context.Background()
	_ = s.Add(ctx, models.Identity{ID: "a", Vector: []float32{1}})

	ok, err := s.Remove(ctx, "missing")
	if ok || err != nil {
		t.Errorf("Remove(missing) = %v, %v; want false, nil", ok, err)
	}

	repo.deleteErr = errors.New("io error")
	if ok, err := s.Remove(ctx, "a"); ok || err == nil {
		t.Errorf("Remove with failing repo = %v, %v", ok, err)
	}
	if s.Len() != 1 {
		t.Error("identity removed despite repository failure")
	}

	repo.deleteErr = nil
	if ok, err := s.Remove(ctx, "a"); !ok || err != nil {
		t.Errorf("Remove(a) = %v, %v; want true, nil", ok, err)
	}
	if s.Len() != 0 {
		t.Errorf("len = %d, want 0", s.Len())
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := NewStore(newMemRepo())
	ctx := context.Background()
	_ = s.Add(ctx, models.Identity{ID: "b", Vector: []float32{1, 0}})
	_ = s.Add(ctx, models.Identity{ID: "a", Vector: []float32{0, 1}})

	snap := s.Snapshot()
	if len(snap) != 2 || snap[0].ID != "a" || snap[1].ID != "b" {
		t.Fatalf("snapshot = %+v, want ordered a, b", snap)
	}

	snap[0].Vector[0] = 42
	got, _ := s.Get("a")
	if got.Vector[0] != 0 {
		t.Error("snapshot aliases stored vector")
	}
}

func TestStore_Load(t *testing.T) {
	repo := newMemRepo()
	repo.saved["a"] = models.Identity{ID: "a", Vector: []float32{1}}
	repo.saved["bad"] = models.Identity{ID: "bad"}

	s := NewStore(repo)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("len = %d, want 1 (records without vectors skipped)", s.Len())
	}

	repo.loadErr = errors.New("unreachable")
	if err := s.Load(context.Background()); err == nil {
		t.Error("expected load error")
	}
}
