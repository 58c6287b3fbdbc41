// Package roster keeps the faculty list and each member's presence.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/your-org/presence/internal/models"
)

var (
	ErrNotFound = errors.New("faculty member not found")
	ErrExists   = errors.New("faculty member already exists")
	ErrInvalid  = errors.New("invalid faculty member")
)

// Repository persists roster entries one member at a time.
type Repository interface {
	LoadFaculty(ctx context.Context) ([]models.Faculty, error)
	SaveFaculty(ctx context.Context, f models.Faculty) error
	DeleteFaculty(ctx context.Context, id int) error
}

// Patch carries the editable fields of a roster entry; nil fields are left alone.
type Patch struct {
	Name       *string `json:"name"`
	Department *string `json:"department"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
}

// Roster is the in-memory faculty list, written through to a Repository.
// Names are matched case- and diacritic-insensitively.
type Roster struct {
	mu      sync.RWMutex
	repo    Repository
	members []models.Faculty // ordered by ID
	now     func() time.Time
}

func New(repo Repository) *Roster {
	return &Roster{repo: repo, now: time.Now}
}

func (r *Roster) Load(ctx context.Context) error {
	list, err := r.repo.LoadFaculty(ctx)
	if err != nil {
		return fmt.Errorf("load faculty: %w", err)
	}
	members := make([]models.Faculty, len(list))
	for i, f := range list {
		members[i] = f.Clone()
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	r.mu.Lock()
	r.members = members
	r.mu.Unlock()
	return nil
}

// ListIdentities returns a copy of every roster entry.
func (r *Roster) ListIdentities() []models.Faculty {
	return r.filter(func(models.Faculty) bool { return true })
}

func (r *Roster) Present() []models.Faculty {
	return r.filter(func(f models.Faculty) bool { return f.Status == models.PresenceStatusPresent })
}

func (r *Roster) Absent() []models.Faculty {
	return r.filter(func(f models.Faculty) bool { return f.Status != models.PresenceStatusPresent })
}

// Search matches term against name and department, ignoring case and diacritics.
func (r *Roster) Search(term string) []models.Faculty {
	needle := normalize(term)
	return r.filter(func(f models.Faculty) bool {
		return strings.Contains(normalize(f.Name), needle) ||
			strings.Contains(normalize(f.Department), needle)
	})
}

func (r *Roster) Get(name string) (models.Faculty, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexByName(name)
	if i < 0 {
		return models.Faculty{}, ErrNotFound
	}
	return r.members[i].Clone(), nil
}

// Add inserts a new member with the next free id. New members start absent.
func (r *Roster) Add(ctx context.Context, f models.Faculty) (models.Faculty, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return models.Faculty{}, fmt.Errorf("%w: name is required", ErrInvalid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexByName(f.Name) >= 0 {
		return models.Faculty{}, fmt.Errorf("%w: %s", ErrExists, f.Name)
	}

	now := r.now()
	f = f.Clone()
	f.ID = r.nextID()
	if f.Status == "" {
		f.Status = models.PresenceStatusAbsent
	}
	f.CreatedAt = now
	f.UpdatedAt = now

	if err := r.repo.SaveFaculty(ctx, f); err != nil {
		return models.Faculty{}, fmt.Errorf("save faculty %s: %w", f.Name, err)
	}
	r.members = append(r.members, f)
	return f.Clone(), nil
}

// Update applies patch to the member with the given id.
func (r *Roster) Update(ctx context.Context, id int, patch Patch) (models.Faculty, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByID(id)
	if i < 0 {
		return models.Faculty{}, ErrNotFound
	}

	f := r.members[i].Clone()
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return models.Faculty{}, fmt.Errorf("%w: name is required", ErrInvalid)
		}
		if j := r.indexByName(name); j >= 0 && j != i {
			return models.Faculty{}, fmt.Errorf("%w: %s", ErrExists, name)
		}
		f.Name = name
	}
	if patch.Department != nil {
		f.Department = *patch.Department
	}
	if patch.Email != nil {
		f.Email = *patch.Email
	}
	if patch.Phone != nil {
		f.Phone = *patch.Phone
	}
	f.UpdatedAt = r.now()

	if err := r.commit(ctx, i, f); err != nil {
		return models.Faculty{}, err
	}
	return f.Clone(), nil
}

// Delete removes the named member.
func (r *Roster) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByName(name)
	if i < 0 {
		return ErrNotFound
	}
	if err := r.repo.DeleteFaculty(ctx, r.members[i].ID); err != nil {
		return fmt.Errorf("delete faculty %s: %w", name, err)
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	return nil
}

// UpdateLastSeen records when the member was last recognized.
func (r *Roster) UpdateLastSeen(ctx context.Context, name string, ts time.Time) error {
	return r.modify(ctx, name, func(f *models.Faculty) {
		t := ts
		f.LastSeen = &t
	})
}

func (r *Roster) UpdateStatus(ctx context.Context, name string, status models.PresenceStatus) error {
	if status != models.PresenceStatusPresent && status != models.PresenceStatusAbsent {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	return r.modify(ctx, name, func(f *models.Faculty) {
		f.Status = status
	})
}

// MarkSeen sets last-seen and present status in a single write.
func (r *Roster) MarkSeen(ctx context.Context, name string, ts time.Time) error {
	return r.modify(ctx, name, func(f *models.Faculty) {
		t := ts
		f.LastSeen = &t
		f.Status = models.PresenceStatusPresent
	})
}

// SetImageUploaded flags whether a reference image is enrolled for the member.
func (r *Roster) SetImageUploaded(ctx context.Context, name string, uploaded bool) error {
	return r.modify(ctx, name, func(f *models.Faculty) {
		f.ImageUploaded = uploaded
	})
}

func (r *Roster) modify(ctx context.Context, name string, fn func(f *models.Faculty)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByName(name)
	if i < 0 {
		return ErrNotFound
	}
	f := r.members[i].Clone()
	fn(&f)
	f.UpdatedAt = r.now()
	return r.commit(ctx, i, f)
}

// commit persists f and replaces members[i]. Callers hold r.mu.
func (r *Roster) commit(ctx context.Context, i int, f models.Faculty) error {
	if err := r.repo.SaveFaculty(ctx, f); err != nil {
		return fmt.Errorf("save faculty %s: %w", f.Name, err)
	}
	r.members[i] = f
	return nil
}

func (r *Roster) filter(keep func(models.Faculty) bool) []models.Faculty {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Faculty, 0, len(r.members))
	for _, f := range r.members {
		if keep(f) {
			out = append(out, f.Clone())
		}
	}
	return out
}

func (r *Roster) indexByName(name string) int {
	key := normalize(name)
	for i := range r.members {
		if normalize(r.members[i].Name) == key {
			return i
		}
	}
	return -1
}

func (r *Roster) indexByID(id int) int {
	for i := range r.members {
		if r.members[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Roster) nextID() int {
	max := 0
	for _, f := range r.members {
		if f.ID > max {
			max = f.ID
		}
	}
	return max + 1
}

// normalize lowercases s and strips diacritical marks ("Jiří" -> "jiri").
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, _ := transform.String(t, s)
	return strings.ToLower(strings.TrimSpace(out))
}
