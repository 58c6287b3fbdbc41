package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/your-org/presence/internal/models"
)

const (
	alertsFile   = "alerts.json"
	settingsFile = "alert_settings.json"
	facultyFile  = "faculty.json"
	featuresDir  = "features"

	featureSuffix = "_features.json"
)

// FileStore keeps the ledger, settings, roster and identities as JSON files
// under one data directory. Every write replaces the whole file atomically.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, featuresDir), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// --- Alerts ---

func (s *FileStore) LoadAlerts(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	if _, err := s.readJSON(alertsFile, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *FileStore) SaveAlerts(ctx context.Context, alerts []models.Alert) error {
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return s.writeJSON(alertsFile, alerts)
}

func (s *FileStore) LoadSettings(ctx context.Context) (models.AlertSettings, bool, error) {
	var settings models.AlertSettings
	ok, err := s.readJSON(settingsFile, &settings)
	return settings, ok, err
}

func (s *FileStore) SaveSettings(ctx context.Context, settings models.AlertSettings) error {
	return s.writeJSON(settingsFile, settings)
}

// --- Roster ---

func (s *FileStore) LoadFaculty(ctx context.Context) ([]models.Faculty, error) {
	var list []models.Faculty
	if _, err := s.readJSON(facultyFile, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// SaveFaculty inserts or replaces one member, rewriting the roster file.
func (s *FileStore) SaveFaculty(ctx context.Context, f models.Faculty) error {
	return s.updateFaculty(func(list []models.Faculty) []models.Faculty {
		for i := range list {
			if list[i].ID == f.ID {
				list[i] = f
				return list
			}
		}
		return append(list, f)
	})
}

func (s *FileStore) DeleteFaculty(ctx context.Context, id int) error {
	return s.updateFaculty(func(list []models.Faculty) []models.Faculty {
		out := list[:0]
		for _, f := range list {
			if f.ID != id {
				out = append(out, f)
			}
		}
		return out
	})
}

func (s *FileStore) updateFaculty(fn func([]models.Faculty) []models.Faculty) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var list []models.Faculty
	if _, err := s.readJSONLocked(facultyFile, &list); err != nil {
		return err
	}
	list = fn(list)
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if list == nil {
		list = []models.Faculty{}
	}
	return s.writeJSONLocked(facultyFile, list)
}

// --- Identities ---

// LoadIdentities reads every <name>_features.json file. Unreadable files are
// logged and skipped.
func (s *FileStore) LoadIdentities(ctx context.Context) ([]models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, featuresDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read features dir: %w", err)
	}

	var out []models.Identity
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), featureSuffix) {
			continue
		}
		var id models.Identity
		if _, err := s.readJSONLocked(filepath.Join(featuresDir, e.Name()), &id); err != nil {
			slog.Warn("skipping feature file", "file", e.Name(), "error", err)
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *FileStore) SaveIdentity(ctx context.Context, id models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSONLocked(featurePath(id.ID), id)
}

func (s *FileStore) DeleteIdentity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, featurePath(id)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove feature file: %w", err)
	}
	return nil
}

// featurePath maps an identity id to its file, e.g. "Dr. Smith" -> features/Dr._Smith_features.json.
func featurePath(id string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, id)
	return filepath.Join(featuresDir, name+featureSuffix)
}

// --- JSON helpers ---

func (s *FileStore) readJSON(name string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readJSONLocked(name, v)
}

func (s *FileStore) writeJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSONLocked(name, v)
}

// readJSONLocked decodes the file into v. It reports false when the file does not exist.
func (s *FileStore) readJSONLocked(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// writeJSONLocked writes v to a temp file and renames it over name.
func (s *FileStore) writeJSONLocked(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
