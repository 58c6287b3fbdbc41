package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Alerts ---

var alertColumns = []string{
	"id", "position", "type", "title", "description", "priority", "status",
	"created_at", "last_seen_at", "resolved_at", "occurrences",
	"faculty_name", "camera", "confidence", "snapshot_key",
}

func (s *PostgresStore) LoadAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, type, title, description, priority, status, created_at, last_seen_at, resolved_at,
		        occurrences, faculty_name, camera, confidence, snapshot_key
		 FROM alerts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.Type, &a.Title, &a.Description, &a.Priority, &a.Status,
			&a.CreatedAt, &a.LastSeenAt, &a.ResolvedAt, &a.Occurrences,
			&a.FacultyName, &a.Camera, &a.Confidence, &a.SnapshotKey); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}

// SaveAlerts replaces the whole ledger in one transaction, keeping slice order
// in the position column.
func (s *PostgresStore) SaveAlerts(ctx context.Context, alerts []models.Alert) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save alerts: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM alerts`); err != nil {
		return fmt.Errorf("clear alerts: %w", err)
	}

	if len(alerts) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"alerts"}, alertColumns,
			pgx.CopyFromSlice(len(alerts), func(i int) ([]any, error) {
				a := alerts[i]
				return []any{
					a.ID, i, string(a.Type), a.Title, a.Description, string(a.Priority), string(a.Status),
					a.CreatedAt, a.LastSeenAt, a.ResolvedAt, a.Occurrences,
					a.FacultyName, a.Camera, a.Confidence, a.SnapshotKey,
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy alerts: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit alerts: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadSettings(ctx context.Context) (models.AlertSettings, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT settings FROM alert_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.AlertSettings{}, false, nil
	}
	if err != nil {
		return models.AlertSettings{}, false, fmt.Errorf("load alert settings: %w", err)
	}

	var settings models.AlertSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return models.AlertSettings{}, false, fmt.Errorf("decode alert settings: %w", err)
	}
	return settings, true, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, settings models.AlertSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode alert settings: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO alert_settings (id, settings, updated_at) VALUES (1, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = NOW()`,
		raw)
	if err != nil {
		return fmt.Errorf("save alert settings: %w", err)
	}
	return nil
}

// --- Identities ---

func (s *PostgresStore) LoadIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, embedding, image_key, created_at, processed_at FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var (
			ident models.Identity
			vec   pgvector.Vector
		)
		if err := rows.Scan(&ident.ID, &ident.DisplayName, &vec, &ident.ImageKey,
			&ident.CreatedAt, &ident.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		ident.Vector = vec.Slice()
		out = append(out, ident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveIdentity(ctx context.Context, ident models.Identity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO identities (id, display_name, embedding, image_key, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   embedding = EXCLUDED.embedding,
		   image_key = EXCLUDED.image_key,
		   processed_at = EXCLUDED.processed_at`,
		ident.ID, ident.DisplayName, pgvector.NewVector(ident.Vector), ident.ImageKey,
		ident.CreatedAt, ident.ProcessedAt)
	if err != nil {
		return fmt.Errorf("save identity %s: %w", ident.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete identity %s: %w", id, err)
	}
	return nil
}

// --- Roster ---

func (s *PostgresStore) LoadFaculty(ctx context.Context) ([]models.Faculty, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, department, email, phone, status, last_seen, image_uploaded, created_at, updated_at
		 FROM faculty ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load faculty: %w", err)
	}
	defer rows.Close()

	var out []models.Faculty
	for rows.Next() {
		var f models.Faculty
		if err := rows.Scan(&f.ID, &f.Name, &f.Department, &f.Email, &f.Phone, &f.Status,
			&f.LastSeen, &f.ImageUploaded, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan faculty: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faculty: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveFaculty(ctx context.Context, f models.Faculty) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO faculty (id, name, department, email, phone, status, last_seen, image_uploaded, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   department = EXCLUDED.department,
		   email = EXCLUDED.email,
		   phone = EXCLUDED.phone,
		   status = EXCLUDED.status,
		   last_seen = EXCLUDED.last_seen,
		   image_uploaded = EXCLUDED.image_uploaded,
		   updated_at = EXCLUDED.updated_at`,
		f.ID, f.Name, f.Department, f.Email, f.Phone, string(f.Status), f.LastSeen,
		f.ImageUploaded, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save faculty %d: %w", f.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteFaculty(ctx context.Context, id int) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM faculty WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete faculty %d: %w", id, err)
	}
	return nil
}
