package testdoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"testsummary/internal/gateway/repository/lazyinit"
	"testsummary/internal/testdoc"
)

// PostgresStore keeps documents in test_documents and module_documents.
// The raw document is stored as JSONB next to the listing columns.
type PostgresStore struct {
	db     *sqlx.DB
	schema lazyinit.Gate
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string { return "postgres" }

type testRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	FilePath    string    `db:"file_path"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	Raw         []byte    `db:"raw"`
}

type moduleRow struct {
	ModuleID string `db:"module_id"`
	Name     string `db:"name"`
	Path     string `db:"path"`
	Raw      []byte `db:"raw"`
}

const testColumns = `id, name, description, file_path, created_at, updated_at, raw`

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	return s.schema.Do(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS test_documents (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  file_path TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  raw JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_test_documents_updated_at ON test_documents (updated_at DESC, id);
CREATE INDEX IF NOT EXISTS idx_test_documents_file_path ON test_documents (file_path);

CREATE TABLE IF NOT EXISTS module_documents (
  module_id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  path TEXT NOT NULL DEFAULT '',
  raw JSONB NOT NULL
);
`)
		return err
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetTest(ctx context.Context, id string) (testdoc.Test, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return testdoc.Test{}, err
	}
	var row testRow
	err := s.db.GetContext(ctx, &row, `SELECT `+testColumns+` FROM test_documents WHERE id = $1`, strings.TrimSpace(id))
	if errors.Is(err, sql.ErrNoRows) {
		return testdoc.Test{}, fmt.Errorf("test %q: %w", id, testdoc.ErrNotFound)
	}
	if err != nil {
		return testdoc.Test{}, err
	}
	return row.toTest()
}

func (s *PostgresStore) GetTests(ctx context.Context, ids []string) ([]testdoc.Test, error) {
	if len(ids) == 0 {
		return []testdoc.Test{}, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query, args, err := sqlx.In(`SELECT `+testColumns+` FROM test_documents WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []testRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byID := make(map[string]testdoc.Test, len(rows))
	for _, r := range rows {
		t, err := r.toTest()
		if err != nil {
			return nil, err
		}
		byID[t.ID] = t
	}
	out := make([]testdoc.Test, 0, len(rows))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
			delete(byID, id)
		}
	}
	return out, nil
}

func (s *PostgresStore) GetModules(ctx context.Context, ids []string) (testdoc.ModuleIndex, error) {
	idx := make(testdoc.ModuleIndex, len(ids))
	if len(ids) == 0 {
		return idx, nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	query, args, err := sqlx.In(`SELECT module_id, name, path, raw FROM module_documents WHERE module_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []moduleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, r := range rows {
		m, err := r.toModule()
		if err != nil {
			return nil, err
		}
		idx[m.ModuleID] = m
	}
	return idx, nil
}

func (s *PostgresStore) ListTests(ctx context.Context, page Page) ([]testdoc.Test, int, error) {
	page = page.Normalize()
	if err := s.ensureSchema(ctx); err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM test_documents`); err != nil {
		return nil, 0, err
	}
	var rows []testRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+testColumns+` FROM test_documents
ORDER BY updated_at DESC, id ASC LIMIT $1 OFFSET $2`, page.Size, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	out := make([]testdoc.Test, 0, len(rows))
	for _, r := range rows {
		t, err := r.toTest()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, nil
}

func (s *PostgresStore) UpsertTest(ctx context.Context, t testdoc.Test) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(t.ID)
	if id == "" {
		return fmt.Errorf("%w: test without id", testdoc.ErrInvalidDocument)
	}
	raw, err := json.Marshal(rawOrEmpty(t.Raw))
	if err != nil {
		return fmt.Errorf("encode test %s: %w", id, err)
	}
	now := time.Now().UTC()
	created, updated := t.CreatedAt, t.UpdatedAt
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO test_documents (id, name, description, file_path, created_at, updated_at, raw)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id)
DO UPDATE SET name=EXCLUDED.name,
  description=EXCLUDED.description,
  file_path=EXCLUDED.file_path,
  updated_at=EXCLUDED.updated_at,
  raw=EXCLUDED.raw`,
		id, t.Name, t.Description, t.FilePath, created, updated, raw)
	return err
}

func (s *PostgresStore) UpsertModule(ctx context.Context, m testdoc.Module) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(m.ModuleID)
	if id == "" {
		return fmt.Errorf("%w: module without moduleId", testdoc.ErrInvalidDocument)
	}
	raw, err := json.Marshal(rawOrEmpty(m.Raw))
	if err != nil {
		return fmt.Errorf("encode module %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO module_documents (module_id, name, path, raw)
VALUES ($1,$2,$3,$4)
ON CONFLICT (module_id)
DO UPDATE SET name=EXCLUDED.name, path=EXCLUDED.path, raw=EXCLUDED.raw`,
		id, m.Name, m.Path, raw)
	return err
}

func (r testRow) toTest() (testdoc.Test, error) {
	var raw map[string]any
	if err := json.Unmarshal(r.Raw, &raw); err != nil {
		return testdoc.Test{}, fmt.Errorf("%w: test %s: %v", testdoc.ErrInvalidDocument, r.ID, err)
	}
	t := testdoc.DecodeTest(raw)
	t.ID = r.ID
	t.Name = r.Name
	t.Description = r.Description
	t.FilePath = r.FilePath
	t.CreatedAt = r.CreatedAt.UTC()
	t.UpdatedAt = r.UpdatedAt.UTC()
	return t, nil
}

func (r moduleRow) toModule() (testdoc.Module, error) {
	var raw map[string]any
	if err := json.Unmarshal(r.Raw, &raw); err != nil {
		return testdoc.Module{}, fmt.Errorf("%w: module %s: %v", testdoc.ErrInvalidDocument, r.ModuleID, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if _, ok := raw["moduleId"]; !ok {
		raw["moduleId"] = r.ModuleID
	}
	m, err := testdoc.DecodeModule(raw)
	if err != nil {
		return testdoc.Module{}, err
	}
	m.Name = r.Name
	m.Path = r.Path
	return m, nil
}

func rawOrEmpty(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	return raw
}
