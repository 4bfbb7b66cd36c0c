package patient

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var _ Backend = (*PGStore)(nil)

// The document column is json, not jsonb, so the stored key order survives.
const createCollectionTable = `
	CREATE TABLE IF NOT EXISTS patient_collection (
		name       TEXT PRIMARY KEY,
		document   JSON NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Ping(ctx context.Context) error
}

// PGStore keeps the whole collection as one JSON document in one row of
// patient_collection. Load and Save move the full document, the same
// contract as FileStore.
type PGStore struct {
	conn querier
	name string
}

// NewPGStore returns a store for the named collection row. conn is usually a
// *pgxpool.Pool.
func NewPGStore(conn querier, name string) *PGStore {
	return &PGStore{conn: conn, name: name}
}

func (s *PGStore) Name() string {
	return "postgres"
}

func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, createCollectionTable); err != nil {
		return &StorageError{Op: "schema", Err: err}
	}
	return nil
}

func (s *PGStore) Load(ctx context.Context) (*Collection, error) {
	var doc []byte
	err := s.conn.QueryRow(ctx,
		`SELECT document FROM patient_collection WHERE name = $1`, s.name).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &StorageError{Op: "load", Err: ErrStoreMissing}
		}
		return nil, &StorageError{Op: "load", Err: err}
	}

	c := NewCollection()
	if err := json.Unmarshal(doc, c); err != nil {
		return nil, &StorageError{Op: "parse", Err: err}
	}
	c.Derive()
	return c, nil
}

func (s *PGStore) Save(ctx context.Context, c *Collection) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return &StorageError{Op: "encode", Err: err}
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO patient_collection (name, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		s.name, string(doc))
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

func (s *PGStore) Init(ctx context.Context) (bool, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return false, err
	}
	tag, err := s.conn.Exec(ctx, `
		INSERT INTO patient_collection (name, document)
		VALUES ($1, '{}')
		ON CONFLICT (name) DO NOTHING`, s.name)
	if err != nil {
		return false, &StorageError{Op: "init", Err: err}
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}
