// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/models"

	"github.com/lib/pq"
)

// Schema creates the generic applications table. Kind-specific fields
// live in the fields JSONB column.
const Schema = `
CREATE TABLE IF NOT EXISTS applications (
	kind          TEXT        NOT NULL,
	id            TEXT        NOT NULL,
	owner_user_id TEXT        NOT NULL,
	status        TEXT        NOT NULL,
	title         TEXT        NOT NULL DEFAULT '',
	fields        JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS applications_owner_idx ON applications (owner_user_id);
`

const selectColumns = `id, kind, owner_user_id, status, title, fields, created_at, updated_at`

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies Schema. It is idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return perrors.NewStoreFailedError("ensure schema", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.ApplicationRecord) error {
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return perrors.NewInvalidInputError(err.Error())
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (id, kind, owner_user_id, status, title, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, string(rec.Kind), rec.OwnerUserID, rec.Status, rec.Title, fields, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return perrors.NewInvalidInputError("record " + rec.ID + " already exists")
		}
		return perrors.NewStoreFailedError("create", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, kind models.Kind, id string) (*models.ApplicationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM applications
		WHERE kind = $1 AND id = $2`, string(kind), id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, perrors.NewResourceNotFoundError(string(kind), id)
	}
	if err != nil {
		return nil, perrors.NewStoreFailedError("get", err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *models.ApplicationRecord) error {
	fields, err := encodeFields(rec.Fields)
	if err != nil {
		return perrors.NewInvalidInputError(err.Error())
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE applications
		SET status = $3, title = $4, fields = $5, updated_at = $6
		WHERE kind = $1 AND id = $2`,
		string(rec.Kind), rec.ID, rec.Status, rec.Title, fields, rec.UpdatedAt,
	)
	if err != nil {
		return perrors.NewStoreFailedError("update", err)
	}
	return expectOneRow(res, rec.Kind, rec.ID, "update")
}

func (s *PostgresStore) Delete(ctx context.Context, kind models.Kind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE kind = $1 AND id = $2`, string(kind), id)
	if err != nil {
		return perrors.NewStoreFailedError("delete", err)
	}
	return expectOneRow(res, kind, id, "delete")
}

func (s *PostgresStore) List(ctx context.Context, kind models.Kind) ([]*models.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM applications
		WHERE kind = $1
		ORDER BY created_at, id`, string(kind))
	if err != nil {
		return nil, perrors.NewStoreFailedError("list", err)
	}
	defer rows.Close()

	out := make([]*models.ApplicationRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, perrors.NewStoreFailedError("list", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.NewStoreFailedError("list", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*models.ApplicationRecord, error) {
	var (
		rec    models.ApplicationRecord
		kind   string
		fields []byte
	)
	err := row.Scan(&rec.ID, &kind, &rec.OwnerUserID, &rec.Status, &rec.Title, &fields, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Kind = models.Kind(kind)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
	}
	return &rec, nil
}

func encodeFields(fields map[string]string) ([]byte, error) {
	if fields == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return b, nil
}

func expectOneRow(res sql.Result, kind models.Kind, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return perrors.NewStoreFailedError(op, err)
	}
	if n == 0 {
		return perrors.NewResourceNotFoundError(string(kind), id)
	}
	return nil
}
