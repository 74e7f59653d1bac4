package localstore

import (
	"context"
	"database/sql"
	"errors"

	"EduTrack-web/internal/platform/db"
)

const schemaLocalStorage = `
CREATE TABLE IF NOT EXISTS local_storage (
	storage_key   VARCHAR(191) NOT NULL PRIMARY KEY,
	storage_value MEDIUMTEXT   NOT NULL,
	updated_at    DATETIME(6)  NOT NULL
) DEFAULT CHARSET=utf8mb4`

type MySQL struct{ db *sql.DB }

func NewMySQL(conn *sql.DB) *MySQL { return &MySQL{db: conn} }

func (s *MySQL) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaLocalStorage)
	return err
}

func (s *MySQL) Get(ctx context.Context, key string) (string, bool, error) {
	return get(ctx, s.db, key, false)
}

func (s *MySQL) Set(ctx context.Context, key, value string) error {
	return put(ctx, s.db, key, value)
}

func (s *MySQL) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM local_storage WHERE storage_key = ?`, key)
	return err
}

// Update: 行ロック（SELECT ... FOR UPDATE）を取ってから書き戻す
func (s *MySQL) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		old, ok, err := get(ctx, tx, key, true)
		if err != nil {
			return err
		}
		v, err := fn(old, ok)
		if err != nil {
			return err
		}
		return put(ctx, tx, key, v)
	})
}

func get(ctx context.Context, q db.DBTX, key string, forUpdate bool) (string, bool, error) {
	stmt := `SELECT storage_value FROM local_storage WHERE storage_key = ?`
	if forUpdate {
		stmt += ` FOR UPDATE`
	}
	var v string
	err := q.QueryRowContext(ctx, stmt, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func put(ctx context.Context, q db.DBTX, key, value string) error {
	_, err := q.ExecContext(ctx, `
	INSERT INTO local_storage (storage_key, storage_value, updated_at)
	VALUES (?, ?, UTC_TIMESTAMP(6))
	ON DUPLICATE KEY UPDATE
	storage_value = VALUES(storage_value),
	updated_at    = VALUES(updated_at)`, key, value)
	return err
}
