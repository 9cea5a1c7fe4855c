package database

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var postgresDialect = dialect{
	name:           "postgres",
	numberedParams: true,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS submissions (
		id BIGSERIAL PRIMARY KEY,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		image TEXT NOT NULL,
		created_at TEXT NOT NULL,
		processed_at TEXT,
		size DOUBLE PRECISION
	)`,
		`CREATE TABLE IF NOT EXISTS processed_results (
		id BIGSERIAL PRIMARY KEY,
		submission_id BIGINT NOT NULL UNIQUE REFERENCES submissions(id),
		scale TEXT NOT NULL,
		d10 DOUBLE PRECISION,
		d16 DOUBLE PRECISION,
		d25 DOUBLE PRECISION,
		d50 DOUBLE PRECISION,
		d65 DOUBLE PRECISION,
		d75 DOUBLE PRECISION,
		d90 DOUBLE PRECISION NOT NULL,
		d50_mean DOUBLE PRECISION NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_unprocessed ON submissions (processed_at, created_at)`,
	},
	isUniqueViolation: func(err error) bool {
		return postgresErrorCode(err) == pgUniqueViolation
	},
	isMissingParent: func(err error) bool {
		return postgresErrorCode(err) == pgForeignKeyViolation
	},
}

func NewPostgresDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, err
	}

	return &SQLDatabase{
		db:               db,
		connectionString: connectionString,
		dialect:          postgresDialect,
	}, nil
}

func postgresErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
