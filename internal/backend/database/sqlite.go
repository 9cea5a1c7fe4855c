package database

import (
	"database/sql"
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`PRAGMA foreign_keys = ON`,
		`CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		image TEXT NOT NULL,
		created_at TEXT NOT NULL,
		processed_at TEXT,
		size REAL
	)`,
		`CREATE TABLE IF NOT EXISTS processed_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		submission_id INTEGER NOT NULL UNIQUE REFERENCES submissions(id),
		scale TEXT NOT NULL,
		d10 REAL,
		d16 REAL,
		d25 REAL,
		d50 REAL,
		d65 REAL,
		d75 REAL,
		d90 REAL NOT NULL,
		d50_mean REAL NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_unprocessed ON submissions (processed_at, created_at)`,
	},
	isUniqueViolation: func(err error) bool {
		return isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE")
	},
	isMissingParent: func(err error) bool {
		return isSQLiteConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, "FOREIGN KEY")
	},
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	return &SQLDatabase{
		db:               db,
		connectionString: connectionString,
		dialect:          sqliteDialect,
	}, nil
}

// isSQLiteConstraint matches the extended result code, falling back to the
// primary code plus message when extended codes are not reported.
func isSQLiteConstraint(err error, extended int, marker string) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	if code == extended {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), marker)
}
