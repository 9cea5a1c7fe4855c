package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fixed width keeps the textual timestamps lexicographically ordered.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const submissionColumns = "id, latitude, longitude, image, created_at, processed_at, size"

const resultColumns = "id, submission_id, scale, d10, d16, d25, d50, d65, d75, d90, d50_mean"

// dialect captures what differs between the supported SQL engines.
type dialect struct {
	name              string
	schema            []string
	numberedParams    bool
	isUniqueViolation func(error) bool
	isMissingParent   func(error) bool
}

// SQLDatabase implements DatabaseService over database/sql for any supported dialect.
type SQLDatabase struct {
	db               *sql.DB
	connectionString string
	dialect          dialect
}

func (s *SQLDatabase) CreateDatabase() (*sql.DB, error) {
	for _, statement := range s.dialect.schema {
		if _, err := s.db.Exec(statement); err != nil {
			return nil, fmt.Errorf("%s schema: %w", s.dialect.name, err)
		}
	}
	return s.db, nil
}

func (s *SQLDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLDatabase) DoesDatabaseExist() bool {
	err := s.db.Ping()
	return err == nil
}

func (s *SQLDatabase) CreateSubmission(ctx context.Context, submission *Submission) (*Submission, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`INSERT INTO submissions (latitude, longitude, image, created_at, processed_at, size)
		VALUES (?, ?, ?, ?, NULL, NULL) RETURNING `+submissionColumns),
		submission.Latitude,
		submission.Longitude,
		submission.Image,
		formatTime(submission.CreatedAt),
	)
	created, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRowReturned
	}
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return created, nil
}

func (s *SQLDatabase) GetSubmissionByID(ctx context.Context, id int64) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+submissionColumns+" FROM submissions WHERE id = ?"), id)
	submission, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select submission %d: %w", id, err)
	}
	return submission, nil
}

func (s *SQLDatabase) GetAllSubmissions(ctx context.Context) ([]*Submission, error) {
	return s.querySubmissions(ctx, "SELECT "+submissionColumns+" FROM submissions ORDER BY id")
}

func (s *SQLDatabase) GetUnprocessedSubmissions(ctx context.Context, createdBefore time.Time) ([]*Submission, error) {
	return s.querySubmissions(ctx,
		"SELECT "+submissionColumns+" FROM submissions WHERE processed_at IS NULL AND created_at < ? ORDER BY id",
		formatTime(createdBefore))
}

func (s *SQLDatabase) CreateProcessedResult(ctx context.Context, result *ProcessedResult, processedAt time.Time, size float64) (created *ProcessedResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin correlation: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		s.rebind(`INSERT INTO processed_results (submission_id, scale, d10, d16, d25, d50, d65, d75, d90, d50_mean)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING `+resultColumns),
		result.SubmissionID,
		result.Scale,
		nullFloat(result.D10),
		nullFloat(result.D16),
		nullFloat(result.D25),
		nullFloat(result.D50),
		nullFloat(result.D65),
		nullFloat(result.D75),
		result.D90,
		result.D50Mean,
	)
	created, err = scanResult(row)
	switch {
	case err == nil:
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNoRowReturned
	case s.dialect.isUniqueViolation(err):
		return nil, ErrDuplicateResult
	case s.dialect.isMissingParent(err):
		return nil, ErrSubmissionNotFound
	default:
		return nil, fmt.Errorf("insert processed result: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		s.rebind("UPDATE submissions SET processed_at = ?, size = ? WHERE id = ? AND processed_at IS NULL"),
		formatTime(processedAt), size, result.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("mark submission %d processed: %w", result.SubmissionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("mark submission %d processed: %w", result.SubmissionID, err)
	}
	if affected == 0 {
		return nil, ErrSubmissionNotFound
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit correlation: %w", err)
	}
	return created, nil
}

func (s *SQLDatabase) GetProcessedResultBySubmissionID(ctx context.Context, submissionID int64) (*ProcessedResult, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind("SELECT "+resultColumns+" FROM processed_results WHERE submission_id = ?"), submissionID)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select processed result for submission %d: %w", submissionID, err)
	}
	return result, nil
}

func (s *SQLDatabase) querySubmissions(ctx context.Context, query string, args ...any) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	submissions := make([]*Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return submissions, nil
}

// rebind rewrites ? placeholders into $n for dialects with numbered parameters.
func (s *SQLDatabase) rebind(query string) string {
	if !s.dialect.numberedParams {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var (
		submission  Submission
		createdAt   string
		processedAt sql.NullString
		size        sql.NullFloat64
	)
	if err := row.Scan(
		&submission.ID,
		&submission.Latitude,
		&submission.Longitude,
		&submission.Image,
		&createdAt,
		&processedAt,
		&size,
	); err != nil {
		return nil, err
	}

	var err error
	if submission.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t, err := parseTime(processedAt.String)
		if err != nil {
			return nil, err
		}
		submission.ProcessedAt = &t
	}
	if size.Valid {
		v := size.Float64
		submission.Size = &v
	}
	return &submission, nil
}

func scanResult(row rowScanner) (*ProcessedResult, error) {
	var (
		result                       ProcessedResult
		d10, d16, d25, d50, d65, d75 sql.NullFloat64
	)
	if err := row.Scan(
		&result.ID,
		&result.SubmissionID,
		&result.Scale,
		&d10, &d16, &d25, &d50, &d65, &d75,
		&result.D90,
		&result.D50Mean,
	); err != nil {
		return nil, err
	}
	result.D10 = floatPtr(d10)
	result.D16 = floatPtr(d16)
	result.D25 = floatPtr(d25)
	result.D50 = floatPtr(d50)
	result.D65 = floatPtr(d65)
	result.D75 = floatPtr(d75)
	return &result, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
