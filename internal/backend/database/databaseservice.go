package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrDuplicateResult is returned when a processed result already exists for a submission.
	ErrDuplicateResult = errors.New("processed result already exists for submission")
	// ErrSubmissionNotFound is returned when a write references a submission that does not exist.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrNoRowReturned is returned when an insert did not hand back the created row.
	ErrNoRowReturned = errors.New("insert returned no row")
)

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	CreateSubmission(ctx context.Context, submission *Submission) (*Submission, error)
	// GetSubmissionByID returns nil without error when no submission has the given id.
	GetSubmissionByID(ctx context.Context, id int64) (*Submission, error)
	GetAllSubmissions(ctx context.Context) ([]*Submission, error)
	// GetUnprocessedSubmissions returns submissions still waiting for a result that were created before the cutoff.
	GetUnprocessedSubmissions(ctx context.Context, createdBefore time.Time) ([]*Submission, error)

	// CreateProcessedResult inserts the result and marks its submission as processed in a single transaction.
	CreateProcessedResult(ctx context.Context, result *ProcessedResult, processedAt time.Time, size float64) (*ProcessedResult, error)
	// GetProcessedResultBySubmissionID returns nil without error when the submission has no result yet.
	GetProcessedResultBySubmissionID(ctx context.Context, submissionID int64) (*ProcessedResult, error)
}
