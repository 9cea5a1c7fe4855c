package core

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jo-hoe/sandmap/internal/backend/database"
)

// CorrelateRequest carries the worker's results for one submission.
// Percentiles other than D90 and D50Mean are optional.
type CorrelateRequest struct {
	SubmissionID int64    `validate:"gt=0"`
	Scale        string   `validate:"required"`
	Size         *float64 `validate:"required,finite"`
	D10          *float64 `validate:"omitempty,finite"`
	D16          *float64 `validate:"omitempty,finite"`
	D25          *float64 `validate:"omitempty,finite"`
	D50          *float64 `validate:"omitempty,finite"`
	D65          *float64 `validate:"omitempty,finite"`
	D75          *float64 `validate:"omitempty,finite"`
	D90          *float64 `validate:"required,finite"`
	D50Mean      *float64 `validate:"required,finite"`
}

// Correlate attaches the worker's result to its submission and marks the
// submission processed. A submission can be correlated only once.
func (service *CoreService) Correlate(ctx context.Context, request CorrelateRequest) (*database.ProcessedResult, error) {
	if err := service.validate.Struct(request); err != nil {
		return nil, validationError(err)
	}

	if _, err := service.GetSubmission(ctx, request.SubmissionID); err != nil {
		return nil, err
	}

	dbCtx, cancel := withTimeout(ctx, service.config.Timeouts.Database)
	defer cancel()

	result, err := service.databaseService.CreateProcessedResult(dbCtx, &database.ProcessedResult{
		SubmissionID: request.SubmissionID,
		Scale:        request.Scale,
		D10:          request.D10,
		D16:          request.D16,
		D25:          request.D25,
		D50:          request.D50,
		D65:          request.D65,
		D75:          request.D75,
		D90:          *request.D90,
		D50Mean:      *request.D50Mean,
	}, service.now(), *request.Size)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrDuplicateResult):
		slog.Warn("duplicate result for submission rejected", "submission_id", request.SubmissionID)
		return nil, newError(KindConflict, err, "submission %d already has a processed result", request.SubmissionID)
	case errors.Is(err, database.ErrSubmissionNotFound):
		return nil, newError(KindNotFound, err, "submission %d not found", request.SubmissionID)
	default:
		return nil, newError(KindPersistenceFailed, err, "failed to store result for submission %d", request.SubmissionID)
	}

	slog.Info("submission processed",
		"submission_id", request.SubmissionID,
		"result_id", result.ID,
		"size", *request.Size,
		"scale", request.Scale)
	return result, nil
}

// GetResult returns the processed result of a submission, or NotFound while it is still pending.
func (service *CoreService) GetResult(ctx context.Context, submissionID int64) (*database.ProcessedResult, error) {
	ctx, cancel := withTimeout(ctx, service.config.Timeouts.Database)
	defer cancel()

	result, err := service.databaseService.GetProcessedResultBySubmissionID(ctx, submissionID)
	if err != nil {
		return nil, newError(KindPersistenceFailed, err, "failed to load result for submission %d", submissionID)
	}
	if result == nil {
		return nil, newError(KindNotFound, nil, "processed data for submission %d not found", submissionID)
	}
	return result, nil
}
