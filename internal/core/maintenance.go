package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jo-hoe/sandmap/internal/backend/database"
)

// ListStale returns unprocessed submissions created more than olderThan ago.
// These may never have reached the worker.
func (service *CoreService) ListStale(ctx context.Context, olderThan time.Duration) ([]*database.Submission, error) {
	if olderThan <= 0 {
		return nil, newError(KindInvalidInput, nil, "olderThan must be positive, got %s", olderThan)
	}

	ctx, cancel := withTimeout(ctx, service.config.Timeouts.Database)
	defer cancel()

	submissions, err := service.databaseService.GetUnprocessedSubmissions(ctx, service.now().Add(-olderThan))
	if err != nil {
		return nil, newError(KindPersistenceFailed, err, "failed to list stale submissions")
	}
	return submissions, nil
}

// Redispatch sends the work message of an unprocessed submission again.
func (service *CoreService) Redispatch(ctx context.Context, id int64) (*database.Submission, error) {
	submission, err := service.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if submission.IsProcessed() {
		return nil, newError(KindConflict, nil, "submission %d is already processed", id)
	}

	if err := service.dispatch(ctx, submission); err != nil {
		return nil, newError(KindDispatchFailed, err, "failed to redispatch submission %d", id)
	}
	slog.Info("submission redispatched", "submission_id", id, "image_url", submission.Image)
	return submission, nil
}

// RedispatchStale redispatches every stale submission and returns the ids that were sent.
// It keeps going past individual failures and reports them together.
func (service *CoreService) RedispatchStale(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	stale, err := service.ListStale(ctx, olderThan)
	if err != nil {
		return nil, err
	}

	dispatched := make([]int64, 0, len(stale))
	var errs []error
	for _, submission := range stale {
		if _, err := service.Redispatch(ctx, submission.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		dispatched = append(dispatched, submission.ID)
	}
	return dispatched, errors.Join(errs...)
}
