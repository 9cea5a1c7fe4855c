package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/sandmap/internal/backend/database"
	"github.com/jo-hoe/sandmap/internal/backend/objectstore"
	"github.com/jo-hoe/sandmap/internal/backend/queue"
)

// WorkDispatcher publishes work messages for the grain size worker.
type WorkDispatcher interface {
	Dispatch(ctx context.Context, message string) error
	Close() error
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	objectStore     objectstore.ObjectStore
	dispatcher      WorkDispatcher
	validate        *validator.Validate
	now             func() time.Time
}

// NewCoreService builds the collaborators described by config. The queue is
// connected lazily on the first dispatch.
func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}

	store, err := objectstore.NewObjectStore(config.Storage)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	connect, err := queue.NewConnector(config.Queue)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	return NewCoreServiceWithDependencies(config, databaseService, store, queue.NewDispatcher(connect, config.Queue.Retention)), nil
}

func NewCoreServiceWithDependencies(config *ServiceConfig, databaseService database.DatabaseService, store objectstore.ObjectStore, dispatcher WorkDispatcher) *CoreService {
	return &CoreService{
		config:          config,
		databaseService: databaseService,
		objectStore:     store,
		dispatcher:      dispatcher,
		validate:        newValidator(),
		now:             time.Now,
	}
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// Healthy reports whether the record store answers.
func (service *CoreService) Healthy() bool {
	return service.databaseService.DoesDatabaseExist()
}

func (service *CoreService) Close() error {
	return errors.Join(service.dispatcher.Close(), service.databaseService.Close())
}

// GetSubmission returns the submission with the given id.
func (service *CoreService) GetSubmission(ctx context.Context, id int64) (*database.Submission, error) {
	ctx, cancel := withTimeout(ctx, service.config.Timeouts.Database)
	defer cancel()

	submission, err := service.databaseService.GetSubmissionByID(ctx, id)
	if err != nil {
		return nil, newError(KindPersistenceFailed, err, "failed to load submission %d", id)
	}
	if submission == nil {
		return nil, newError(KindNotFound, nil, "submission %d not found", id)
	}
	return submission, nil
}

// ListSubmissions returns all submissions, pending and processed, ordered by id.
func (service *CoreService) ListSubmissions(ctx context.Context) ([]*database.Submission, error) {
	ctx, cancel := withTimeout(ctx, service.config.Timeouts.Database)
	defer cancel()

	submissions, err := service.databaseService.GetAllSubmissions(ctx)
	if err != nil {
		return nil, newError(KindPersistenceFailed, err, "failed to list submissions")
	}
	return submissions, nil
}

func (service *CoreService) dispatch(ctx context.Context, submission *database.Submission) error {
	ctx, cancel := withTimeout(ctx, service.config.Timeouts.Queue)
	defer cancel()

	return service.dispatcher.Dispatch(ctx, queue.FormatWorkMessage(submission.ID, submission.Image))
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}
