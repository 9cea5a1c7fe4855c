package core

import (
	"context"
	"log/slog"

	"github.com/jo-hoe/sandmap/internal/backend/database"
	"github.com/jo-hoe/sandmap/internal/backend/objectstore"
)

type SubmitRequest struct {
	Image     []byte  `validate:"min=1"`
	MimeType  string  `validate:"oneof=image/jpeg image/jpg image/png"`
	Latitude  float64 `validate:"min=-90,max=90"`
	Longitude float64 `validate:"min=-180,max=180"`
}

// Submit validates and uploads the image, stores a new submission and
// dispatches its work message. A failed dispatch does not remove the stored
// submission; it is reported as DispatchFailed and can be redispatched.
func (service *CoreService) Submit(ctx context.Context, request SubmitRequest) (*database.Submission, error) {
	request.MimeType = normalizeMimeType(request.MimeType)
	if err := service.validate.Struct(request); err != nil {
		return nil, validationError(err)
	}
	imageConfig, err := checkImage(request.Image, request.MimeType)
	if err != nil {
		return nil, newError(KindInvalidInput, err, "invalid image")
	}

	imageURL, err := service.upload(ctx, request.Image, request.MimeType)
	if err != nil {
		return nil, newError(KindUploadFailed, err, "image upload failed")
	}
	slog.Debug("image uploaded",
		"image_url", imageURL,
		"width", imageConfig.Width,
		"height", imageConfig.Height,
		"size_bytes", len(request.Image))

	submission, err := service.insertSubmission(ctx, &database.Submission{
		Latitude:  request.Latitude,
		Longitude: request.Longitude,
		Image:     imageURL,
		CreatedAt: service.now(),
	})
	if err != nil {
		return nil, newError(KindPersistenceFailed, err, "failed to create submission")
	}

	if err := service.dispatch(ctx, submission); err != nil {
		slog.Error("submission stored but work message not dispatched; redispatch required",
			"submission_id", submission.ID, "image_url", submission.Image, "error", err)
		return nil, newError(KindDispatchFailed, err, "submission %d stored but work message not dispatched", submission.ID)
	}

	slog.Info("submission created", "submission_id", submission.ID, "image_url", submission.Image)
	return submission, nil
}

func (service *CoreService) upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, cancel := withTimeout(ctx, service.config.Timeouts.Storage)
	defer cancel()

	imageURL, err := service.objectStore.Upload(ctx, data, objectstore.UploadOptions{
		Folder:      service.config.Storage.Folder,
		ContentType: mimeType,
	})
	if err != nil {
		return "", err
	}
	if imageURL == "" {
		return "", objectstore.ErrEmptyReference
	}
	return imageURL, nil
}

func (service *CoreService) insertSubmission(ctx context.Context, submission *database.Submission) (*database.Submission, error) {
	ctx, cancel := withTimeout(ctx, service.config.Timeouts.Database)
	defer cancel()

	created, err := service.databaseService.CreateSubmission(ctx, submission)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, database.ErrNoRowReturned
	}
	return created, nil
}
