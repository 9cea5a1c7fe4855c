package core

import (
	"context"

	"github.com/jo-hoe/sandmap/internal/backend/database"
	"github.com/jo-hoe/sandmap/internal/geojson"
)

// ExportFeatures projects every submission into a point feature. Grouping
// nearby points is left to the consumer.
func (service *CoreService) ExportFeatures(ctx context.Context) (*geojson.FeatureCollection, error) {
	submissions, err := service.ListSubmissions(ctx)
	if err != nil {
		return nil, err
	}

	features := make([]geojson.Feature, 0, len(submissions))
	for _, submission := range submissions {
		features = append(features, toFeature(submission))
	}
	return geojson.NewFeatureCollection(features...), nil
}

func toFeature(submission *database.Submission) geojson.Feature {
	return geojson.NewPointFeature(submission.Longitude, submission.Latitude, geojson.SingleProperties{
		ID:          submission.ID,
		Image:       submission.Image,
		CreatedAt:   submission.CreatedAt,
		ProcessedAt: submission.ProcessedAt,
		Size:        submission.Size,
	})
}
