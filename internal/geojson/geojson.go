package geojson

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	TypeFeatureCollection = "FeatureCollection"
	TypeFeature           = "Feature"
	TypePoint             = "Point"

	// ContentType is the media type registered for GeoJSON documents.
	ContentType = "application/geo+json; charset=utf-8"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection never returns a nil feature list, so empty exports encode as [].
func NewFeatureCollection(features ...Feature) *FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return &FeatureCollection{
		Type:     TypeFeatureCollection,
		Features: features,
	}
}

type Feature struct {
	Type       string     `json:"type"`
	Geometry   Point      `json:"geometry"`
	Properties Properties `json:"properties"`
}

// NewPointFeature places properties at the given position. GeoJSON orders coordinates longitude first.
func NewPointFeature(longitude, latitude float64, properties Properties) Feature {
	return Feature{
		Type: TypeFeature,
		Geometry: Point{
			Type:        TypePoint,
			Coordinates: [2]float64{longitude, latitude},
		},
		Properties: properties,
	}
}

type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

func (p Point) Longitude() float64 { return p.Coordinates[0] }

func (p Point) Latitude() float64 { return p.Coordinates[1] }

// Properties is either SingleProperties or ClusterProperties, told apart by the cluster flag.
type Properties interface {
	IsCluster() bool
}

// SingleProperties describe one submission.
type SingleProperties struct {
	ID          int64
	Image       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	Size        *float64
}

func (SingleProperties) IsCluster() bool { return false }

type singlePropertiesJSON struct {
	Cluster     bool       `json:"cluster"`
	ID          int64      `json:"id"`
	Image       string     `json:"image"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	Size        *float64   `json:"size,omitempty"`
}

func (p SingleProperties) MarshalJSON() ([]byte, error) {
	return json.Marshal(singlePropertiesJSON{
		ID:          p.ID,
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
		ProcessedAt: p.ProcessedAt,
		Size:        p.Size,
	})
}

// ClusterProperties describe an aggregate of several submissions.
type ClusterProperties struct {
	ClusterID  int64
	PointCount int
	TotalSize  float64
}

func (ClusterProperties) IsCluster() bool { return true }

type clusterPropertiesJSON struct {
	Cluster    bool    `json:"cluster"`
	ClusterID  int64   `json:"cluster_id"`
	PointCount int     `json:"point_count"`
	TotalSize  float64 `json:"total_size"`
}

func (p ClusterProperties) MarshalJSON() ([]byte, error) {
	return json.Marshal(clusterPropertiesJSON{
		Cluster:    true,
		ClusterID:  p.ClusterID,
		PointCount: p.PointCount,
		TotalSize:  p.TotalSize,
	})
}

// NewClusterProperties rolls up members a caller already grouped together.
// Members without a size contribute to the count only.
func NewClusterProperties(clusterID int64, members []SingleProperties) ClusterProperties {
	properties := ClusterProperties{
		ClusterID:  clusterID,
		PointCount: len(members),
	}
	for _, member := range members {
		if member.Size != nil {
			properties.TotalSize += *member.Size
		}
	}
	return properties
}

func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       string          `json:"type"`
		Geometry   Point           `json:"geometry"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var tag struct {
		Cluster bool `json:"cluster"`
	}
	if len(raw.Properties) > 0 {
		if err := json.Unmarshal(raw.Properties, &tag); err != nil {
			return fmt.Errorf("invalid feature properties: %w", err)
		}
	}

	f.Type = raw.Type
	f.Geometry = raw.Geometry
	if tag.Cluster {
		var cluster clusterPropertiesJSON
		if err := json.Unmarshal(raw.Properties, &cluster); err != nil {
			return fmt.Errorf("invalid cluster properties: %w", err)
		}
		f.Properties = ClusterProperties{
			ClusterID:  cluster.ClusterID,
			PointCount: cluster.PointCount,
			TotalSize:  cluster.TotalSize,
		}
		return nil
	}

	var single singlePropertiesJSON
	if len(raw.Properties) > 0 {
		if err := json.Unmarshal(raw.Properties, &single); err != nil {
			return fmt.Errorf("invalid single properties: %w", err)
		}
	}
	f.Properties = SingleProperties{
		ID:          single.ID,
		Image:       single.Image,
		CreatedAt:   single.CreatedAt,
		ProcessedAt: single.ProcessedAt,
		Size:        single.Size,
	}
	return nil
}
