package database

import "time"

// Submission is a geotagged sand sample photograph awaiting or having completed analysis.
type Submission struct {
	ID          int64      `db:"id" json:"id"`
	Latitude    float64    `db:"latitude" json:"latitude"`
	Longitude   float64    `db:"longitude" json:"longitude"`
	Image       string     `db:"image" json:"image"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	ProcessedAt *time.Time `db:"processed_at" json:"processedAt,omitempty"` // nil until a result is correlated
	Size        *float64   `db:"size" json:"size,omitempty"`                // set together with ProcessedAt
}

// IsProcessed reports whether a result has been correlated to the submission.
func (s *Submission) IsProcessed() bool {
	return s.ProcessedAt != nil
}

// ProcessedResult holds the grain size distribution computed for one submission.
type ProcessedResult struct {
	ID           int64    `db:"id" json:"id"`
	SubmissionID int64    `db:"submission_id" json:"submissionId"`
	Scale        string   `db:"scale" json:"scale"`
	D10          *float64 `db:"d10" json:"D10,omitempty"`
	D16          *float64 `db:"d16" json:"D16,omitempty"`
	D25          *float64 `db:"d25" json:"D25,omitempty"`
	D50          *float64 `db:"d50" json:"D50,omitempty"`
	D65          *float64 `db:"d65" json:"D65,omitempty"`
	D75          *float64 `db:"d75" json:"D75,omitempty"`
	D90          float64  `db:"d90" json:"D90"`
	D50Mean      float64  `db:"d50_mean" json:"D50mean"`
}
