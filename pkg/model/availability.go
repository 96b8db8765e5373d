// pkg/model/availability.go
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AvailabilityStatus marks whether a day's source data is ready to migrate
type AvailabilityStatus string

const (
	AvailabilityReady     AvailabilityStatus = "ready"
	AvailabilityProcessed AvailabilityStatus = "processed"
)

// DateLayout is the format of AvailabilityRecord.Date
const DateLayout = "2006-01-02"

// PartitionDateLayout is the suffix format of date-stamped partitions
const PartitionDateLayout = "20060102"

// ExecutedStage summarizes one completed stage on the availability record
type ExecutedStage struct {
	Name            string    `bson:"name" json:"name"`
	DurationSeconds float64   `bson:"durationSeconds" json:"durationSeconds"`
	ExecutedAt      time.Time `bson:"executedAt" json:"executedAt"`
}

// AvailabilityRecord is the external per-day signal that source data is ready.
// This system only reads it and flips it to processed.
type AvailabilityRecord struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Date                string             `bson:"date" json:"date"`
	Status              AvailabilityStatus `bson:"status" json:"status"`
	RunID               string             `bson:"runId,omitempty" json:"runId,omitempty"`
	ExecutedStages      []ExecutedStage    `bson:"executedStages,omitempty" json:"executedStages,omitempty"`
	TotalCount          int64              `bson:"totalCount" json:"totalCount"`
	ValidCount          int64              `bson:"validCount" json:"validCount"`
	InvalidCount        int64              `bson:"invalidCount" json:"invalidCount"`
	PercentValid        float64            `bson:"percentValid" json:"percentValid"`
	PercentInvalid      float64            `bson:"percentInvalid" json:"percentInvalid"`
	TotalElapsedSeconds float64            `bson:"totalElapsedSeconds" json:"totalElapsedSeconds"`
	ProcessedAt         *time.Time         `bson:"processedAt,omitempty" json:"processedAt,omitempty"`
	ProcessedDate       string             `bson:"processedDate,omitempty" json:"processedDate,omitempty"`
}

// AvailabilitySummary is what a run writes onto the availability record
type AvailabilitySummary struct {
	RunID               string
	Stages              []ExecutedStage
	Total               int64
	Valid               int64
	Invalid             int64
	PercentValid        float64
	PercentInvalid      float64
	TotalElapsedSeconds float64
	ProcessedAt         time.Time
	ProcessedDate       string
}

// Apply copies the summary onto the record and marks it processed
func (s AvailabilitySummary) Apply(r *AvailabilityRecord) {
	processedAt := s.ProcessedAt
	r.Status = AvailabilityProcessed
	r.RunID = s.RunID
	r.ExecutedStages = s.Stages
	r.TotalCount = s.Total
	r.ValidCount = s.Valid
	r.InvalidCount = s.Invalid
	r.PercentValid = s.PercentValid
	r.PercentInvalid = s.PercentInvalid
	r.TotalElapsedSeconds = s.TotalElapsedSeconds
	r.ProcessedAt = &processedAt
	r.ProcessedDate = s.ProcessedDate
}
