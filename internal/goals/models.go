// Package goals maintains cascading goals, their parent/child links, and the trackers that
// measure progress on them.
package goals

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Status is the lifecycle state of a goal.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDeferred  Status = "deferred"
	StatusDropped   Status = "dropped"
)

// ParseStatus validates a goal status.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusActive, StatusCompleted, StatusDeferred, StatusDropped:
		return Status(value), nil
	default:
		return "", fmt.Errorf("unknown goal status %q", value)
	}
}

// Goal is one node of the goal hierarchy. ParentGoalID and ChildGoalIDs mirror each other.
type Goal struct {
	ID               string   `gorm:"column:id;primaryKey" json:"id"`
	CreatedAtMillis  int64    `gorm:"column:created_at_ms" json:"createdAt"`
	UpdatedAtMillis  int64    `gorm:"column:updated_at_ms" json:"updatedAt"`
	Title            string   `gorm:"column:title" json:"title"`
	Status           Status   `gorm:"column:status" json:"status"`
	SourcePeriodType string   `gorm:"column:source_period_type" json:"sourcePeriodType,omitempty"`
	SourceEntryID    string   `gorm:"column:source_entry_id" json:"sourceEntryId,omitempty"`
	ParentGoalID     *string  `gorm:"column:parent_goal_id" json:"parentGoalId,omitempty"`
	ChildGoalIDs     []string `gorm:"column:child_goal_ids;serializer:json" json:"childGoalIds"`
}

func (Goal) TableName() string {
	return "goals"
}

// BeforeSave stores an absent child list as an empty array.
func (g *Goal) BeforeSave(_ *gorm.DB) error {
	if g.ChildGoalIDs == nil {
		g.ChildGoalIDs = []string{}
	}
	return nil
}

// TrackerKind is how a tracker measures progress.
type TrackerKind string

const (
	TrackerBoolean TrackerKind = "boolean"
	TrackerCount   TrackerKind = "count"
	TrackerScale   TrackerKind = "scale"
)

const (
	scaleMin = 1
	scaleMax = 10
)

// ParseTrackerKind validates a tracker kind.
func ParseTrackerKind(value string) (TrackerKind, error) {
	switch TrackerKind(value) {
	case TrackerBoolean, TrackerCount, TrackerScale:
		return TrackerKind(value), nil
	default:
		return "", fmt.Errorf("unknown tracker kind %q", value)
	}
}

// Validate checks that value is a reading this kind of tracker can record.
func (k TrackerKind) Validate(value float64) error {
	switch k {
	case TrackerBoolean:
		if value != 0 && value != 1 {
			return fmt.Errorf("boolean tracker value must be 0 or 1, got %v", value)
		}
	case TrackerCount:
		if value < 0 || value != float64(int64(value)) {
			return fmt.Errorf("count tracker value must be a non-negative whole number, got %v", value)
		}
	case TrackerScale:
		if value < scaleMin || value > scaleMax {
			return fmt.Errorf("scale tracker value must be within %d..%d, got %v", scaleMin, scaleMax, value)
		}
	default:
		return fmt.Errorf("unknown tracker kind %q", k)
	}
	return nil
}

// Frequency is how often a tracker expects a reading.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// ParseFrequency validates a tracker frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch Frequency(value) {
	case FrequencyDaily, FrequencyWeekly:
		return Frequency(value), nil
	default:
		return "", fmt.Errorf("unknown tracker frequency %q", value)
	}
}

// PeriodStart returns the first day of the period containing day. Weekly periods begin on weekStart.
func (f Frequency) PeriodStart(day time.Time, weekStart time.Weekday) (time.Time, error) {
	year, month, date := day.Date()
	midnight := time.Date(year, month, date, 0, 0, 0, 0, day.Location())
	switch f {
	case FrequencyDaily:
		return midnight, nil
	case FrequencyWeekly:
		offset := (int(midnight.Weekday()) - int(weekStart) + 7) % 7
		return midnight.AddDate(0, 0, -offset), nil
	default:
		return time.Time{}, fmt.Errorf("unknown tracker frequency %q", f)
	}
}

// Tracker measures progress on a goal.
type Tracker struct {
	ID              string      `gorm:"column:id;primaryKey" json:"id"`
	CreatedAtMillis int64       `gorm:"column:created_at_ms" json:"createdAt"`
	UpdatedAtMillis int64       `gorm:"column:updated_at_ms" json:"updatedAt"`
	GoalID          string      `gorm:"column:goal_id" json:"goalId"`
	Name            string      `gorm:"column:name" json:"name"`
	Kind            TrackerKind `gorm:"column:kind" json:"kind"`
	Frequency       Frequency   `gorm:"column:frequency" json:"frequency"`
}

func (Tracker) TableName() string {
	return "goal_trackers"
}

// TrackerEntry is the reading of a tracker for one period. There is at most one per tracker and date.
type TrackerEntry struct {
	ID              string  `gorm:"column:id;primaryKey" json:"id"`
	CreatedAtMillis int64   `gorm:"column:created_at_ms" json:"createdAt"`
	UpdatedAtMillis int64   `gorm:"column:updated_at_ms" json:"updatedAt"`
	TrackerID       string  `gorm:"column:tracker_id" json:"trackerId"`
	Date            string  `gorm:"column:date" json:"date"`
	Value           float64 `gorm:"column:value" json:"value"`
	Note            string  `gorm:"column:note" json:"note,omitempty"`
}

func (TrackerEntry) TableName() string {
	return "tracker_entries"
}
