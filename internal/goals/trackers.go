package goals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/ids"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	trackerEntity      = "goal_tracker"
	trackerEntryEntity = "tracker_entry"

	// DateLayout is the format of tracker entry date keys.
	DateLayout = "2006-01-02"
)

// WeekStartFunc reports the first day of the week, 0 for Sunday through 6 for Saturday.
type WeekStartFunc func(ctx context.Context) (int, error)

// TrackerRepository stores goal trackers and their per-period readings.
type TrackerRepository struct {
	trackers  storage.Collection[Tracker]
	entries   storage.Collection[TrackerEntry]
	goals     storage.Collection[Goal]
	clock     storage.Clock
	ids       ids.Provider
	weekStart WeekStartFunc
	logger    *zap.Logger
}

// NewTrackerRepository constructs a TrackerRepository. weekStart may be nil, in which case weeks
// begin on Monday.
func NewTrackerRepository(cfg Config, weekStart WeekStartFunc) (*TrackerRepository, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if weekStart == nil {
		weekStart = func(context.Context) (int, error) { return int(time.Monday), nil }
	}
	return &TrackerRepository{
		trackers:  storage.NewCollection[Tracker](cfg.Source, storage.CollectionConfig{Entity: trackerEntity}),
		entries:   storage.NewCollection[TrackerEntry](cfg.Source, storage.CollectionConfig{Entity: trackerEntryEntity, Order: "date ASC, id ASC"}),
		goals:     storage.NewCollection[Goal](cfg.Source, storage.CollectionConfig{Entity: goalEntity}),
		clock:     storage.Clock(clock),
		ids:       idProvider,
		weekStart: weekStart,
		logger:    logger,
	}, nil
}

// GetAll returns every tracker.
func (r *TrackerRepository) GetAll(ctx context.Context) ([]Tracker, error) {
	trackers, err := r.trackers.All(ctx)
	return trackers, r.logFailure("trackers.get_all", err)
}

// GetByID returns one tracker.
func (r *TrackerRepository) GetByID(ctx context.Context, id string) (*Tracker, error) {
	tracker, err := r.trackers.Get(ctx, id)
	return tracker, r.logFailure("trackers.get", err)
}

// Create stores a tracker for an existing goal.
func (r *TrackerRepository) Create(ctx context.Context, payload Tracker) (*Tracker, error) {
	if err := validateTracker(payload, storage.OperationCreate); err != nil {
		return nil, err
	}
	id, err := r.ids.NewID()
	if err != nil {
		return nil, r.logFailure("trackers.create", storage.IOError(trackerEntity, storage.OperationCreate, "", err))
	}
	now := r.clock.Millis()
	payload.ID = id
	payload.CreatedAtMillis = now
	payload.UpdatedAtMillis = now

	err = r.trackers.Transaction(ctx, storage.OperationCreate, "", func(tx *gorm.DB) error {
		if _, err := r.goals.GetTx(tx, storage.OperationGet, payload.GoalID); err != nil {
			return err
		}
		return tx.Create(&payload).Error
	})
	if err != nil {
		return nil, r.logFailure("trackers.create", err)
	}
	return &payload, nil
}

// Update replaces a tracker's name and frequency. The owning goal and the kind do not change, so
// recorded values stay valid for the tracker.
func (r *TrackerRepository) Update(ctx context.Context, tracker Tracker) (*Tracker, error) {
	if err := validateTracker(tracker, storage.OperationUpdate); err != nil {
		return nil, err
	}
	err := r.trackers.Replace(ctx, tracker.ID, &tracker, func(stored, next *Tracker) error {
		next.CreatedAtMillis = stored.CreatedAtMillis
		next.UpdatedAtMillis = r.clock.Millis()
		next.GoalID = stored.GoalID
		next.Kind = stored.Kind
		return nil
	})
	if err != nil {
		return nil, r.logFailure("trackers.update", err)
	}
	return &tracker, nil
}

// Delete removes a tracker together with its entries.
func (r *TrackerRepository) Delete(ctx context.Context, id string) error {
	err := r.trackers.Transaction(ctx, storage.OperationDelete, id, func(tx *gorm.DB) error {
		if err := tx.Where("tracker_id = ?", id).Delete(&TrackerEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&Tracker{}).Error
	})
	return r.logFailure("trackers.delete", err)
}

// ListByGoal returns the trackers of one goal.
func (r *TrackerRepository) ListByGoal(ctx context.Context, goalID string) ([]Tracker, error) {
	trackers, err := r.trackers.Query(ctx, fmt.Sprintf("goal %q", goalID), func(db *gorm.DB) *gorm.DB {
		return db.Where("goal_id = ?", goalID)
	})
	return trackers, r.logFailure("trackers.list_by_goal", err)
}

// RecordEntry stores the reading of a tracker for the period containing date. A second reading for
// the same tracker and period overwrites the value and note of the first.
func (r *TrackerRepository) RecordEntry(ctx context.Context, trackerID, date string, value float64, note string) (*TrackerEntry, error) {
	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return nil, storage.ValidationError(trackerEntryEntity, storage.OperationCreate, "", fmt.Sprintf("date %q is not a date", date))
	}
	tracker, err := r.trackers.Get(ctx, trackerID)
	if err != nil {
		return nil, r.logFailure("trackers.record_entry", err)
	}
	if err := tracker.Kind.Validate(value); err != nil {
		return nil, storage.ValidationError(trackerEntryEntity, storage.OperationCreate, "", err.Error())
	}
	weekStart, err := r.weekStart(ctx)
	if err != nil {
		return nil, r.logFailure("trackers.record_entry", storage.Annotate(trackerEntryEntity, storage.OperationCreate, "", err))
	}
	periodStart, err := tracker.Frequency.PeriodStart(day, time.Weekday(weekStart))
	if err != nil {
		return nil, storage.ValidationError(trackerEntryEntity, storage.OperationCreate, "", err.Error())
	}

	id, err := r.ids.NewID()
	if err != nil {
		return nil, r.logFailure("trackers.record_entry", storage.IOError(trackerEntryEntity, storage.OperationCreate, "", err))
	}
	now := r.clock.Millis()
	record := TrackerEntry{
		ID:              id,
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
		TrackerID:       trackerID,
		Date:            periodStart.Format(DateLayout),
		Value:           value,
		Note:            strings.TrimSpace(note),
	}

	var stored TrackerEntry
	err = r.entries.Transaction(ctx, storage.OperationCreate, "", func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tracker_id"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "note", "updated_at_ms"}),
		}).Create(&record).Error; err != nil {
			return err
		}
		return tx.Where("tracker_id = ? AND date = ?", record.TrackerID, record.Date).Take(&stored).Error
	})
	if err != nil {
		return nil, r.logFailure("trackers.record_entry", err)
	}
	return &stored, nil
}

// ListEntries returns the readings of a tracker between two dates, both included.
// Empty bounds leave that side of the range open.
func (r *TrackerRepository) ListEntries(ctx context.Context, trackerID, from, to string) ([]TrackerEntry, error) {
	for _, bound := range []string{from, to} {
		if bound == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, bound); err != nil {
			return nil, storage.ValidationError(trackerEntryEntity, storage.OperationQuery, "", fmt.Sprintf("date %q is not a date", bound))
		}
	}
	entries, err := r.entries.Query(ctx, fmt.Sprintf("tracker %q dates %s..%s", trackerID, from, to), func(db *gorm.DB) *gorm.DB {
		scoped := db.Where("tracker_id = ?", trackerID)
		if from != "" {
			scoped = scoped.Where("date >= ?", from)
		}
		if to != "" {
			scoped = scoped.Where("date <= ?", to)
		}
		return scoped
	})
	return entries, r.logFailure("trackers.list_entries", err)
}

// DeleteEntry removes one reading.
func (r *TrackerRepository) DeleteEntry(ctx context.Context, id string) error {
	return r.logFailure("trackers.delete_entry", r.entries.Remove(ctx, id))
}

func (r *TrackerRepository) logFailure(operation string, err error) error {
	if err != nil && (errors.Is(err, storage.ErrStoreIO) || errors.Is(err, storage.ErrNotConnected)) {
		r.logger.Error("tracker operation failed", zap.String("operation", operation), zap.Error(err))
	}
	return err
}

func validateTracker(tracker Tracker, operation storage.Operation) error {
	if strings.TrimSpace(tracker.Name) == "" {
		return storage.ValidationError(trackerEntity, operation, tracker.ID, "name is required")
	}
	if operation == storage.OperationCreate && strings.TrimSpace(tracker.GoalID) == "" {
		return storage.ValidationError(trackerEntity, operation, tracker.ID, "goal id is required")
	}
	if _, err := ParseTrackerKind(string(tracker.Kind)); err != nil {
		return storage.ValidationError(trackerEntity, operation, tracker.ID, err.Error())
	}
	if _, err := ParseFrequency(string(tracker.Frequency)); err != nil {
		return storage.ValidationError(trackerEntity, operation, tracker.ID, err.Error())
	}
	return nil
}
