package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/aggregation"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const reviewEntity = "periodic_review"

// NewReview is the caller-supplied part of a periodic review.
type NewReview struct {
	Type        ReviewType
	PeriodStart string
	PeriodEnd   string
	Sections    []ReviewSection
}

// ReviewRepository stores periodic reviews. Each review freezes the aggregation of its period
// at creation time.
type ReviewRepository struct {
	base
	reviews  storage.Collection[PeriodicReview]
	entries  *EntryRepository
	moodLogs *MoodLogRepository
}

// NewReviewRepository constructs a ReviewRepository that reads entries and mood logs through the
// provided repositories.
func NewReviewRepository(cfg Config, entries *EntryRepository, moodLogs *MoodLogRepository) (*ReviewRepository, error) {
	shared, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	if entries == nil || moodLogs == nil {
		return nil, fmt.Errorf("journal: review repository needs entry and mood log repositories")
	}
	return &ReviewRepository{
		base:     shared,
		reviews:  storage.NewCollection[PeriodicReview](cfg.Source, storage.CollectionConfig{Entity: reviewEntity, Order: "period_start ASC, created_at_ms ASC, id ASC"}),
		entries:  entries,
		moodLogs: moodLogs,
	}, nil
}

// GetAll returns every review ordered by period.
func (r *ReviewRepository) GetAll(ctx context.Context) ([]PeriodicReview, error) {
	reviews, err := r.reviews.All(ctx)
	return reviews, r.fail("journal.reviews.get_all", err)
}

// GetByID returns one review.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (*PeriodicReview, error) {
	review, err := r.reviews.Get(ctx, id)
	return review, r.fail("journal.reviews.get", err)
}

// Create aggregates the entries and mood logs of the period and stores the review with that snapshot.
func (r *ReviewRepository) Create(ctx context.Context, payload NewReview) (*PeriodicReview, error) {
	period, err := parsePeriod(payload)
	if err != nil {
		return nil, err
	}
	snapshot, err := r.Aggregate(ctx, period)
	if err != nil {
		return nil, err
	}

	id, err := r.newID(reviewEntity)
	if err != nil {
		return nil, r.fail("journal.reviews.create", err)
	}
	now := r.now()
	review := PeriodicReview{
		ID:              id,
		CreatedAtMillis: now,
		UpdatedAtMillis: now,
		Type:            payload.Type,
		PeriodStart:     payload.PeriodStart,
		PeriodEnd:       payload.PeriodEnd,
		Sections:        datatypes.NewJSONSlice(payload.Sections),
		AggregatedData:  datatypes.NewJSONType(snapshot),
	}
	if err := r.reviews.Insert(ctx, &review); err != nil {
		return nil, r.fail("journal.reviews.create", err)
	}
	return &review, nil
}

// Update replaces the reflection sections of a review. Type, period and snapshot stay as created.
func (r *ReviewRepository) Update(ctx context.Context, review PeriodicReview) (*PeriodicReview, error) {
	err := r.reviews.Replace(ctx, review.ID, &review, func(stored, next *PeriodicReview) error {
		next.CreatedAtMillis = stored.CreatedAtMillis
		next.UpdatedAtMillis = r.now()
		next.Type = stored.Type
		next.PeriodStart = stored.PeriodStart
		next.PeriodEnd = stored.PeriodEnd
		next.AggregatedData = stored.AggregatedData
		return nil
	})
	if err != nil {
		return nil, r.fail("journal.reviews.update", err)
	}
	return &review, nil
}

// Delete removes a review.
func (r *ReviewRepository) Delete(ctx context.Context, id string) error {
	return r.fail("journal.reviews.delete", r.reviews.Remove(ctx, id))
}

// ListByType returns the reviews of one granularity.
func (r *ReviewRepository) ListByType(ctx context.Context, reviewType ReviewType) ([]PeriodicReview, error) {
	reviews, err := r.reviews.Query(ctx, fmt.Sprintf("type %q", reviewType), func(db *gorm.DB) *gorm.DB {
		return db.Where("type = ?", reviewType)
	})
	return reviews, r.fail("journal.reviews.list_by_type", err)
}

// FindByPeriod returns the review of reviewType starting on periodStart.
func (r *ReviewRepository) FindByPeriod(ctx context.Context, reviewType ReviewType, periodStart string) (*PeriodicReview, error) {
	review, err := r.reviews.First(ctx, fmt.Sprintf("%s period starting %s", reviewType, periodStart), func(db *gorm.DB) *gorm.DB {
		return db.Where("type = ? AND period_start = ?", reviewType, periodStart)
	})
	return review, r.fail("journal.reviews.find_by_period", err)
}

// Aggregate computes the live summary of period from the stored entries and mood logs.
func (r *ReviewRepository) Aggregate(ctx context.Context, period aggregation.Range) (aggregation.AggregatedData, error) {
	entries, err := r.entries.ListBetween(ctx, period.Start, period.End)
	if err != nil {
		return aggregation.AggregatedData{}, err
	}
	moodLogs, err := r.moodLogs.ListBetween(ctx, period.Start, period.End)
	if err != nil {
		return aggregation.AggregatedData{}, err
	}

	entryRecords := make([]aggregation.Record, 0, len(entries))
	for _, entry := range entries {
		entryRecords = append(entryRecords, entry.Record())
	}
	moodRecords := make([]aggregation.Record, 0, len(moodLogs))
	for _, moodLog := range moodLogs {
		moodRecords = append(moodRecords, moodLog.Record())
	}
	return aggregation.Aggregate(entryRecords, moodRecords, period), nil
}

// ParsePeriod turns two calendar dates into the range covering both days entirely.
func ParsePeriod(start, end string) (aggregation.Range, error) {
	first, err := time.Parse(aggregation.DateLayout, start)
	if err != nil {
		return aggregation.Range{}, fmt.Errorf("period start %q is not a date", start)
	}
	last, err := time.Parse(aggregation.DateLayout, end)
	if err != nil {
		return aggregation.Range{}, fmt.Errorf("period end %q is not a date", end)
	}
	if last.Before(first) {
		return aggregation.Range{}, fmt.Errorf("period end %s precedes start %s", end, start)
	}
	return aggregation.DayRange(first, last), nil
}

func parsePeriod(payload NewReview) (aggregation.Range, error) {
	if _, ok := ParseReviewType(string(payload.Type)); !ok {
		return aggregation.Range{}, storage.ValidationError(reviewEntity, storage.OperationCreate, "", fmt.Sprintf("unknown review type %q", payload.Type))
	}
	period, err := ParsePeriod(payload.PeriodStart, payload.PeriodEnd)
	if err != nil {
		return aggregation.Range{}, storage.ValidationError(reviewEntity, storage.OperationCreate, "", err.Error())
	}
	return period, nil
}
