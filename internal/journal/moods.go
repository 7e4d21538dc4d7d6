package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/aggregation"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
)

const moodLogEntity = "mood_log"

// MoodLogRepository reads and writes mood logs of the connected user.
type MoodLogRepository struct {
	base
	logs storage.Collection[MoodLog]
}

// NewMoodLogRepository constructs a MoodLogRepository.
func NewMoodLogRepository(cfg Config) (*MoodLogRepository, error) {
	shared, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &MoodLogRepository{
		base: shared,
		logs: storage.NewCollection[MoodLog](cfg.Source, storage.CollectionConfig{Entity: moodLogEntity}),
	}, nil
}

// GetAll returns every mood log, oldest first.
func (r *MoodLogRepository) GetAll(ctx context.Context) ([]MoodLog, error) {
	logs, err := r.logs.All(ctx)
	return logs, r.fail("journal.moods.get_all", err)
}

// GetByID returns one mood log.
func (r *MoodLogRepository) GetByID(ctx context.Context, id string) (*MoodLog, error) {
	moodLog, err := r.logs.Get(ctx, id)
	return moodLog, r.fail("journal.moods.get", err)
}

// Create stores payload under a fresh id and timestamp pair.
func (r *MoodLogRepository) Create(ctx context.Context, payload MoodLog) (*MoodLog, error) {
	id, err := r.newID(moodLogEntity)
	if err != nil {
		return nil, r.fail("journal.moods.create", err)
	}
	now := r.now()
	payload.ID = id
	payload.CreatedAtMillis = now
	payload.UpdatedAtMillis = now
	if err := r.logs.Insert(ctx, &payload); err != nil {
		return nil, r.fail("journal.moods.create", err)
	}
	return &payload, nil
}

// Update replaces the stored mood log. The new modification time is always later than the stored
// one; when the clock has not advanced it moves one millisecond past the previous value.
func (r *MoodLogRepository) Update(ctx context.Context, moodLog MoodLog) (*MoodLog, error) {
	err := r.logs.Replace(ctx, moodLog.ID, &moodLog, func(stored, next *MoodLog) error {
		next.CreatedAtMillis = stored.CreatedAtMillis
		next.UpdatedAtMillis = nextModification(stored.UpdatedAtMillis, r.now())
		return nil
	})
	if err != nil {
		return nil, r.fail("journal.moods.update", err)
	}
	return &moodLog, nil
}

// Delete removes a mood log.
func (r *MoodLogRepository) Delete(ctx context.Context, id string) error {
	return r.fail("journal.moods.delete", r.logs.Remove(ctx, id))
}

// ListBetween returns mood logs created within [start, end].
func (r *MoodLogRepository) ListBetween(ctx context.Context, start, end time.Time) ([]MoodLog, error) {
	logs, err := r.logs.Query(ctx, "created_at range", createdBetween(start, end))
	return logs, r.fail("journal.moods.list_between", err)
}

// ListByTag returns mood logs that reference tagID as a tag of the given kind.
func (r *MoodLogRepository) ListByTag(ctx context.Context, kind aggregation.TagKind, tagID string) ([]MoodLog, error) {
	column, err := tagColumn(kind)
	if err != nil {
		return nil, storage.ValidationError(moodLogEntity, storage.OperationQuery, "", err.Error())
	}
	logs, err := r.logs.Query(ctx, fmt.Sprintf("%s tag %q", kind, tagID), containsMember("mood_logs", column, tagID))
	return logs, r.fail("journal.moods.list_by_tag", err)
}

func nextModification(previous, now int64) int64 {
	if now <= previous {
		return previous + 1
	}
	return now
}
