package goals

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T, fx goalFixture, kind TrackerKind, frequency Frequency) *Tracker {
	t.Helper()
	goal, err := fx.manager.Create(context.Background(), Goal{Title: "Sleep better"})
	require.NoError(t, err)
	tracker, err := fx.trackers.Create(context.Background(), Tracker{GoalID: goal.ID, Name: "Hours", Kind: kind, Frequency: frequency})
	require.NoError(t, err)
	return tracker
}

func TestRecordEntryUpsertsPerTrackerAndDate(t *testing.T) {
	fx := newGoalFixture(t)
	ctx := context.Background()
	tracker := newTracker(t, fx, TrackerCount, FrequencyDaily)

	first, err := fx.trackers.RecordEntry(ctx, tracker.ID, "2024-06-03", 3, "first")
	require.NoError(t, err)
	second, err := fx.trackers.RecordEntry(ctx, tracker.ID, "2024-06-03", 5, "second")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, float64(5), second.Value)
	assert.Equal(t, "second", second.Note)

	entries, err := fx.trackers.ListEntries(ctx, tracker.ID, "", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Note)

	_, err = fx.trackers.RecordEntry(ctx, tracker.ID, "2024-06-04", 1, "")
	require.NoError(t, err)
	ranged, err := fx.trackers.ListEntries(ctx, tracker.ID, "2024-06-04", "2024-06-30")
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "2024-06-04", ranged[0].Date)
}

func TestRecordEntryKeysWeeklyTrackersByWeekStart(t *testing.T) {
	fx := newGoalFixture(t)
	ctx := context.Background()
	tracker := newTracker(t, fx, TrackerBoolean, FrequencyWeekly)

	wednesday, err := fx.trackers.RecordEntry(ctx, tracker.ID, "2024-06-05", 0, "")
	require.NoError(t, err)
	sunday, err := fx.trackers.RecordEntry(ctx, tracker.ID, "2024-06-09", 1, "done")
	require.NoError(t, err)

	assert.Equal(t, "2024-06-03", wednesday.Date)
	assert.Equal(t, wednesday.ID, sunday.ID)
	assert.Equal(t, float64(1), sunday.Value)
}

func TestRecordEntryValidatesValueAndDate(t *testing.T) {
	fx := newGoalFixture(t)
	ctx := context.Background()
	scale := newTracker(t, fx, TrackerScale, FrequencyDaily)

	_, err := fx.trackers.RecordEntry(ctx, scale.ID, "2024-06-03", 11, "")
	assert.ErrorIs(t, err, storage.ErrValidation)
	_, err = fx.trackers.RecordEntry(ctx, scale.ID, "June 3", 5, "")
	assert.ErrorIs(t, err, storage.ErrValidation)
	_, err = fx.trackers.RecordEntry(ctx, "missing", "2024-06-03", 5, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRecordEntrySurfacesWeekStartFailure(t *testing.T) {
	fx := newGoalFixture(t)
	ctx := context.Background()
	tracker := newTracker(t, fx, TrackerCount, FrequencyWeekly)

	failing, err := NewTrackerRepository(Config{Source: fx.registry}, func(context.Context) (int, error) {
		return 0, errors.New("settings unavailable")
	})
	require.NoError(t, err)
	_, err = failing.RecordEntry(ctx, tracker.ID, "2024-06-03", 1, "")
	assert.ErrorIs(t, err, storage.ErrStoreIO)
}

func TestTrackerCreateRequiresGoalAndValidEnums(t *testing.T) {
	fx := newGoalFixture(t)
	ctx := context.Background()

	_, err := fx.trackers.Create(ctx, Tracker{GoalID: "missing", Name: "Steps", Kind: TrackerCount, Frequency: FrequencyDaily})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	goal, err := fx.manager.Create(ctx, Goal{Title: "Walk"})
	require.NoError(t, err)
	_, err = fx.trackers.Create(ctx, Tracker{GoalID: goal.ID, Name: "Steps", Kind: "percent", Frequency: FrequencyDaily})
	assert.ErrorIs(t, err, storage.ErrValidation)
	_, err = fx.trackers.Create(ctx, Tracker{GoalID: goal.ID, Name: "Steps", Kind: TrackerCount, Frequency: "monthly"})
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func TestTrackerDeleteRemovesEntries(t *testing.T) {
	fx := newGoalFixture(t)
	ctx := context.Background()
	tracker := newTracker(t, fx, TrackerCount, FrequencyDaily)
	_, err := fx.trackers.RecordEntry(ctx, tracker.ID, "2024-06-03", 2, "")
	require.NoError(t, err)

	byGoal, err := fx.trackers.ListByGoal(ctx, tracker.GoalID)
	require.NoError(t, err)
	require.Len(t, byGoal, 1)

	renamed := *tracker
	renamed.Name = "Glasses of water"
	renamed.GoalID = "elsewhere"
	updated, err := fx.trackers.Update(ctx, renamed)
	require.NoError(t, err)
	assert.Equal(t, tracker.GoalID, updated.GoalID)

	require.NoError(t, fx.trackers.Delete(ctx, tracker.ID))
	entries, err := fx.trackers.ListEntries(ctx, tracker.ID, "", "")
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = fx.trackers.GetByID(ctx, tracker.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFrequencyPeriodStart(t *testing.T) {
	thursday := time.Date(2024, time.June, 6, 15, 30, 0, 0, time.UTC)

	daily, err := FrequencyDaily.PeriodStart(thursday, time.Monday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 6, 0, 0, 0, 0, time.UTC), daily)

	mondayWeek, err := FrequencyWeekly.PeriodStart(thursday, time.Monday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC), mondayWeek)

	sundayWeek, err := FrequencyWeekly.PeriodStart(thursday, time.Sunday)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC), sundayWeek)

	_, err = Frequency("hourly").PeriodStart(thursday, time.Monday)
	assert.Error(t, err)
}

func TestTrackerKindValidate(t *testing.T) {
	assert.NoError(t, TrackerBoolean.Validate(1))
	assert.Error(t, TrackerBoolean.Validate(0.5))
	assert.NoError(t, TrackerCount.Validate(4))
	assert.Error(t, TrackerCount.Validate(-1))
	assert.Error(t, TrackerCount.Validate(2.5))
	assert.NoError(t, TrackerScale.Validate(10))
	assert.Error(t, TrackerScale.Validate(0))
}

func TestTrackerUpdateKeepsKind(t *testing.T) {
	fx := newGoalFixture(t)
	ctx := context.Background()
	tracker := newTracker(t, fx, TrackerScale, FrequencyDaily)
	_, err := fx.trackers.RecordEntry(ctx, tracker.ID, "2024-06-03", 7, "")
	require.NoError(t, err)

	changed := *tracker
	changed.Kind = TrackerBoolean
	changed.Frequency = FrequencyWeekly
	updated, err := fx.trackers.Update(ctx, changed)
	require.NoError(t, err)
	assert.Equal(t, TrackerScale, updated.Kind)
	assert.Equal(t, FrequencyWeekly, updated.Frequency)

	stored, err := fx.trackers.GetByID(ctx, tracker.ID)
	require.NoError(t, err)
	assert.Equal(t, TrackerScale, stored.Kind)
	entries, err := fx.trackers.ListEntries(ctx, tracker.ID, "", "")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NoError(t, stored.Kind.Validate(entries[0].Value))
}
