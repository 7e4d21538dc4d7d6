package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/inkwell/internal/database"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	settingEntity       = "setting"
	defaultWeekStartDay = 1
)

// SettingsRepository stores user preferences as key/value pairs.
type SettingsRepository struct {
	base
	settings storage.Collection[Setting]
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(cfg Config) (*SettingsRepository, error) {
	shared, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &SettingsRepository{
		base:     shared,
		settings: storage.NewCollection[Setting](cfg.Source, storage.CollectionConfig{Entity: settingEntity, KeyColumn: "key", Order: "key ASC"}),
	}, nil
}

// GetAll returns every stored preference.
func (r *SettingsRepository) GetAll(ctx context.Context) ([]Setting, error) {
	settings, err := r.settings.All(ctx)
	return settings, r.fail("journal.settings.get_all", err)
}

// Get returns the preference stored under key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*Setting, error) {
	setting, err := r.settings.Get(ctx, key)
	return setting, r.fail("journal.settings.get", err)
}

// Put creates or overwrites a preference.
func (r *SettingsRepository) Put(ctx context.Context, key, value string) (*Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, storage.ValidationError(settingEntity, storage.OperationUpdate, key, "key is required")
	}
	setting := Setting{Key: key, Value: value, UpdatedAtMillis: r.now()}
	err := r.settings.Transaction(ctx, storage.OperationUpdate, key, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at_ms"}),
		}).Create(&setting).Error
	})
	if err != nil {
		return nil, r.fail("journal.settings.put", err)
	}
	return &setting, nil
}

// Delete removes a preference.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	return r.fail("journal.settings.delete", r.settings.Remove(ctx, key))
}

// WeekStartDay returns the first day of the week, 0 for Sunday through 6 for Saturday.
func (r *SettingsRepository) WeekStartDay(ctx context.Context) (int, error) {
	setting, err := r.settings.Get(ctx, database.SettingWeekStartDay)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return defaultWeekStartDay, nil
		}
		return 0, r.fail("journal.settings.week_start_day", err)
	}
	day, err := strconv.Atoi(setting.Value)
	if err != nil || !validWeekday(day) {
		r.logger.Warn("stored week start day is invalid", zap.String("value", setting.Value))
		return defaultWeekStartDay, nil
	}
	return day, nil
}

// SetWeekStartDay stores the first day of the week.
func (r *SettingsRepository) SetWeekStartDay(ctx context.Context, day int) error {
	if !validWeekday(day) {
		return storage.ValidationError(settingEntity, storage.OperationUpdate, database.SettingWeekStartDay, fmt.Sprintf("day %d is outside 0..6", day))
	}
	_, err := r.Put(ctx, database.SettingWeekStartDay, strconv.Itoa(day))
	return err
}

func validWeekday(day int) bool {
	return day >= 0 && day <= 6
}
