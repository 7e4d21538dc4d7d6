package database

import (
	"database/sql"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	transformBatchSize = 100

	// SettingWeekStartDay holds the first day of the week (0 = Sunday ... 6 = Saturday).
	SettingWeekStartDay = "week_start_day"
	defaultWeekStartDay = "1"
)

// JournalVersions returns the ordered schema history of a per-user journal store.
func JournalVersions() []Version {
	return []Version{
		{
			Number: 1,
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS journal_entries (
					id TEXT PRIMARY KEY,
					created_at_ms INTEGER NOT NULL,
					updated_at_ms INTEGER NOT NULL,
					title TEXT,
					body TEXT NOT NULL DEFAULT '',
					emotion_ids TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_journal_entries_created ON journal_entries(created_at_ms)`,
				`CREATE TABLE IF NOT EXISTS tags (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					created_at_ms INTEGER NOT NULL,
					updated_at_ms INTEGER NOT NULL
				)`,
			},
		},
		{
			Number: 2,
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS mood_logs (
					id TEXT PRIMARY KEY,
					created_at_ms INTEGER NOT NULL,
					updated_at_ms INTEGER NOT NULL,
					emotion_ids TEXT NOT NULL DEFAULT '[]',
					note TEXT,
					people_tag_ids TEXT NOT NULL DEFAULT '[]',
					context_tag_ids TEXT NOT NULL DEFAULT '[]'
				)`,
				`CREATE INDEX IF NOT EXISTS idx_mood_logs_created ON mood_logs(created_at_ms)`,
			},
		},
		{
			Number: 3,
			Statements: []string{
				`ALTER TABLE journal_entries ADD COLUMN people_tag_ids TEXT`,
				`ALTER TABLE journal_entries ADD COLUMN context_tag_ids TEXT`,
				`ALTER TABLE journal_entries ADD COLUMN sessions TEXT`,
				`ALTER TABLE tags ADD COLUMN kind TEXT NOT NULL DEFAULT 'people'`,
				`ALTER TABLE tags ADD COLUMN name_key TEXT NOT NULL DEFAULT ''`,
				`CREATE INDEX IF NOT EXISTS idx_tags_kind_name ON tags(kind, name_key)`,
			},
			Transform: func(tx *gorm.DB, logger *zap.Logger) error {
				if err := coerceEntryArrays(tx, logger); err != nil {
					return err
				}
				if err := coerceMoodLogArrays(tx, logger); err != nil {
					return err
				}
				return backfillTagNameKeys(tx, logger)
			},
		},
		{
			Number: 4,
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS periodic_reviews (
					id TEXT PRIMARY KEY,
					created_at_ms INTEGER NOT NULL,
					updated_at_ms INTEGER NOT NULL,
					type TEXT NOT NULL,
					period_start TEXT NOT NULL,
					period_end TEXT NOT NULL,
					sections TEXT NOT NULL DEFAULT '[]',
					aggregated_data TEXT NOT NULL DEFAULT '{}'
				)`,
				`CREATE INDEX IF NOT EXISTS idx_periodic_reviews_period ON periodic_reviews(type, period_start)`,
			},
		},
		{
			Number: 5,
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS goals (
					id TEXT PRIMARY KEY,
					created_at_ms INTEGER NOT NULL,
					updated_at_ms INTEGER NOT NULL,
					title TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					source_period_type TEXT NOT NULL DEFAULT '',
					source_entry_id TEXT NOT NULL DEFAULT '',
					parent_goal_id TEXT,
					child_goal_ids TEXT NOT NULL DEFAULT '[]'
				)`,
				`CREATE INDEX IF NOT EXISTS idx_goals_parent ON goals(parent_goal_id)`,
				`CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status)`,
				`CREATE INDEX IF NOT EXISTS idx_goals_source_entry ON goals(source_entry_id)`,
			},
		},
		{
			Number: 6,
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS goal_trackers (
					id TEXT PRIMARY KEY,
					created_at_ms INTEGER NOT NULL,
					updated_at_ms INTEGER NOT NULL,
					goal_id TEXT NOT NULL,
					name TEXT NOT NULL,
					kind TEXT NOT NULL,
					frequency TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_goal_trackers_goal ON goal_trackers(goal_id)`,
				`CREATE TABLE IF NOT EXISTS tracker_entries (
					id TEXT PRIMARY KEY,
					created_at_ms INTEGER NOT NULL,
					updated_at_ms INTEGER NOT NULL,
					tracker_id TEXT NOT NULL,
					date TEXT NOT NULL,
					value REAL NOT NULL DEFAULT 0,
					note TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_tracker_entries_tracker_date ON tracker_entries(tracker_id, date)`,
			},
		},
		{
			Number: 7,
			Statements: []string{
				`CREATE TABLE IF NOT EXISTS templates (
					id TEXT PRIMARY KEY,
					created_at_ms INTEGER NOT NULL,
					updated_at_ms INTEGER NOT NULL,
					name TEXT NOT NULL,
					kind TEXT NOT NULL,
					sections TEXT NOT NULL DEFAULT '[]'
				)`,
				`CREATE INDEX IF NOT EXISTS idx_templates_kind ON templates(kind)`,
				`CREATE TABLE IF NOT EXISTS settings (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at_ms INTEGER NOT NULL DEFAULT 0
				)`,
			},
			Transform: seedDefaultSettings,
		},
	}
}

type legacyEntryRow struct {
	ID            string         `gorm:"column:id;primaryKey"`
	EmotionIDs    sql.NullString `gorm:"column:emotion_ids"`
	PeopleTagIDs  sql.NullString `gorm:"column:people_tag_ids"`
	ContextTagIDs sql.NullString `gorm:"column:context_tag_ids"`
	Sessions      sql.NullString `gorm:"column:sessions"`
}

func (legacyEntryRow) TableName() string {
	return "journal_entries"
}

func coerceEntryArrays(tx *gorm.DB, logger *zap.Logger) error {
	var rows []legacyEntryRow
	processed, rewritten, skipped := 0, 0, 0
	result := tx.FindInBatches(&rows, transformBatchSize, func(_ *gorm.DB, _ int) error {
		for _, row := range rows {
			processed++
			updates := map[string]any{}
			for column, stored := range map[string]sql.NullString{
				"emotion_ids":     row.EmotionIDs,
				"people_tag_ids":  row.PeopleTagIDs,
				"context_tag_ids": row.ContextTagIDs,
			} {
				if coerced, changed := coerceStringArray(stored); changed {
					updates[column] = coerced
				}
			}
			if coerced, changed := coerceObjectArray(row.Sessions); changed {
				updates["sessions"] = coerced
			}
			if len(updates) == 0 {
				continue
			}
			if err := tx.Model(&legacyEntryRow{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
				skipped++
				logger.Warn("journal entry migration skipped", zap.String("entry_id", row.ID), zap.Error(err))
				continue
			}
			rewritten++
		}
		return nil
	})
	if result.Error != nil {
		return result.Error
	}
	logger.Info("journal entry arrays coerced",
		zap.Int("processed", processed),
		zap.Int("rewritten", rewritten),
		zap.Int("skipped", skipped))
	return nil
}

type legacyMoodLogRow struct {
	ID            string         `gorm:"column:id;primaryKey"`
	EmotionIDs    sql.NullString `gorm:"column:emotion_ids"`
	PeopleTagIDs  sql.NullString `gorm:"column:people_tag_ids"`
	ContextTagIDs sql.NullString `gorm:"column:context_tag_ids"`
}

func (legacyMoodLogRow) TableName() string {
	return "mood_logs"
}

func coerceMoodLogArrays(tx *gorm.DB, logger *zap.Logger) error {
	var rows []legacyMoodLogRow
	processed, rewritten, skipped := 0, 0, 0
	result := tx.FindInBatches(&rows, transformBatchSize, func(_ *gorm.DB, _ int) error {
		for _, row := range rows {
			processed++
			updates := map[string]any{}
			for column, stored := range map[string]sql.NullString{
				"emotion_ids":     row.EmotionIDs,
				"people_tag_ids":  row.PeopleTagIDs,
				"context_tag_ids": row.ContextTagIDs,
			} {
				if coerced, changed := coerceStringArray(stored); changed {
					updates[column] = coerced
				}
			}
			if len(updates) == 0 {
				continue
			}
			if err := tx.Model(&legacyMoodLogRow{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
				skipped++
				logger.Warn("mood log migration skipped", zap.String("mood_log_id", row.ID), zap.Error(err))
				continue
			}
			rewritten++
		}
		return nil
	})
	if result.Error != nil {
		return result.Error
	}
	logger.Info("mood log arrays coerced",
		zap.Int("processed", processed),
		zap.Int("rewritten", rewritten),
		zap.Int("skipped", skipped))
	return nil
}

// coerceStringArray keeps the string members of a stored JSON array and maps every other
// stored value (NULL, scalars, objects, malformed JSON) to an empty array.
func coerceStringArray(stored sql.NullString) (datatypes.JSON, bool) {
	ids := []string{}
	if stored.Valid {
		var members []any
		if err := json.Unmarshal([]byte(stored.String), &members); err == nil {
			for _, member := range members {
				if id, ok := member.(string); ok {
					ids = append(ids, id)
				}
			}
		}
	}
	encoded, _ := json.Marshal(ids)
	return datatypes.JSON(encoded), !stored.Valid || stored.String != string(encoded)
}

func coerceObjectArray(stored sql.NullString) (datatypes.JSON, bool) {
	members := []json.RawMessage{}
	if stored.Valid {
		var decoded []json.RawMessage
		if err := json.Unmarshal([]byte(stored.String), &decoded); err == nil {
			for _, member := range decoded {
				if strings.HasPrefix(strings.TrimSpace(string(member)), "{") {
					members = append(members, member)
				}
			}
		}
	}
	encoded, _ := json.Marshal(members)
	return datatypes.JSON(encoded), !stored.Valid || stored.String != string(encoded)
}

type legacyTagRow struct {
	ID      string `gorm:"column:id;primaryKey"`
	Name    string `gorm:"column:name"`
	NameKey string `gorm:"column:name_key"`
}

func (legacyTagRow) TableName() string {
	return "tags"
}

func backfillTagNameKeys(tx *gorm.DB, logger *zap.Logger) error {
	var rows []legacyTagRow
	fold := cases.Fold()
	result := tx.FindInBatches(&rows, transformBatchSize, func(_ *gorm.DB, _ int) error {
		for _, row := range rows {
			key := fold.String(strings.TrimSpace(row.Name))
			if key == row.NameKey {
				continue
			}
			if err := tx.Model(&legacyTagRow{}).Where("id = ?", row.ID).Update("name_key", key).Error; err != nil {
				logger.Warn("tag migration skipped", zap.String("tag_id", row.ID), zap.Error(err))
			}
		}
		return nil
	})
	return result.Error
}

type settingRow struct {
	Key             string `gorm:"column:key;primaryKey"`
	Value           string `gorm:"column:value"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms"`
}

func (settingRow) TableName() string {
	return "settings"
}

func seedDefaultSettings(tx *gorm.DB, _ *zap.Logger) error {
	var count int64
	if err := tx.Model(&settingRow{}).Where("key = ?", SettingWeekStartDay).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&settingRow{Key: SettingWeekStartDay, Value: defaultWeekStartDay}).Error
}
