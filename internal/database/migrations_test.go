package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func openTestStore(testContext *testing.T, name string) *gorm.DB {
	testContext.Helper()
	database, err := openSQLite(filepath.Join(testContext.TempDir(), name))
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	testContext.Cleanup(func() { closeQuietly(database) })
	return database
}

func migrateTo(testContext *testing.T, database *gorm.DB, target int) {
	testContext.Helper()
	version, err := ApplyMigrations(context.Background(), database, JournalVersions()[:target], zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to migrate to version %d: %v", target, err)
	}
	if version != target {
		testContext.Fatalf("expected version %d, got %d", target, version)
	}
}

func mustExec(testContext *testing.T, database *gorm.DB, statement string, args ...any) {
	testContext.Helper()
	if err := database.Exec(statement, args...).Error; err != nil {
		testContext.Fatalf("failed to execute %q: %v", statement, err)
	}
}

func seedLegacyRecords(testContext *testing.T, database *gorm.DB, count int) {
	testContext.Helper()
	legacyEmotions := []any{nil, `"happy"`, `["joy",2]`, `["calm"]`, `{"id":"sad"}`, `not json`}
	for index := 0; index < count; index++ {
		mustExec(testContext, database,
			`INSERT INTO journal_entries (id, created_at_ms, updated_at_ms, title, body, emotion_ids) VALUES (?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("entry-%04d", index), int64(1000+index), int64(1000+index), fmt.Sprintf("Day %d", index), "body",
			legacyEmotions[index%len(legacyEmotions)])
		mustExec(testContext, database,
			`INSERT INTO tags (id, name, created_at_ms, updated_at_ms) VALUES (?, ?, ?, ?)`,
			fmt.Sprintf("tag-%04d", index), fmt.Sprintf(" Friend %d ", index), int64(1000+index), int64(1000+index))
	}
}

func dumpTables(testContext *testing.T, database *gorm.DB) string {
	testContext.Helper()
	var tables []string
	if err := database.Raw(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`).Scan(&tables).Error; err != nil {
		testContext.Fatalf("failed to list tables: %v", err)
	}
	dump := map[string][]map[string]any{}
	for _, table := range tables {
		if table == "schema_versions" {
			continue
		}
		rows := make([]map[string]any, 0)
		if err := database.Table(table).Order("rowid").Find(&rows).Error; err != nil {
			testContext.Fatalf("failed to dump %s: %v", table, err)
		}
		for _, row := range rows {
			for column, value := range row {
				if raw, ok := value.([]byte); ok {
					row[column] = string(raw)
				}
			}
		}
		dump[table] = rows
	}
	encoded, err := json.Marshal(dump)
	if err != nil {
		testContext.Fatalf("failed to encode dump: %v", err)
	}
	return string(encoded)
}

func TestApplyMigrationsCoercesLegacyEntryArrays(testContext *testing.T) {
	database := openTestStore(testContext, "legacy.db")
	migrateTo(testContext, database, 2)
	seedLegacyRecords(testContext, database, 6)

	migrateTo(testContext, database, len(JournalVersions()))

	type entryColumns struct {
		ID            string         `gorm:"column:id"`
		EmotionIDs    sql.NullString `gorm:"column:emotion_ids"`
		PeopleTagIDs  sql.NullString `gorm:"column:people_tag_ids"`
		ContextTagIDs sql.NullString `gorm:"column:context_tag_ids"`
		Sessions      sql.NullString `gorm:"column:sessions"`
	}
	var rows []entryColumns
	if err := database.Raw(`SELECT id, emotion_ids, people_tag_ids, context_tag_ids, sessions FROM journal_entries ORDER BY id`).Scan(&rows).Error; err != nil {
		testContext.Fatalf("failed to read entries: %v", err)
	}
	expectedEmotions := []string{`[]`, `[]`, `["joy"]`, `["calm"]`, `[]`, `[]`}
	if len(rows) != len(expectedEmotions) {
		testContext.Fatalf("expected %d entries, got %d", len(expectedEmotions), len(rows))
	}
	for index, row := range rows {
		if row.EmotionIDs.String != expectedEmotions[index] {
			testContext.Fatalf("entry %s: expected emotion ids %s, got %q", row.ID, expectedEmotions[index], row.EmotionIDs.String)
		}
		for column, value := range map[string]sql.NullString{"people": row.PeopleTagIDs, "context": row.ContextTagIDs, "sessions": row.Sessions} {
			if !value.Valid || value.String != "[]" {
				testContext.Fatalf("entry %s: expected empty %s array, got %+v", row.ID, column, value)
			}
		}
	}
}

func TestApplyMigrationsCoercesLegacyMoodLogArrays(testContext *testing.T) {
	database := openTestStore(testContext, "moods.db")
	migrateTo(testContext, database, 2)
	mustExec(testContext, database,
		`INSERT INTO mood_logs (id, created_at_ms, updated_at_ms, emotion_ids, people_tag_ids, context_tag_ids) VALUES ('mood-1', 1, 1, '"happy"', 5, 'not json')`)
	mustExec(testContext, database,
		`INSERT INTO mood_logs (id, created_at_ms, updated_at_ms, emotion_ids, people_tag_ids, context_tag_ids) VALUES ('mood-2', 2, 2, '["calm",3]', '["tag-1"]', '[]')`)

	migrateTo(testContext, database, len(JournalVersions()))

	type moodColumns struct {
		ID            string `gorm:"column:id"`
		EmotionIDs    string `gorm:"column:emotion_ids"`
		PeopleTagIDs  string `gorm:"column:people_tag_ids"`
		ContextTagIDs string `gorm:"column:context_tag_ids"`
	}
	var rows []moodColumns
	if err := database.Raw(`SELECT id, CAST(emotion_ids AS TEXT) AS emotion_ids, CAST(people_tag_ids AS TEXT) AS people_tag_ids, CAST(context_tag_ids AS TEXT) AS context_tag_ids FROM mood_logs ORDER BY id`).Scan(&rows).Error; err != nil {
		testContext.Fatalf("failed to read mood logs: %v", err)
	}
	expected := []moodColumns{
		{ID: "mood-1", EmotionIDs: `[]`, PeopleTagIDs: `[]`, ContextTagIDs: `[]`},
		{ID: "mood-2", EmotionIDs: `["calm"]`, PeopleTagIDs: `["tag-1"]`, ContextTagIDs: `[]`},
	}
	if len(rows) != len(expected) {
		testContext.Fatalf("expected %d mood logs, got %d", len(expected), len(rows))
	}
	for index, row := range rows {
		if row != expected[index] {
			testContext.Fatalf("mood log %s: expected %+v, got %+v", row.ID, expected[index], row)
		}
	}
}

func TestApplyMigrationsBackfillsTagNameKeys(testContext *testing.T) {
	database := openTestStore(testContext, "tags.db")
	migrateTo(testContext, database, 1)
	mustExec(testContext, database, `INSERT INTO tags (id, name, created_at_ms, updated_at_ms) VALUES ('tag-1', '  Mom ', 1, 1)`)
	mustExec(testContext, database, `INSERT INTO tags (id, name, created_at_ms, updated_at_ms) VALUES ('tag-2', 'Straße', 2, 2)`)

	migrateTo(testContext, database, len(JournalVersions()))

	var keys []string
	if err := database.Raw(`SELECT name_key FROM tags ORDER BY id`).Scan(&keys).Error; err != nil {
		testContext.Fatalf("failed to read tag keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "mom" || keys[1] != "strasse" {
		testContext.Fatalf("unexpected tag keys %v", keys)
	}
	var kinds []string
	if err := database.Raw(`SELECT kind FROM tags ORDER BY id`).Scan(&kinds).Error; err != nil {
		testContext.Fatalf("failed to read tag kinds: %v", err)
	}
	for _, kind := range kinds {
		if kind != "people" {
			testContext.Fatalf("expected legacy tags to default to people, got %q", kind)
		}
	}
}

func TestApplyMigrationsSeedsDefaultSettings(testContext *testing.T) {
	database := openTestStore(testContext, "settings.db")
	migrateTo(testContext, database, len(JournalVersions()))

	var stored settingRow
	if err := database.Where("key = ?", SettingWeekStartDay).Take(&stored).Error; err != nil {
		testContext.Fatalf("expected week start setting: %v", err)
	}
	if stored.Value != defaultWeekStartDay {
		testContext.Fatalf("expected week start %q, got %q", defaultWeekStartDay, stored.Value)
	}
}

func TestApplyMigrationsConvergesFromEveryPath(testContext *testing.T) {
	for _, seeds := range []int{2, 120} {
		seeds := seeds
		testContext.Run(fmt.Sprintf("%d records", seeds), func(testContext *testing.T) {
			direct := openTestStore(testContext, "direct.db")
			migrateTo(testContext, direct, 1)
			seedLegacyRecords(testContext, direct, seeds)
			migrateTo(testContext, direct, len(JournalVersions()))

			stepwise := openTestStore(testContext, "stepwise.db")
			migrateTo(testContext, stepwise, 1)
			seedLegacyRecords(testContext, stepwise, seeds)
			for target := 2; target <= len(JournalVersions()); target++ {
				migrateTo(testContext, stepwise, target)
			}

			if dumpTables(testContext, direct) != dumpTables(testContext, stepwise) {
				testContext.Fatalf("expected direct and stepwise migrations to produce identical stores")
			}
		})
	}
}

func TestApplyMigrationsReopenIsNoOp(testContext *testing.T) {
	path := filepath.Join(testContext.TempDir(), "nested", "reopen.db")
	ctx := context.Background()

	database, version, err := OpenUserStore(ctx, path, JournalVersions(), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open store: %v", err)
	}
	if version != len(JournalVersions()) {
		testContext.Fatalf("expected version %d, got %d", len(JournalVersions()), version)
	}
	seedLegacyRecords(testContext, database, 3)
	before := dumpTables(testContext, database)
	closeQuietly(database)

	reopened, version, err := OpenUserStore(ctx, path, JournalVersions(), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to reopen store: %v", err)
	}
	defer closeQuietly(reopened)
	if version != len(JournalVersions()) {
		testContext.Fatalf("expected version %d after reopen, got %d", len(JournalVersions()), version)
	}
	if after := dumpTables(testContext, reopened); after != before {
		testContext.Fatalf("expected reopen to leave the store unchanged")
	}
	var markers int64
	if err := reopened.Model(&migrationRecord{}).Count(&markers).Error; err != nil {
		testContext.Fatalf("failed to count markers: %v", err)
	}
	if markers != int64(len(JournalVersions())) {
		testContext.Fatalf("expected %d version markers, got %d", len(JournalVersions()), markers)
	}
}

func TestApplyMigrationsRollsBackFailedVersion(testContext *testing.T) {
	database := openTestStore(testContext, "failure.db")
	ctx := context.Background()

	failNext := true
	versions := JournalVersions()
	versions[2].Transform = func(tx *gorm.DB, _ *zap.Logger) error {
		if err := tx.Exec(`INSERT INTO tags (id, name, created_at_ms, updated_at_ms) VALUES ('tag-x', 'Work', 1, 1)`).Error; err != nil {
			return err
		}
		if failNext {
			failNext = false
			return errors.New("disk full")
		}
		return nil
	}

	version, err := ApplyMigrations(ctx, database, versions, zap.NewNop())
	if !errors.Is(err, ErrMigrationFailed) {
		testContext.Fatalf("expected migration failure, got %v", err)
	}
	var migrationErr *MigrationError
	if !errors.As(err, &migrationErr) || migrationErr.Version != 3 {
		testContext.Fatalf("expected failure at version 3, got %v", err)
	}
	if version != 2 {
		testContext.Fatalf("expected to stop at version 2, got %d", version)
	}
	current, err := CurrentVersion(ctx, database)
	if err != nil || current != 2 {
		testContext.Fatalf("expected stored version 2, got %d (%v)", current, err)
	}
	var tags int64
	if err := database.Table("tags").Count(&tags).Error; err != nil || tags != 0 {
		testContext.Fatalf("expected the failed step to roll back, found %d tags (%v)", tags, err)
	}

	version, err = ApplyMigrations(ctx, database, versions, zap.NewNop())
	if err != nil {
		testContext.Fatalf("expected retry to succeed: %v", err)
	}
	if version != len(versions) {
		testContext.Fatalf("expected version %d after retry, got %d", len(versions), version)
	}
	if err := database.Table("tags").Count(&tags).Error; err != nil || tags != 1 {
		testContext.Fatalf("expected exactly one tag after retry, found %d (%v)", tags, err)
	}
}

func TestApplyMigrationsRejectsNewerSchema(testContext *testing.T) {
	database := openTestStore(testContext, "newer.db")
	migrateTo(testContext, database, len(JournalVersions()))

	version, err := ApplyMigrations(context.Background(), database, JournalVersions()[:3], zap.NewNop())
	if !errors.Is(err, ErrSchemaTooNew) {
		testContext.Fatalf("expected schema too new, got %v", err)
	}
	if version != len(JournalVersions()) {
		testContext.Fatalf("expected stored version to be reported, got %d", version)
	}
}

func TestApplyMigrationsRejectsInvalidVersions(testContext *testing.T) {
	database := openTestStore(testContext, "invalid.db")
	for name, versions := range map[string][]Version{
		"empty":     nil,
		"gap":       {{Number: 1}, {Number: 3}},
		"not first": {{Number: 2}},
	} {
		if _, err := ApplyMigrations(context.Background(), database, versions, nil); !errors.Is(err, ErrInvalidVersions) {
			testContext.Fatalf("%s: expected invalid versions, got %v", name, err)
		}
	}
}

func TestCoerceStringArray(testContext *testing.T) {
	testCases := []struct {
		stored   sql.NullString
		expected string
		changed  bool
	}{
		{stored: sql.NullString{}, expected: `[]`, changed: true},
		{stored: sql.NullString{Valid: true, String: `[]`}, expected: `[]`, changed: false},
		{stored: sql.NullString{Valid: true, String: `["a","b"]`}, expected: `["a","b"]`, changed: false},
		{stored: sql.NullString{Valid: true, String: `[ "a" ]`}, expected: `["a"]`, changed: true},
		{stored: sql.NullString{Valid: true, String: `17`}, expected: `[]`, changed: true},
		{stored: sql.NullString{Valid: true, String: `[null,"a",{}]`}, expected: `["a"]`, changed: true},
	}
	for _, testCase := range testCases {
		coerced, changed := coerceStringArray(testCase.stored)
		if string(coerced) != testCase.expected || changed != testCase.changed {
			testContext.Fatalf("coerce %+v: expected %s/%v, got %s/%v", testCase.stored, testCase.expected, testCase.changed, coerced, changed)
		}
	}
}
