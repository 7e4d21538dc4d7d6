package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/aggregation"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"gorm.io/gorm"
)

const entryEntity = "journal_entry"

// EntryRepository reads and writes journal entries of the connected user.
type EntryRepository struct {
	base
	entries storage.Collection[Entry]
}

// NewEntryRepository constructs an EntryRepository.
func NewEntryRepository(cfg Config) (*EntryRepository, error) {
	shared, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &EntryRepository{
		base:    shared,
		entries: storage.NewCollection[Entry](cfg.Source, storage.CollectionConfig{Entity: entryEntity}),
	}, nil
}

// GetAll returns every entry, oldest first.
func (r *EntryRepository) GetAll(ctx context.Context) ([]Entry, error) {
	entries, err := r.entries.All(ctx)
	return entries, r.fail("journal.entries.get_all", err)
}

// GetByID returns one entry.
func (r *EntryRepository) GetByID(ctx context.Context, id string) (*Entry, error) {
	entry, err := r.entries.Get(ctx, id)
	return entry, r.fail("journal.entries.get", err)
}

// Create stores payload under a fresh id and timestamp pair. Any id in payload is ignored.
func (r *EntryRepository) Create(ctx context.Context, payload Entry) (*Entry, error) {
	id, err := r.newID(entryEntity)
	if err != nil {
		return nil, r.fail("journal.entries.create", err)
	}
	now := r.now()
	payload.ID = id
	payload.CreatedAtMillis = now
	payload.UpdatedAtMillis = now
	if err := r.entries.Insert(ctx, &payload); err != nil {
		return nil, r.fail("journal.entries.create", err)
	}
	return &payload, nil
}

// Update replaces the stored entry. The creation time is kept and the modification time recomputed.
func (r *EntryRepository) Update(ctx context.Context, entry Entry) (*Entry, error) {
	err := r.entries.Replace(ctx, entry.ID, &entry, func(stored, next *Entry) error {
		next.CreatedAtMillis = stored.CreatedAtMillis
		next.UpdatedAtMillis = r.now()
		return nil
	})
	if err != nil {
		return nil, r.fail("journal.entries.update", err)
	}
	return &entry, nil
}

// Delete removes an entry.
func (r *EntryRepository) Delete(ctx context.Context, id string) error {
	return r.fail("journal.entries.delete", r.entries.Remove(ctx, id))
}

// ListBetween returns entries created within [start, end].
func (r *EntryRepository) ListBetween(ctx context.Context, start, end time.Time) ([]Entry, error) {
	entries, err := r.entries.Query(ctx, "created_at range", createdBetween(start, end))
	return entries, r.fail("journal.entries.list_between", err)
}

// ListByTag returns entries that reference tagID as a tag of the given kind.
func (r *EntryRepository) ListByTag(ctx context.Context, kind aggregation.TagKind, tagID string) ([]Entry, error) {
	column, err := tagColumn(kind)
	if err != nil {
		return nil, storage.ValidationError(entryEntity, storage.OperationQuery, "", err.Error())
	}
	entries, err := r.entries.Query(ctx, fmt.Sprintf("%s tag %q", kind, tagID), containsMember("journal_entries", column, tagID))
	return entries, r.fail("journal.entries.list_by_tag", err)
}

// ListByEmotion returns entries that recorded emotionID.
func (r *EntryRepository) ListByEmotion(ctx context.Context, emotionID string) ([]Entry, error) {
	entries, err := r.entries.Query(ctx, fmt.Sprintf("emotion %q", emotionID), containsMember("journal_entries", "emotion_ids", emotionID))
	return entries, r.fail("journal.entries.list_by_emotion", err)
}

func createdBetween(start, end time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at_ms BETWEEN ? AND ?", start.UnixMilli(), end.UnixMilli())
	}
}

// containsMember matches rows whose JSON array column holds value.
func containsMember(table, column, value string) func(*gorm.DB) *gorm.DB {
	clause := fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s.%s) WHERE json_each.value = ?)", table, column)
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause, value)
	}
}

func tagColumn(kind aggregation.TagKind) (string, error) {
	switch kind {
	case aggregation.TagKindPeople:
		return "people_tag_ids", nil
	case aggregation.TagKindContext:
		return "context_tag_ids", nil
	default:
		return "", fmt.Errorf("unknown tag kind %q", kind)
	}
}
