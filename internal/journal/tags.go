package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/inkwell/internal/aggregation"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"golang.org/x/text/cases"
	"gorm.io/gorm"
)

const tagEntity = "tag"

// TagRepository reads and writes people and context tags.
type TagRepository struct {
	base
	tags storage.Collection[Tag]
}

// NewTagRepository constructs a TagRepository.
func NewTagRepository(cfg Config) (*TagRepository, error) {
	shared, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &TagRepository{
		base: shared,
		tags: storage.NewCollection[Tag](cfg.Source, storage.CollectionConfig{Entity: tagEntity, Order: "name_key ASC, id ASC"}),
	}, nil
}

// GetAll returns every tag ordered by name.
func (r *TagRepository) GetAll(ctx context.Context) ([]Tag, error) {
	tags, err := r.tags.All(ctx)
	return tags, r.fail("journal.tags.get_all", err)
}

// GetByID returns one tag.
func (r *TagRepository) GetByID(ctx context.Context, id string) (*Tag, error) {
	tag, err := r.tags.Get(ctx, id)
	return tag, r.fail("journal.tags.get", err)
}

// Create stores a tag. Names are unique per kind regardless of case.
func (r *TagRepository) Create(ctx context.Context, payload Tag) (*Tag, error) {
	if err := validateTag(payload, ""); err != nil {
		return nil, err
	}
	id, err := r.newID(tagEntity)
	if err != nil {
		return nil, r.fail("journal.tags.create", err)
	}
	now := r.now()
	payload.ID = id
	payload.CreatedAtMillis = now
	payload.UpdatedAtMillis = now
	payload.Name = strings.TrimSpace(payload.Name)
	payload.NameKey = nameKey(payload.Name)

	err = r.tags.Transaction(ctx, storage.OperationCreate, "", func(tx *gorm.DB) error {
		if err := ensureUniqueName(tx, storage.OperationCreate, payload); err != nil {
			return err
		}
		return tx.Create(&payload).Error
	})
	if err != nil {
		return nil, r.fail("journal.tags.create", err)
	}
	return &payload, nil
}

// Update renames or re-kinds a tag.
func (r *TagRepository) Update(ctx context.Context, tag Tag) (*Tag, error) {
	if err := validateTag(tag, tag.ID); err != nil {
		return nil, err
	}
	tag.Name = strings.TrimSpace(tag.Name)
	tag.NameKey = nameKey(tag.Name)
	err := r.tags.Transaction(ctx, storage.OperationUpdate, tag.ID, func(tx *gorm.DB) error {
		stored, err := r.tags.GetTx(tx, storage.OperationUpdate, tag.ID)
		if err != nil {
			return err
		}
		if err := ensureUniqueName(tx, storage.OperationUpdate, tag); err != nil {
			return err
		}
		tag.CreatedAtMillis = stored.CreatedAtMillis
		tag.UpdatedAtMillis = r.now()
		return tx.Save(&tag).Error
	})
	if err != nil {
		return nil, r.fail("journal.tags.update", err)
	}
	return &tag, nil
}

// Delete removes a tag. Entries keep referring to its id.
func (r *TagRepository) Delete(ctx context.Context, id string) error {
	return r.fail("journal.tags.delete", r.tags.Remove(ctx, id))
}

// ListByKind returns the tags of one kind.
func (r *TagRepository) ListByKind(ctx context.Context, kind aggregation.TagKind) ([]Tag, error) {
	tags, err := r.tags.Query(ctx, fmt.Sprintf("kind %q", kind), func(db *gorm.DB) *gorm.DB {
		return db.Where("kind = ?", kind)
	})
	return tags, r.fail("journal.tags.list_by_kind", err)
}

// FindByName looks a tag up by name, ignoring case.
func (r *TagRepository) FindByName(ctx context.Context, kind aggregation.TagKind, name string) (*Tag, error) {
	key := nameKey(name)
	tag, err := r.tags.First(ctx, fmt.Sprintf("%s name %q", kind, key), func(db *gorm.DB) *gorm.DB {
		return db.Where("kind = ? AND name_key = ?", kind, key)
	})
	return tag, r.fail("journal.tags.find_by_name", err)
}

func ensureUniqueName(tx *gorm.DB, operation storage.Operation, tag Tag) error {
	var clashes int64
	err := tx.Model(&Tag{}).
		Where("kind = ? AND name_key = ? AND id <> ?", tag.Kind, tag.NameKey, tag.ID).
		Count(&clashes).Error
	if err != nil {
		return err
	}
	if clashes > 0 {
		return storage.ValidationError(tagEntity, operation, tag.ID, fmt.Sprintf("%s tag %q already exists", tag.Kind, tag.Name))
	}
	return nil
}

func validateTag(tag Tag, id string) error {
	operation := storage.OperationCreate
	if id != "" {
		operation = storage.OperationUpdate
	}
	if strings.TrimSpace(tag.Name) == "" {
		return storage.ValidationError(tagEntity, operation, id, "name is required")
	}
	if _, err := tagColumn(tag.Kind); err != nil {
		return storage.ValidationError(tagEntity, operation, id, err.Error())
	}
	return nil
}

func nameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
