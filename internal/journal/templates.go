package journal

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"gorm.io/gorm"
)

const templateEntity = "template"

// TemplateRepository stores reusable prompt lists.
type TemplateRepository struct {
	base
	templates storage.Collection[Template]
}

// NewTemplateRepository constructs a TemplateRepository.
func NewTemplateRepository(cfg Config) (*TemplateRepository, error) {
	shared, err := newBase(cfg)
	if err != nil {
		return nil, err
	}
	return &TemplateRepository{
		base:      shared,
		templates: storage.NewCollection[Template](cfg.Source, storage.CollectionConfig{Entity: templateEntity}),
	}, nil
}

func (r *TemplateRepository) GetAll(ctx context.Context) ([]Template, error) {
	templates, err := r.templates.All(ctx)
	return templates, r.fail("journal.templates.get_all", err)
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*Template, error) {
	template, err := r.templates.Get(ctx, id)
	return template, r.fail("journal.templates.get", err)
}

func (r *TemplateRepository) Create(ctx context.Context, payload Template) (*Template, error) {
	if err := validateTemplate(payload, storage.OperationCreate); err != nil {
		return nil, err
	}
	id, err := r.newID(templateEntity)
	if err != nil {
		return nil, r.fail("journal.templates.create", err)
	}
	now := r.now()
	payload.ID = id
	payload.CreatedAtMillis = now
	payload.UpdatedAtMillis = now
	if err := r.templates.Insert(ctx, &payload); err != nil {
		return nil, r.fail("journal.templates.create", err)
	}
	return &payload, nil
}

func (r *TemplateRepository) Update(ctx context.Context, template Template) (*Template, error) {
	if err := validateTemplate(template, storage.OperationUpdate); err != nil {
		return nil, err
	}
	err := r.templates.Replace(ctx, template.ID, &template, func(stored, next *Template) error {
		next.CreatedAtMillis = stored.CreatedAtMillis
		next.UpdatedAtMillis = r.now()
		return nil
	})
	if err != nil {
		return nil, r.fail("journal.templates.update", err)
	}
	return &template, nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	return r.fail("journal.templates.delete", r.templates.Remove(ctx, id))
}

// ListByKind returns the templates that pre-fill entries or reviews.
func (r *TemplateRepository) ListByKind(ctx context.Context, kind TemplateKind) ([]Template, error) {
	templates, err := r.templates.Query(ctx, fmt.Sprintf("kind %q", kind), func(db *gorm.DB) *gorm.DB {
		return db.Where("kind = ?", kind)
	})
	return templates, r.fail("journal.templates.list_by_kind", err)
}

func validateTemplate(template Template, operation storage.Operation) error {
	if strings.TrimSpace(template.Name) == "" {
		return storage.ValidationError(templateEntity, operation, template.ID, "name is required")
	}
	switch template.Kind {
	case TemplateEntry, TemplateReview:
		return nil
	default:
		return storage.ValidationError(templateEntity, operation, template.ID, fmt.Sprintf("unknown template kind %q", template.Kind))
	}
}
