// Package journal stores the journal entries, tags, mood logs, periodic reviews, templates and
// settings of the connected user.
package journal

import (
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/aggregation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ConversationTurn is one exchange inside a guided conversation.
type ConversationTurn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ConversationSession is a guided conversation attached to an entry.
type ConversationSession struct {
	ID              string             `json:"id"`
	StartedAtMillis int64              `json:"startedAt"`
	Turns           []ConversationTurn `json:"turns"`
}

// Entry is a free-text journal entry.
type Entry struct {
	ID              string                `gorm:"column:id;primaryKey" json:"id"`
	CreatedAtMillis int64                 `gorm:"column:created_at_ms" json:"createdAt"`
	UpdatedAtMillis int64                 `gorm:"column:updated_at_ms" json:"updatedAt"`
	Title           string                `gorm:"column:title" json:"title,omitempty"`
	Body            string                `gorm:"column:body" json:"body"`
	EmotionIDs      []string              `gorm:"column:emotion_ids;serializer:json" json:"emotionIds"`
	PeopleTagIDs    []string              `gorm:"column:people_tag_ids;serializer:json" json:"peopleTagIds"`
	ContextTagIDs   []string              `gorm:"column:context_tag_ids;serializer:json" json:"contextTagIds"`
	Sessions        []ConversationSession `gorm:"column:sessions;serializer:json" json:"sessions"`
}

func (Entry) TableName() string {
	return "journal_entries"
}

// BeforeSave stores absent lists as empty arrays.
func (e *Entry) BeforeSave(_ *gorm.DB) error {
	e.EmotionIDs = nonNil(e.EmotionIDs)
	e.PeopleTagIDs = nonNil(e.PeopleTagIDs)
	e.ContextTagIDs = nonNil(e.ContextTagIDs)
	if e.Sessions == nil {
		e.Sessions = []ConversationSession{}
	}
	for index := range e.Sessions {
		if e.Sessions[index].Turns == nil {
			e.Sessions[index].Turns = []ConversationTurn{}
		}
	}
	return nil
}

// Record projects the entry for the aggregation engine.
func (e Entry) Record() aggregation.Record {
	return aggregation.Record{
		ID:            e.ID,
		CreatedAt:     time.UnixMilli(e.CreatedAtMillis).UTC(),
		EmotionIDs:    e.EmotionIDs,
		PeopleTagIDs:  e.PeopleTagIDs,
		ContextTagIDs: e.ContextTagIDs,
	}
}

// Tag names a person or a context that entries and mood logs refer to.
type Tag struct {
	ID              string              `gorm:"column:id;primaryKey" json:"id"`
	CreatedAtMillis int64               `gorm:"column:created_at_ms" json:"createdAt"`
	UpdatedAtMillis int64               `gorm:"column:updated_at_ms" json:"updatedAt"`
	Name            string              `gorm:"column:name" json:"name"`
	Kind            aggregation.TagKind `gorm:"column:kind" json:"kind"`
	NameKey         string              `gorm:"column:name_key" json:"-"`
}

func (Tag) TableName() string {
	return "tags"
}

// MoodLog is a quick check-in of one or more moods.
type MoodLog struct {
	ID              string   `gorm:"column:id;primaryKey" json:"id"`
	CreatedAtMillis int64    `gorm:"column:created_at_ms" json:"createdAt"`
	UpdatedAtMillis int64    `gorm:"column:updated_at_ms" json:"updatedAt"`
	EmotionIDs      []string `gorm:"column:emotion_ids;serializer:json" json:"emotionIds"`
	Note            string   `gorm:"column:note" json:"note,omitempty"`
	PeopleTagIDs    []string `gorm:"column:people_tag_ids;serializer:json" json:"peopleTagIds"`
	ContextTagIDs   []string `gorm:"column:context_tag_ids;serializer:json" json:"contextTagIds"`
}

func (MoodLog) TableName() string {
	return "mood_logs"
}

// BeforeSave stores absent lists as empty arrays.
func (m *MoodLog) BeforeSave(_ *gorm.DB) error {
	m.EmotionIDs = nonNil(m.EmotionIDs)
	m.PeopleTagIDs = nonNil(m.PeopleTagIDs)
	m.ContextTagIDs = nonNil(m.ContextTagIDs)
	return nil
}

// Record projects the mood log for the aggregation engine.
func (m MoodLog) Record() aggregation.Record {
	return aggregation.Record{
		ID:            m.ID,
		CreatedAt:     time.UnixMilli(m.CreatedAtMillis).UTC(),
		EmotionIDs:    m.EmotionIDs,
		PeopleTagIDs:  m.PeopleTagIDs,
		ContextTagIDs: m.ContextTagIDs,
	}
}

// ReviewType is the granularity of a periodic review.
type ReviewType string

const (
	ReviewWeekly    ReviewType = "weekly"
	ReviewMonthly   ReviewType = "monthly"
	ReviewQuarterly ReviewType = "quarterly"
	ReviewYearly    ReviewType = "yearly"
)

// ParseReviewType validates a review type.
func ParseReviewType(value string) (ReviewType, bool) {
	switch ReviewType(value) {
	case ReviewWeekly, ReviewMonthly, ReviewQuarterly, ReviewYearly:
		return ReviewType(value), true
	default:
		return "", false
	}
}

// ReviewSection is one reflection prompt and its answer.
type ReviewSection struct {
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// PeriodicReview is a reflection over a period with a frozen aggregation snapshot.
type PeriodicReview struct {
	ID              string                                        `gorm:"column:id;primaryKey" json:"id"`
	CreatedAtMillis int64                                         `gorm:"column:created_at_ms" json:"createdAt"`
	UpdatedAtMillis int64                                         `gorm:"column:updated_at_ms" json:"updatedAt"`
	Type            ReviewType                                    `gorm:"column:type" json:"type"`
	PeriodStart     string                                        `gorm:"column:period_start" json:"periodStart"`
	PeriodEnd       string                                        `gorm:"column:period_end" json:"periodEnd"`
	Sections        datatypes.JSONSlice[ReviewSection]            `gorm:"column:sections" json:"sections"`
	AggregatedData  datatypes.JSONType[aggregation.AggregatedData] `gorm:"column:aggregated_data" json:"aggregatedData"`
}

func (PeriodicReview) TableName() string {
	return "periodic_reviews"
}

// BeforeSave stores absent sections as an empty array.
func (r *PeriodicReview) BeforeSave(_ *gorm.DB) error {
	if r.Sections == nil {
		r.Sections = datatypes.JSONSlice[ReviewSection]{}
	}
	return nil
}

// TemplateKind says what a template pre-fills.
type TemplateKind string

const (
	TemplateEntry  TemplateKind = "entry"
	TemplateReview TemplateKind = "review"
)

// Template is a reusable list of prompts.
type Template struct {
	ID              string                             `gorm:"column:id;primaryKey" json:"id"`
	CreatedAtMillis int64                              `gorm:"column:created_at_ms" json:"createdAt"`
	UpdatedAtMillis int64                              `gorm:"column:updated_at_ms" json:"updatedAt"`
	Name            string                             `gorm:"column:name" json:"name"`
	Kind            TemplateKind                       `gorm:"column:kind" json:"kind"`
	Sections        datatypes.JSONSlice[ReviewSection] `gorm:"column:sections" json:"sections"`
}

func (Template) TableName() string {
	return "templates"
}

// BeforeSave stores absent sections as an empty array.
func (t *Template) BeforeSave(_ *gorm.DB) error {
	if t.Sections == nil {
		t.Sections = datatypes.JSONSlice[ReviewSection]{}
	}
	return nil
}

// Setting is one user preference.
type Setting struct {
	Key             string `gorm:"column:key;primaryKey" json:"key"`
	Value           string `gorm:"column:value" json:"value"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms" json:"updatedAt"`
}

func (Setting) TableName() string {
	return "settings"
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
