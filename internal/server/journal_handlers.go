package server

import (
	"fmt"
	"net/http"

	"github.com/MarcoPoloResearchLab/inkwell/internal/aggregation"
	"github.com/MarcoPoloResearchLab/inkwell/internal/journal"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"github.com/gin-gonic/gin"
)

const (
	entryEntity   = "journal_entry"
	moodLogEntity = "mood_log"
	reviewEntity  = "periodic_review"
)

func periodQuery(c *gin.Context, entity string) (aggregation.Range, bool, error) {
	from, to := c.Query("from"), c.Query("to")
	if from == "" && to == "" {
		return aggregation.Range{}, false, nil
	}
	period, err := journal.ParsePeriod(from, to)
	if err != nil {
		return aggregation.Range{}, false, storage.ValidationError(entity, storage.OperationQuery, "", err.Error())
	}
	return period, true, nil
}

func tagQuery(c *gin.Context) (aggregation.TagKind, string, bool) {
	if tagID := c.Query("people_tag"); tagID != "" {
		return aggregation.TagKindPeople, tagID, true
	}
	if tagID := c.Query("context_tag"); tagID != "" {
		return aggregation.TagKindContext, tagID, true
	}
	return "", "", false
}

func (h *httpHandler) listEntries(c *gin.Context) {
	ctx := c.Request.Context()
	period, ranged, err := periodQuery(c, entryEntity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var entries []journal.Entry
	if kind, tagID, tagged := tagQuery(c); tagged {
		entries, err = h.entries.ListByTag(ctx, kind, tagID)
	} else if emotionID := c.Query("emotion"); emotionID != "" {
		entries, err = h.entries.ListByEmotion(ctx, emotionID)
	} else if ranged {
		entries, err = h.entries.ListBetween(ctx, period.Start, period.End)
	} else {
		entries, err = h.entries.GetAll(ctx)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, entries)
}

func (h *httpHandler) createEntry(c *gin.Context) {
	var payload journal.Entry
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	created, err := h.entries.Create(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) getEntry(c *gin.Context) {
	entry, err := h.entries.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) updateEntry(c *gin.Context) {
	var payload journal.Entry
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	payload.ID = c.Param("id")
	updated, err := h.entries.Update(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) deleteEntry(c *gin.Context) {
	if err := h.entries.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) listMoodLogs(c *gin.Context) {
	ctx := c.Request.Context()
	period, ranged, err := periodQuery(c, moodLogEntity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var moodLogs []journal.MoodLog
	if kind, tagID, tagged := tagQuery(c); tagged {
		moodLogs, err = h.moodLogs.ListByTag(ctx, kind, tagID)
	} else if ranged {
		moodLogs, err = h.moodLogs.ListBetween(ctx, period.Start, period.End)
	} else {
		moodLogs, err = h.moodLogs.GetAll(ctx)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, moodLogs)
}

// requireMood enforces that a check-in names at least one mood. The store itself accepts empty lists.
func requireMood(moodLog journal.MoodLog, operation storage.Operation) error {
	if len(moodLog.EmotionIDs) == 0 {
		return storage.ValidationError(moodLogEntity, operation, moodLog.ID, "at least one mood is required")
	}
	return nil
}

func (h *httpHandler) createMoodLog(c *gin.Context) {
	var payload journal.MoodLog
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	if err := requireMood(payload, storage.OperationCreate); err != nil {
		h.respondError(c, err)
		return
	}
	created, err := h.moodLogs.Create(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) getMoodLog(c *gin.Context) {
	moodLog, err := h.moodLogs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, moodLog)
}

func (h *httpHandler) updateMoodLog(c *gin.Context) {
	var payload journal.MoodLog
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	payload.ID = c.Param("id")
	if err := requireMood(payload, storage.OperationUpdate); err != nil {
		h.respondError(c, err)
		return
	}
	updated, err := h.moodLogs.Update(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) deleteMoodLog(c *gin.Context) {
	if err := h.moodLogs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) listTags(c *gin.Context) {
	ctx := c.Request.Context()
	kind := aggregation.TagKind(c.Query("kind"))
	if name := c.Query("name"); name != "" {
		tag, err := h.tags.FindByName(ctx, kind, name)
		if err != nil {
			h.respondError(c, err)
			return
		}
		respondList(c, []journal.Tag{*tag})
		return
	}
	var (
		tags []journal.Tag
		err  error
	)
	if kind != "" {
		tags, err = h.tags.ListByKind(ctx, kind)
	} else {
		tags, err = h.tags.GetAll(ctx)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, tags)
}

func (h *httpHandler) createTag(c *gin.Context) {
	var payload journal.Tag
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	created, err := h.tags.Create(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) getTag(c *gin.Context) {
	tag, err := h.tags.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

func (h *httpHandler) updateTag(c *gin.Context) {
	var payload journal.Tag
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	payload.ID = c.Param("id")
	updated, err := h.tags.Update(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) deleteTag(c *gin.Context) {
	if err := h.tags.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reviewRequestPayload struct {
	Type        journal.ReviewType      `json:"type"`
	PeriodStart string                  `json:"periodStart"`
	PeriodEnd   string                  `json:"periodEnd"`
	Sections    []journal.ReviewSection `json:"sections"`
}

func (h *httpHandler) listReviews(c *gin.Context) {
	ctx := c.Request.Context()
	reviewType := c.Query("type")
	if reviewType == "" {
		reviews, err := h.reviews.GetAll(ctx)
		if err != nil {
			h.respondError(c, err)
			return
		}
		respondList(c, reviews)
		return
	}
	parsed, ok := journal.ParseReviewType(reviewType)
	if !ok {
		h.respondError(c, storage.ValidationError(reviewEntity, storage.OperationQuery, "", fmt.Sprintf("unknown review type %q", reviewType)))
		return
	}
	if periodStart := c.Query("period_start"); periodStart != "" {
		review, err := h.reviews.FindByPeriod(ctx, parsed, periodStart)
		if err != nil {
			h.respondError(c, err)
			return
		}
		respondList(c, []journal.PeriodicReview{*review})
		return
	}
	reviews, err := h.reviews.ListByType(ctx, parsed)
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, reviews)
}

func (h *httpHandler) createReview(c *gin.Context) {
	var request reviewRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	created, err := h.reviews.Create(c.Request.Context(), journal.NewReview{
		Type:        request.Type,
		PeriodStart: request.PeriodStart,
		PeriodEnd:   request.PeriodEnd,
		Sections:    request.Sections,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) getReview(c *gin.Context) {
	review, err := h.reviews.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *httpHandler) updateReview(c *gin.Context) {
	var payload journal.PeriodicReview
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	payload.ID = c.Param("id")
	updated, err := h.reviews.Update(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) deleteReview(c *gin.Context) {
	if err := h.reviews.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleAggregate(c *gin.Context) {
	period, err := journal.ParsePeriod(c.Query("start"), c.Query("end"))
	if err != nil {
		h.respondError(c, storage.ValidationError(reviewEntity, storage.OperationQuery, "", err.Error()))
		return
	}
	aggregated, err := h.reviews.Aggregate(c.Request.Context(), period)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, aggregated)
}

func (h *httpHandler) listTemplates(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		templates []journal.Template
		err       error
	)
	if kind := c.Query("kind"); kind != "" {
		templates, err = h.templates.ListByKind(ctx, journal.TemplateKind(kind))
	} else {
		templates, err = h.templates.GetAll(ctx)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, templates)
}

func (h *httpHandler) createTemplate(c *gin.Context) {
	var payload journal.Template
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	created, err := h.templates.Create(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) getTemplate(c *gin.Context) {
	template, err := h.templates.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, template)
}

func (h *httpHandler) updateTemplate(c *gin.Context) {
	var payload journal.Template
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	payload.ID = c.Param("id")
	updated, err := h.templates.Update(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) deleteTemplate(c *gin.Context) {
	if err := h.templates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type weekStartPayload struct {
	Day *int `json:"day"`
}

func (h *httpHandler) listSettings(c *gin.Context) {
	settings, err := h.settings.GetAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, settings)
}

func (h *httpHandler) getWeekStart(c *gin.Context) {
	day, err := h.settings.WeekStartDay(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, weekStartPayload{Day: &day})
}

func (h *httpHandler) putWeekStart(c *gin.Context) {
	var payload weekStartPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	if payload.Day == nil {
		h.respondError(c, storage.ValidationError("setting", storage.OperationUpdate, "week_start_day", "day is required"))
		return
	}
	if err := h.settings.SetWeekStartDay(c.Request.Context(), *payload.Day); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}
