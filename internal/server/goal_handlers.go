package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/inkwell/internal/goals"
	"github.com/MarcoPoloResearchLab/inkwell/internal/storage"
	"github.com/gin-gonic/gin"
)

const trackerEntryEntity = "tracker_entry"

type reparentRequestPayload struct {
	ParentGoalID *string `json:"parentGoalId"`
}

type trackerEntryRequestPayload struct {
	Value *float64 `json:"value"`
	Note  string   `json:"note"`
}

func (h *httpHandler) listGoals(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		found []goals.Goal
		err   error
	)
	switch {
	case c.Query("status") != "":
		status, parseErr := goals.ParseStatus(c.Query("status"))
		if parseErr != nil {
			h.respondError(c, storage.ValidationError("goal", storage.OperationQuery, "", parseErr.Error()))
			return
		}
		found, err = h.goals.ListByStatus(ctx, status)
	case c.Query("source_entry") != "":
		found, err = h.goals.ListBySourceEntry(ctx, c.Query("source_entry"))
	default:
		found, err = h.goals.GetAll(ctx)
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, found)
}

func (h *httpHandler) createGoal(c *gin.Context) {
	var payload goals.Goal
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	created, err := h.goals.Create(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) getGoal(c *gin.Context) {
	goal, err := h.goals.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, goal)
}

func (h *httpHandler) updateGoal(c *gin.Context) {
	var payload goals.Goal
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	payload.ID = c.Param("id")
	updated, err := h.goals.Update(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) deleteGoal(c *gin.Context) {
	if err := h.goals.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) reparentGoal(c *gin.Context) {
	var request reparentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	moved, err := h.goals.Reparent(c.Request.Context(), c.Param("id"), request.ParentGoalID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, moved)
}

func (h *httpHandler) goalHierarchy(c *gin.Context) {
	chain, err := h.goals.Hierarchy(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, chain)
}

func (h *httpHandler) goalChildren(c *gin.Context) {
	children, err := h.goals.Children(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, children)
}

func (h *httpHandler) goalTrackers(c *gin.Context) {
	trackers, err := h.trackers.ListByGoal(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, trackers)
}

func (h *httpHandler) createTracker(c *gin.Context) {
	var payload goals.Tracker
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	created, err := h.trackers.Create(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) getTracker(c *gin.Context) {
	tracker, err := h.trackers.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tracker)
}

func (h *httpHandler) updateTracker(c *gin.Context) {
	var payload goals.Tracker
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	payload.ID = c.Param("id")
	updated, err := h.trackers.Update(c.Request.Context(), payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) deleteTracker(c *gin.Context) {
	if err := h.trackers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) listTrackerEntries(c *gin.Context) {
	entries, err := h.trackers.ListEntries(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	respondList(c, entries)
}

func (h *httpHandler) recordTrackerEntry(c *gin.Context) {
	var request trackerEntryRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondInvalidRequest(c, err)
		return
	}
	if request.Value == nil {
		h.respondError(c, storage.ValidationError(trackerEntryEntity, storage.OperationCreate, "", "value is required"))
		return
	}
	entry, err := h.trackers.RecordEntry(c.Request.Context(), c.Param("id"), c.Param("date"), *request.Value, request.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *httpHandler) deleteTrackerEntry(c *gin.Context) {
	if err := h.trackers.DeleteEntry(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
