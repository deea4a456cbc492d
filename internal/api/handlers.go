package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/slotline/bookingd/internal/api/middleware"
	"github.com/slotline/bookingd/internal/engine"
	"github.com/slotline/bookingd/internal/model"
	"github.com/slotline/bookingd/internal/storage"
)

type markAvailableRequest struct {
	Date         string `json:"date" binding:"required"`
	StartTime    string `json:"start_time" binding:"required"`
	EndTime      string `json:"end_time" binding:"required"`
	ProviderID   int64  `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	Notes        string `json:"notes"`
}

func (h *handlers) markAvailable(c *gin.Context) {
	var body markAvailableRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.MarkAvailable(c.Request.Context(), middleware.ActorFrom(c), engine.MarkAvailableInput{
		Date:         body.Date,
		StartTime:    body.StartTime,
		EndTime:      body.EndTime,
		ProviderID:   body.ProviderID,
		ProviderName: body.ProviderName,
		Notes:        body.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"slot":               res.Slot,
		"assigned_requester": res.AssignedRequest,
	})
}

type requestSlotRequest struct {
	PreferredDays       []string `json:"preferred_days"`
	PreferredTimes      []string `json:"preferred_times"`
	PreferredProviderID *int64   `json:"preferred_provider_id"`
	Date                *string  `json:"date"`
	Time                *string  `json:"time"`
}

func (h *handlers) requestSlot(c *gin.Context) {
	var body requestSlotRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.RequestSlot(c.Request.Context(), middleware.ActorFrom(c), engine.RequestSlotInput{
		PreferredDays:       body.PreferredDays,
		PreferredTimes:      body.PreferredTimes,
		PreferredProviderID: body.PreferredProviderID,
		Date:                body.Date,
		Time:                body.Time,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"request":      res.Request,
		"match_status": res.MatchStatus,
		"slot":         res.Slot,
	})
}

type cancelSlotRequest struct {
	Reason   string `json:"reason"`
	Reassign *bool  `json:"reassign"`
}

func (h *handlers) cancelSlot(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot id"})
		return
	}

	var body cancelSlotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, err := h.engine.CancelSlot(c.Request.Context(), middleware.ActorFrom(c), engine.CancelSlotInput{
		SlotID:   id,
		Reason:   body.Reason,
		Reassign: body.Reassign,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"slot":          res.Slot,
		"removed":       res.Removed,
		"reassigned_to": res.ReassignedTo,
	})
}

func (h *handlers) completeSlot(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot id"})
		return
	}

	slot, err := h.engine.Complete(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slot": slot})
}

// listSlots returns the actor-scoped slot list. Requesters get the
// calendar projection with virtual waitlist entries merged in.
func (h *handlers) listSlots(c *gin.Context) {
	actor := middleware.ActorFrom(c)

	filter := storage.SlotFilter{
		FromDate: c.Query("from"),
		ToDate:   c.Query("to"),
		Status:   model.SlotStatus(c.Query("status")),
	}
	if v := c.Query("provider_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid provider_id"})
			return
		}
		filter.ProviderID = id
	}

	slots, err := h.engine.ListSlots(c.Request.Context(), actor, filter)
	if err != nil {
		h.fail(c, err)
		return
	}

	if !actor.IsRequester() {
		c.JSON(http.StatusOK, gin.H{"slots": slots})
		return
	}

	waiting, err := h.engine.ListRequests(c.Request.Context(), actor, storage.RequestFilter{
		Status: model.RequestStatusWaiting,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": BuildCalendar(slots, waiting, filter.FromDate, filter.ToDate)})
}

func (h *handlers) listRequests(c *gin.Context) {
	filter := storage.RequestFilter{Status: model.RequestStatus(c.Query("status"))}
	reqs, err := h.engine.ListRequests(c.Request.Context(), middleware.ActorFrom(c), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

func (h *handlers) getRequest(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	req, err := h.engine.GetRequest(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

func pathID(c *gin.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// fail maps engine and storage sentinels onto HTTP statuses.
func (h *handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
