package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rossigee/slot-rank-tracker/internal/rank"
	"github.com/rossigee/slot-rank-tracker/internal/slots"
	"github.com/rossigee/slot-rank-tracker/internal/storage"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// GetSlotStatus lists grants or allocated units.
//
// type=slot_status lists units, restricted to one customer when both customerId and
// username are given. Otherwise grants are listed, or a single customer summary is
// returned when both are given.
func (h *Handler) GetSlotStatus(c *gin.Context) {
	ctx := c.Request.Context()
	customerID := c.Query("customerId")
	username := c.Query("username")
	scoped := customerID != "" && username != ""

	if c.Query("type") == "slot_status" {
		filter := ""
		if scoped {
			filter = username
		}
		units, err := h.slots.Units(ctx, filter)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to list slot status", err)
			return
		}
		c.JSON(http.StatusOK, types.SlotStatusListResponse{
			Success: true,
			Data:    units,
		})
		return
	}

	if scoped {
		summary, stats, err := h.slots.Summary(ctx, username)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "failed to load customer slots", err)
			return
		}
		c.JSON(http.StatusOK, types.CustomerSummaryResponse{
			Success: true,
			Data:    []types.CustomerSummary{*summary},
			Stats:   stats,
		})
		return
	}

	grants, stats, err := h.slots.Grants(ctx, "", c.Query("search"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list slots", err)
		return
	}
	c.JSON(http.StatusOK, types.SlotListResponse{
		Success: true,
		Data:    grants,
		Stats:   stats,
	})
}

// AllocateSlots draws units from a customer's grants for a keyword
func (h *Handler) AllocateSlots(c *gin.Context) {
	var req types.AllocateSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		respondError(c, http.StatusBadRequest, "invalid request", errors.New("keyword is required"))
		return
	}
	if _, ok := rank.ExtractProductID(req.LinkURL); !ok {
		respondError(c, http.StatusBadRequest, "invalid request", errors.New("link_url has no product id"))
		return
	}

	resp, err := h.slots.Allocate(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, slots.ErrInsufficientSlots) {
			respondError(c, http.StatusBadRequest, "insufficient slots", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to allocate slots", err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReleaseSlot removes one allocated unit by database id
func (h *Handler) ReleaseSlot(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid request", errors.New("id must be a positive integer"))
		return
	}

	if err := h.slots.Release(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(c, http.StatusNotFound, "slot status not found", err)
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to release slot", err)
		return
	}

	c.JSON(http.StatusOK, types.MessageResponse{
		Success: true,
		Message: "slot released",
	})
}

// CreateSlot records a capacity grant
func (h *Handler) CreateSlot(c *gin.Context) {
	var req types.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	slot, err := h.slots.CreateGrant(c.Request.Context(), req)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to create slot", err)
		return
	}

	c.JSON(http.StatusCreated, types.SlotResponse{
		Success: true,
		Data:    *slot,
	})
}
