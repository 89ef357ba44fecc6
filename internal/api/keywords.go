package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/rossigee/slot-rank-tracker/internal/rank"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// ListKeywords returns pending rank-check jobs in id order
func (h *Handler) ListKeywords(c *gin.Context) {
	jobs, err := h.registry.ListKeywords(c.Request.Context(), c.Query("slot_type"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list keywords", err)
		return
	}

	c.JSON(http.StatusOK, types.KeywordsResponse{
		Success: true,
		Data:    jobs,
	})
}

// EnqueueKeyword registers a keyword job unless one is already pending
func (h *Handler) EnqueueKeyword(c *gin.Context) {
	var req types.EnqueueKeywordRequest
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

	job, created, err := h.registry.EnqueueKeyword(c.Request.Context(), req.SlotType, req.Keyword, req.LinkURL)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to enqueue keyword", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logrus.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"keyword": job.Keyword,
		}).Info("Queued rank check")
		h.notify(c.Request.Context())
	}

	c.JSON(status, types.KeywordResponse{
		Success: true,
		Data:    *job,
		Created: created,
	})
}

// UpdateResults applies a batch of check results posted by a resolver
func (h *Handler) UpdateResults(c *gin.Context) {
	var req types.UpdateResultsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	ctx := c.Request.Context()
	checkedAt := h.now()
	stats := types.UpdateStats{}

	for _, result := range req.Results {
		log := logrus.WithFields(logrus.Fields{
			"job_id":  result.ID,
			"keyword": result.Keyword,
			"status":  result.Status,
		})
		if result.ID <= 0 || result.Keyword == "" {
			log.Warn("Rejecting result without job id or keyword")
			stats.Failed++
			continue
		}

		job := types.Keyword{
			ID:      result.ID,
			Keyword: result.Keyword,
			LinkURL: result.URL,
		}
		if err := h.recorder.Record(ctx, job, result, checkedAt); err != nil {
			log.WithError(err).Warn("Failed to record result")
			stats.Failed++
			continue
		}
		stats.Success++
	}

	logrus.WithFields(logrus.Fields{
		"success": stats.Success,
		"failed":  stats.Failed,
	}).Info("Applied rank results")

	c.JSON(http.StatusOK, types.UpdateResultsResponse{
		Success: true,
		Stats:   stats,
	})
}

// ListRankHistory returns history rows for one slot-status row, newest first
func (h *Handler) ListRankHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("slot_status_id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid request", errors.New("slot_status_id must be a positive integer"))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid request", errors.New("limit must be an integer"))
			return
		}
	}

	history, err := h.registry.ListRankHistory(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to list rank history", err)
		return
	}

	c.JSON(http.StatusOK, types.RankHistoryResponse{
		Success: true,
		Data:    history,
	})
}
