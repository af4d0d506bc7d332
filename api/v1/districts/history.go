package districts

import (
	"rostersync/internal/httpx"
	"rostersync/internal/model"

	"github.com/gin-gonic/gin"
)

// ListHistories returns a district's processing runs, newest first.
func (h *Handler) ListHistories(c *gin.Context) {
	var req ListHistoriesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("parameter 'id' is required"))
		return
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)

	if _, appErr := h.findDistrict(req.ID); appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	query := h.db.Model(&model.DataSyncHistory{}).Where("district_id = ?", req.ID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count histories", err))
		return
	}

	var histories []model.DataSyncHistory
	if err := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&histories).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query histories", err))
		return
	}
	httpx.OKItems(c, histories, total, page, pageSize)
}

// ListHistoryDetails returns the per-line audit snapshots of one run.
func (h *Handler) ListHistoryDetails(c *gin.Context) {
	var req ListHistoryDetailsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("parameter 'historyId' is required"))
		return
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)

	query := h.db.Model(&model.DataSyncHistoryDetail{}).Where("history_id = ?", req.HistoryID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count history details", err))
		return
	}

	var details []model.DataSyncHistoryDetail
	if err := query.Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&details).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query history details", err))
		return
	}
	httpx.OKItems(c, details, total, page, pageSize)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}
	return page, pageSize
}
