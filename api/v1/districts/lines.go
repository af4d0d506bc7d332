package districts

import (
	"rostersync/internal/httpx"
	"rostersync/internal/model"

	"github.com/gin-gonic/gin"
)

// ListLines returns a district's sync lines, filterable by table and status.
func (h *Handler) ListLines(c *gin.Context) {
	var req ListLinesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("parameter 'id' is required"))
		return
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)

	if _, appErr := h.findDistrict(req.ID); appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	query := h.db.Model(&model.DataSyncLine{}).Where("district_id = ?", req.ID)
	if req.Table != "" {
		query = query.Where("csv_table = ?", req.Table)
	}
	if req.LoadStatus != "" {
		query = query.Where("load_status = ?", req.LoadStatus)
	}
	if req.SyncStatus != "" {
		query = query.Where("sync_status = ?", req.SyncStatus)
	}
	if req.SourcedID != "" {
		query = query.Where("sourced_id LIKE ?", "%"+req.SourcedID+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count lines", err))
		return
	}

	var lines []model.DataSyncLine
	if err := query.Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&lines).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query lines", err))
		return
	}
	httpx.OKItems(c, lines, total, page, pageSize)
}

// SetCourseInclude flips a course's operator inclusion flag. Courses are the
// one entity whose inclusion is a manual decision rather than a cascade; the
// next analyze pass picks the change up.
func (h *Handler) SetCourseInclude(c *gin.Context) {
	var req SetCourseIncludeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	if _, appErr := h.findDistrict(req.ID); appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	var line model.DataSyncLine
	err := h.db.Where("district_id = ? AND csv_table = ? AND sourced_id = ?",
		req.ID, model.TableCourses, req.SourcedID).First(&line).Error
	if err != nil {
		httpx.FailErr(c, httpx.ErrNotFound("course not found"))
		return
	}

	if line.IncludeInSync != req.IncludeInSync {
		line.IncludeInSync = req.IncludeInSync
		line.Touch()
		if err := h.db.Save(&line).Error; err != nil {
			httpx.FailErr(c, httpx.ErrDatabaseError("failed to update course", err))
			return
		}
	}
	httpx.OK(c, line)
}
