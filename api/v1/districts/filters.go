package districts

import (
	"rostersync/internal/httpx"
	"rostersync/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ListFilters returns a district's filters, optionally restricted to one type.
func (h *Handler) ListFilters(c *gin.Context) {
	var req ListFiltersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("parameter 'id' is required"))
		return
	}
	if _, appErr := h.findDistrict(req.ID); appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	query := h.db.Where("district_id = ?", req.ID)
	if req.FilterType != "" {
		query = query.Where("filter_type = ?", req.FilterType)
	}

	var filters []model.DistrictFilter
	if err := query.Order("id ASC").Find(&filters).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query filters", err))
		return
	}
	httpx.OK(c, filters)
}

// SetFilters replaces all of a district's filters of one type in a single
// transaction, so the analyzer never observes a half-written filter set.
func (h *Handler) SetFilters(c *gin.Context) {
	var req SetFiltersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	if !validFilterType(req.FilterType) {
		httpx.FailErr(c, httpx.ErrParamIllegal("unknown filter type"))
		return
	}
	if _, appErr := h.findDistrict(req.ID); appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	filters := make([]model.DistrictFilter, 0, len(req.Filters))
	for _, item := range req.Filters {
		shouldApply := true
		if item.ShouldApply != nil {
			shouldApply = *item.ShouldApply
		}
		filters = append(filters, model.DistrictFilter{
			DistrictID:  req.ID,
			FilterType:  req.FilterType,
			FilterKey:   item.Key,
			FilterValue: item.Value,
			ShouldApply: shouldApply,
		})
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("district_id = ? AND filter_type = ?", req.ID, req.FilterType).
			Delete(&model.DistrictFilter{}).Error; err != nil {
			return err
		}
		if len(filters) == 0 {
			return nil
		}
		return tx.Create(&filters).Error
	})
	if err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to replace filters", err))
		return
	}
	httpx.OK(c, filters)
}

func validFilterType(filterType string) bool {
	switch filterType {
	case model.FilterTypeGrade, model.FilterTypeOrg, model.FilterTypeNCESSchool:
		return true
	}
	return false
}
