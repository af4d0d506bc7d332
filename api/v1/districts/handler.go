package districts

import (
	"errors"
	"fmt"
	"time"

	"rostersync/internal/httpx"
	"rostersync/internal/model"
	"rostersync/internal/scheduler"
	"rostersync/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles districts API
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new districts handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// List returns all districts with their live processing state.
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid query parameters"))
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 200 {
		req.PageSize = 50
	}

	query := h.db.Model(&model.District{})
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.Status != "" {
		query = query.Where("processing_status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to count districts", err))
		return
	}

	var districts []model.District
	if err := query.Order("id ASC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&districts).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query districts", err))
		return
	}

	httpx.OKItems(c, districts, total, req.Page, req.PageSize)
}

// Get returns one district plus its most recent history.
func (h *Handler) Get(c *gin.Context) {
	var req GetRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("parameter 'id' is required"))
		return
	}

	district, appErr := h.findDistrict(req.ID)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	var history model.DataSyncHistory
	var latest *model.DataSyncHistory
	err := h.db.Where("district_id = ?", district.ID).Order("id DESC").First(&history).Error
	if err == nil {
		latest = &history
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to query history", err))
		return
	}

	httpx.OK(c, DetailResponse{
		District:      *district,
		LatestHistory: latest,
	})
}

// Create registers a new district.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	if req.UsernameSource != "" && !validUsernameSource(req.UsernameSource) {
		httpx.FailErr(c, httpx.ErrParamIllegal("invalid usernameSource"))
		return
	}
	if req.DailyProcessingTime != nil {
		if _, err := scheduler.NextDailyRun(time.Now().UTC(), *req.DailyProcessingTime); err != nil {
			httpx.FailErr(c, httpx.ErrParamIllegal("dailyProcessingTime must be HH:MM"))
			return
		}
	}

	district := model.District{
		Name:                req.Name,
		NCESDistrictID:      req.NCESDistrictID,
		CSVFolder:           req.CSVFolder,
		TargetBaseURL:       req.TargetBaseURL,
		AuthMode:            defaultString(req.AuthMode, "api_key"),
		APIKey:              req.APIKey,
		FilterOrgs:          req.FilterOrgs,
		FilterGrades:        req.FilterGrades,
		UsernameSource:      defaultString(req.UsernameSource, model.UsernameSourceUsername),
		EmailDomain:         req.EmailDomain,
		InitialPassword:     req.InitialPassword,
		DailyProcessingTime: req.DailyProcessingTime,
		ProcessingAction:    model.ProcessingActionNone,
		ProcessingStatus:    model.ProcessingStatusIdle,
	}
	if district.DailyProcessingTime != nil {
		if next, err := scheduler.NextDailyRun(time.Now().UTC(), *district.DailyProcessingTime); err == nil {
			district.NextProcessingTime = &next
		}
	}

	if err := h.db.Create(&district).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to create district", err))
		return
	}
	ws.DistrictPublisher{}.PublishDistrict(&district)
	httpx.OK(c, district)
}

// Update modifies district settings. Processing state fields are managed by
// the engine and cannot be set here.
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	district, appErr := h.findDistrict(req.ID)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	if req.Name != nil {
		district.Name = *req.Name
	}
	if req.NCESDistrictID != nil {
		district.NCESDistrictID = *req.NCESDistrictID
	}
	if req.CSVFolder != nil {
		district.CSVFolder = *req.CSVFolder
	}
	if req.TargetBaseURL != nil {
		district.TargetBaseURL = *req.TargetBaseURL
	}
	if req.AuthMode != nil {
		district.AuthMode = *req.AuthMode
	}
	if req.APIKey != nil {
		district.APIKey = *req.APIKey
	}
	if req.FilterOrgs != nil {
		district.FilterOrgs = *req.FilterOrgs
	}
	if req.FilterGrades != nil {
		district.FilterGrades = *req.FilterGrades
	}
	if req.UsernameSource != nil {
		if !validUsernameSource(*req.UsernameSource) {
			httpx.FailErr(c, httpx.ErrParamIllegal("invalid usernameSource"))
			return
		}
		district.UsernameSource = *req.UsernameSource
	}
	if req.EmailDomain != nil {
		district.EmailDomain = *req.EmailDomain
	}
	if req.InitialPassword != nil {
		district.InitialPassword = *req.InitialPassword
	}
	if req.DailyProcessingTime != nil {
		if *req.DailyProcessingTime == "" {
			district.DailyProcessingTime = nil
			district.NextProcessingTime = nil
		} else {
			next, err := scheduler.NextDailyRun(time.Now().UTC(), *req.DailyProcessingTime)
			if err != nil {
				httpx.FailErr(c, httpx.ErrParamIllegal("dailyProcessingTime must be HH:MM"))
				return
			}
			district.DailyProcessingTime = req.DailyProcessingTime
			district.NextProcessingTime = &next
		}
	}

	district.Touch()
	if err := h.db.Save(district).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to update district", err))
		return
	}
	ws.DistrictPublisher{}.PublishDistrict(district)
	httpx.OK(c, district)
}

// RequestAction queues a processing action. The scheduler picks it up on its
// next tick; a district already running or with a pending action refuses.
func (h *Handler) RequestAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}
	action := model.ProcessingAction(req.Action)
	if !validAction(action) {
		httpx.FailErr(c, httpx.ErrParamIllegal(fmt.Sprintf("unknown action %q", req.Action)))
		return
	}

	district, appErr := h.findDistrict(req.ID)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}
	if district.ProcessingAction != model.ProcessingActionNone {
		httpx.FailErr(c, httpx.ErrStateConflict("district already has a pending action"))
		return
	}
	if isRunning(district.ProcessingStatus) {
		httpx.FailErr(c, httpx.ErrStateConflict("district is currently processing"))
		return
	}

	district.ProcessingAction = action
	district.StopCurrentAction = false
	district.Touch()
	if err := h.db.Save(district).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to request action", err))
		return
	}
	ws.DistrictPublisher{}.PublishDistrict(district)
	httpx.OK(c, district)
}

// Stop raises the cooperative stop flag. The running stage notices at its
// next poll point and winds down cleanly.
func (h *Handler) Stop(c *gin.Context) {
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	district, appErr := h.findDistrict(req.ID)
	if appErr != nil {
		httpx.FailErr(c, appErr)
		return
	}

	district.StopCurrentAction = true
	// A pending action that has not started yet is simply withdrawn.
	district.ProcessingAction = model.ProcessingActionNone
	district.Touch()
	if err := h.db.Save(district).Error; err != nil {
		httpx.FailErr(c, httpx.ErrDatabaseError("failed to request stop", err))
		return
	}
	ws.DistrictPublisher{}.PublishDistrict(district)
	httpx.OK(c, district)
}

func (h *Handler) findDistrict(id int) (*model.District, *httpx.AppError) {
	var district model.District
	if err := h.db.First(&district, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, httpx.ErrNotFound("district not found")
		}
		return nil, httpx.ErrDatabaseError("failed to query district", err)
	}
	return &district, nil
}

func validAction(action model.ProcessingAction) bool {
	switch action {
	case model.ProcessingActionLoad, model.ProcessingActionLoadSample,
		model.ProcessingActionAnalyze, model.ProcessingActionApply,
		model.ProcessingActionFullProcess:
		return true
	}
	return false
}

func validUsernameSource(source string) bool {
	switch source {
	case model.UsernameSourceUsername, model.UsernameSourceEmail, model.UsernameSourceSourcedID:
		return true
	}
	return false
}

func isRunning(status model.ProcessingStatus) bool {
	switch status {
	case model.ProcessingStatusLoading, model.ProcessingStatusAnalyzing, model.ProcessingStatusApplying:
		return true
	}
	return false
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
