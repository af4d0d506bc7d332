package districts

import (
	"rostersync/internal/model"
)

// ListRequest represents list districts request
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Name     string `form:"name"`
	Status   string `form:"status"`
}

// GetRequest represents get district request
type GetRequest struct {
	ID int `form:"id" binding:"required"`
}

// DetailResponse represents district detail with its latest run
type DetailResponse struct {
	District      model.District         `json:"district"`
	LatestHistory *model.DataSyncHistory `json:"latestHistory"`
}

// CreateRequest represents create district request
type CreateRequest struct {
	Name                string  `json:"name" binding:"required"`
	NCESDistrictID      string  `json:"ncesDistrictId"`
	CSVFolder           string  `json:"csvFolder" binding:"required"`
	TargetBaseURL       string  `json:"targetBaseUrl" binding:"required"`
	AuthMode            string  `json:"authMode"`
	APIKey              string  `json:"apiKey"`
	FilterOrgs          bool    `json:"filterOrgs"`
	FilterGrades        bool    `json:"filterGrades"`
	UsernameSource      string  `json:"usernameSource"`
	EmailDomain         string  `json:"emailDomain"`
	InitialPassword     string  `json:"initialPassword"`
	DailyProcessingTime *string `json:"dailyProcessingTime"`
}

// UpdateRequest represents update district request
type UpdateRequest struct {
	ID                  int     `json:"id" binding:"required"`
	Name                *string `json:"name"`
	NCESDistrictID      *string `json:"ncesDistrictId"`
	CSVFolder           *string `json:"csvFolder"`
	TargetBaseURL       *string `json:"targetBaseUrl"`
	AuthMode            *string `json:"authMode"`
	APIKey              *string `json:"apiKey"`
	FilterOrgs          *bool   `json:"filterOrgs"`
	FilterGrades        *bool   `json:"filterGrades"`
	UsernameSource      *string `json:"usernameSource"`
	EmailDomain         *string `json:"emailDomain"`
	InitialPassword     *string `json:"initialPassword"`
	DailyProcessingTime *string `json:"dailyProcessingTime"`
}

// ActionRequest represents request processing action request
type ActionRequest struct {
	ID     int    `json:"id" binding:"required"`
	Action string `json:"action" binding:"required"`
}

// StopRequest represents stop processing request
type StopRequest struct {
	ID int `json:"id" binding:"required"`
}

// SetFiltersRequest replaces a district's filters of one type
type SetFiltersRequest struct {
	ID         int          `json:"id" binding:"required"`
	FilterType string       `json:"filterType" binding:"required"`
	Filters    []FilterItem `json:"filters"`
}

// FilterItem is one filter entry in a set request
type FilterItem struct {
	Key         string `json:"key"`
	Value       string `json:"value" binding:"required"`
	ShouldApply *bool  `json:"shouldApply"`
}

// ListFiltersRequest represents list filters request
type ListFiltersRequest struct {
	ID         int    `form:"id" binding:"required"`
	FilterType string `form:"filterType"`
}

// ListHistoriesRequest represents list histories request
type ListHistoriesRequest struct {
	ID       int `form:"id" binding:"required"`
	Page     int `form:"page"`
	PageSize int `form:"pageSize"`
}

// ListHistoryDetailsRequest represents list history details request
type ListHistoryDetailsRequest struct {
	HistoryID int `form:"historyId" binding:"required"`
	Page      int `form:"page"`
	PageSize  int `form:"pageSize"`
}

// ListLinesRequest represents list sync lines request
type ListLinesRequest struct {
	ID         int    `form:"id" binding:"required"`
	Table      string `form:"table"`
	LoadStatus string `form:"loadStatus"`
	SyncStatus string `form:"syncStatus"`
	SourcedID  string `form:"sourcedId"`
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
}

// SetCourseIncludeRequest toggles a course's operator inclusion flag
type SetCourseIncludeRequest struct {
	ID            int    `json:"id" binding:"required"`
	SourcedID     string `json:"sourcedId" binding:"required"`
	IncludeInSync bool   `json:"includeInSync"`
}
