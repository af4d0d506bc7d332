package model

import "time"

// ProcessingStage names one of the three pipeline stages.
type ProcessingStage string

const (
	StageLoad    ProcessingStage = "load"
	StageAnalyze ProcessingStage = "analyze"
	StageApply   ProcessingStage = "apply"
)

// DataSyncHistory records one processing run per district. A stage that is
// re-entered while its timestamps are already set gets a fresh history row,
// so a completed stage's timing is never overwritten.
type DataSyncHistory struct {
	BaseModel
	DistrictID int `gorm:"column:district_id;not null;index" json:"districtId"`

	LoadStarted      *time.Time `gorm:"column:load_started" json:"loadStarted"`
	LoadCompleted    *time.Time `gorm:"column:load_completed" json:"loadCompleted"`
	LoadError        string     `gorm:"column:load_error;type:varchar(2048)" json:"loadError"`
	AnalyzeStarted   *time.Time `gorm:"column:analyze_started" json:"analyzeStarted"`
	AnalyzeCompleted *time.Time `gorm:"column:analyze_completed" json:"analyzeCompleted"`
	AnalyzeError     string     `gorm:"column:analyze_error;type:varchar(2048)" json:"analyzeError"`
	ApplyStarted     *time.Time `gorm:"column:apply_started" json:"applyStarted"`
	ApplyCompleted   *time.Time `gorm:"column:apply_completed" json:"applyCompleted"`
	ApplyError       string     `gorm:"column:apply_error;type:varchar(2048)" json:"applyError"`

	NumRows     int `gorm:"column:num_rows;default:0" json:"numRows"`
	NumAdded    int `gorm:"column:num_added;default:0" json:"numAdded"`
	NumModified int `gorm:"column:num_modified;default:0" json:"numModified"`
	NumDeleted  int `gorm:"column:num_deleted;default:0" json:"numDeleted"`
}

// TableName specifies the table name for DataSyncHistory
func (DataSyncHistory) TableName() string {
	return "data_sync_histories"
}

// StageStarted reports whether the given stage already has a start timestamp
// on this history row.
func (h *DataSyncHistory) StageStarted(stage ProcessingStage) bool {
	switch stage {
	case StageLoad:
		return h.LoadStarted != nil
	case StageAnalyze:
		return h.AnalyzeStarted != nil
	case StageApply:
		return h.ApplyStarted != nil
	}
	return false
}

// StageError returns the recorded error text for the given stage.
func (h *DataSyncHistory) StageError(stage ProcessingStage) string {
	switch stage {
	case StageLoad:
		return h.LoadError
	case StageAnalyze:
		return h.AnalyzeError
	case StageApply:
		return h.ApplyError
	}
	return ""
}
