package model

import (
	"time"

	"gorm.io/datatypes"
)

// CSVTable identifies one roster entity table in the feed.
type CSVTable string

const (
	TableOrgs        CSVTable = "orgs"
	TableCourses     CSVTable = "courses"
	TableTerms       CSVTable = "academicSessions"
	TableClasses     CSVTable = "classes"
	TableUsers       CSVTable = "users"
	TableEnrollments CSVTable = "enrollments"
)

// LoadStatus is the outcome of the most recent load diff for a line.
type LoadStatus string

const (
	LoadStatusNone     LoadStatus = "none"
	LoadStatusAdded    LoadStatus = "added"
	LoadStatusModified LoadStatus = "modified"
	LoadStatusNoChange LoadStatus = "no_change"
	LoadStatusDeleted  LoadStatus = "deleted"
)

// SyncStatus tracks a line through the pipeline stages.
type SyncStatus string

const (
	SyncStatusNone          SyncStatus = "none"
	SyncStatusLoaded        SyncStatus = "loaded"
	SyncStatusReadyToApply  SyncStatus = "ready_to_apply"
	SyncStatusReadyToEnroll SyncStatus = "ready_to_enroll"
	SyncStatusApplied       SyncStatus = "applied"
	SyncStatusApplyFailed   SyncStatus = "apply_failed"
)

// DataSyncLine is the per-record sync state: one row per
// (district, table, sourcedId).
type DataSyncLine struct {
	BaseModel
	DistrictID    int            `gorm:"column:district_id;not null;uniqueIndex:uniq_lines_district_table_sourced,priority:1;index:idx_lines_district_table" json:"districtId"`
	Table         CSVTable       `gorm:"column:csv_table;type:varchar(32);not null;uniqueIndex:uniq_lines_district_table_sourced,priority:2;index:idx_lines_district_table" json:"table"`
	SourcedID     string         `gorm:"column:sourced_id;type:varchar(128);not null;uniqueIndex:uniq_lines_district_table_sourced,priority:3" json:"sourcedId"`
	TargetID      *string        `gorm:"column:target_id;type:varchar(128)" json:"targetId"`
	RawData       datatypes.JSON `gorm:"column:raw_data" json:"rawData"`
	LoadStatus    LoadStatus     `gorm:"column:load_status;type:varchar(16);not null;default:none" json:"loadStatus"`
	SyncStatus    SyncStatus     `gorm:"column:sync_status;type:varchar(16);not null;default:none;index" json:"syncStatus"`
	IncludeInSync bool           `gorm:"column:include_in_sync;default:false" json:"includeInSync"`
	LastSeen      time.Time      `gorm:"column:last_seen;index" json:"lastSeen"`
	Error         string         `gorm:"column:error;type:varchar(2048)" json:"error"`
	ErrorCode     string         `gorm:"column:error_code;type:varchar(64)" json:"errorCode"`
	Version       int            `gorm:"column:version;not null;default:0" json:"version"`
}

// TableName specifies the table name for DataSyncLine
func (DataSyncLine) TableName() string {
	return "data_sync_lines"
}

// Touch bumps the optimistic version counter.
func (l *DataSyncLine) Touch() {
	l.Version++
}

// AllTables lists the entity tables in strict processing order: later tables
// reference target ids produced by earlier ones.
func AllTables() []CSVTable {
	return []CSVTable{TableOrgs, TableTerms, TableCourses, TableClasses, TableUsers, TableEnrollments}
}
