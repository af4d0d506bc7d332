package model

import "gorm.io/datatypes"

// DataSyncHistoryDetail is an append-only audit snapshot written whenever a
// line's sync-relevant fields change. The engine never reads these back; they
// exist for operators.
type DataSyncHistoryDetail struct {
	BaseModel
	HistoryID     int            `gorm:"column:history_id;not null;index" json:"historyId"`
	LineID        int            `gorm:"column:line_id;not null;index" json:"lineId"`
	DistrictID    int            `gorm:"column:district_id;not null;index" json:"districtId"`
	Table         CSVTable       `gorm:"column:csv_table;type:varchar(32);not null" json:"table"`
	SourcedID     string         `gorm:"column:sourced_id;type:varchar(128);not null" json:"sourcedId"`
	LoadStatus    LoadStatus     `gorm:"column:load_status;type:varchar(16)" json:"loadStatus"`
	SyncStatus    SyncStatus     `gorm:"column:sync_status;type:varchar(16)" json:"syncStatus"`
	IncludeInSync bool           `gorm:"column:include_in_sync" json:"includeInSync"`
	RawData       datatypes.JSON `gorm:"column:raw_data" json:"rawData"`
}

// TableName specifies the table name for DataSyncHistoryDetail
func (DataSyncHistoryDetail) TableName() string {
	return "data_sync_history_details"
}
