package model

// Filter type constants
const (
	FilterTypeGrade      = "grade"
	FilterTypeOrg        = "org"
	FilterTypeNCESSchool = "nces_school"
)

// DistrictFilter restricts which lines the analyzer may include, e.g. a set
// of grade levels or org sourcedIds. The nces_school type instead maps a
// school name (FilterKey) to its NCES id (FilterValue) for schools whose feed
// identifier cannot be resolved.
type DistrictFilter struct {
	BaseModel
	DistrictID  int    `gorm:"column:district_id;not null;index:idx_filters_district_type" json:"districtId"`
	FilterType  string `gorm:"column:filter_type;type:varchar(32);not null;index:idx_filters_district_type" json:"filterType"`
	FilterKey   string `gorm:"column:filter_key;type:varchar(255)" json:"filterKey"`
	FilterValue string `gorm:"column:filter_value;type:varchar(128);not null" json:"filterValue"`
	ShouldApply bool   `gorm:"column:should_apply;default:true" json:"shouldApply"`
}

// TableName specifies the table name for DistrictFilter
func (DistrictFilter) TableName() string {
	return "district_filters"
}
