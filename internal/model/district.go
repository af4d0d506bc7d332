package model

import "time"

// ProcessingAction is the stage an operator or the scheduler has requested
// for a district.
type ProcessingAction string

const (
	ProcessingActionNone        ProcessingAction = "none"
	ProcessingActionLoad        ProcessingAction = "load"
	ProcessingActionLoadSample  ProcessingAction = "load_sample"
	ProcessingActionAnalyze     ProcessingAction = "analyze"
	ProcessingActionApply       ProcessingAction = "apply"
	ProcessingActionFullProcess ProcessingAction = "full_process"
)

// ProcessingStatus is the stage a district is currently observed in.
type ProcessingStatus string

const (
	ProcessingStatusIdle          ProcessingStatus = "idle"
	ProcessingStatusLoading       ProcessingStatus = "loading"
	ProcessingStatusLoadingDone   ProcessingStatus = "loading_done"
	ProcessingStatusAnalyzing     ProcessingStatus = "analyzing"
	ProcessingStatusAnalyzingDone ProcessingStatus = "analyzing_done"
	ProcessingStatusApplying      ProcessingStatus = "applying"
	ProcessingStatusApplyingDone  ProcessingStatus = "applying_done"
)

// UsernameSource selects which feed field populates the LMS username.
const (
	UsernameSourceUsername  = "username"
	UsernameSourceEmail     = "email"
	UsernameSourceSourcedID = "sourcedId"
)

// District is one tenant: its feed location, target LMS endpoints and the
// live processing state the scheduler and processor drive.
type District struct {
	BaseModel
	Name            string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	NCESDistrictID  string `gorm:"column:nces_district_id;type:varchar(32)" json:"ncesDistrictId"`
	CSVFolder       string `gorm:"column:csv_folder;type:varchar(512);not null" json:"csvFolder"`
	TargetBaseURL   string `gorm:"column:target_base_url;type:varchar(512);not null" json:"targetBaseUrl"`
	OrgEndpoint     string `gorm:"column:org_endpoint;type:varchar(255);default:/api/district/org" json:"orgEndpoint"`
	CourseEndpoint  string `gorm:"column:course_endpoint;type:varchar(255);default:/api/district/course" json:"courseEndpoint"`
	TermEndpoint    string `gorm:"column:term_endpoint;type:varchar(255);default:/api/district/term" json:"termEndpoint"`
	ClassEndpoint   string `gorm:"column:class_endpoint;type:varchar(255);default:/api/district/class" json:"classEndpoint"`
	UserEndpoint    string `gorm:"column:user_endpoint;type:varchar(255);default:/api/district/user" json:"userEndpoint"`
	EnrollEndpoint  string `gorm:"column:enroll_endpoint;type:varchar(255);default:/api/district/enrollment" json:"enrollEndpoint"`
	AuthMode        string `gorm:"column:auth_mode;type:enum('none','api_key');default:api_key" json:"authMode"`
	APIKey          string `gorm:"column:api_key;type:varchar(255)" json:"-"`
	FilterOrgs      bool   `gorm:"column:filter_orgs;default:false" json:"filterOrgs"`
	FilterGrades    bool   `gorm:"column:filter_grades;default:false" json:"filterGrades"`
	UsernameSource  string `gorm:"column:username_source;type:varchar(32);default:username" json:"usernameSource"`
	EmailDomain     string `gorm:"column:email_domain;type:varchar(255)" json:"emailDomain"`
	InitialPassword string `gorm:"column:initial_password;type:varchar(255)" json:"-"`

	DailyProcessingTime *string    `gorm:"column:daily_processing_time;type:varchar(5)" json:"dailyProcessingTime"`
	NextProcessingTime  *time.Time `gorm:"column:next_processing_time;index" json:"nextProcessingTime"`

	ProcessingAction  ProcessingAction `gorm:"column:processing_action;type:varchar(32);not null;default:none;index" json:"processingAction"`
	ProcessingStatus  ProcessingStatus `gorm:"column:processing_status;type:varchar(32);not null;default:idle" json:"processingStatus"`
	StopCurrentAction bool             `gorm:"column:stop_current_action;default:false" json:"stopCurrentAction"`

	Version  int       `gorm:"column:version;not null;default:0" json:"version"`
	Modified time.Time `gorm:"column:modified;autoUpdateTime" json:"modified"`
}

// TableName specifies the table name for District
func (District) TableName() string {
	return "districts"
}

// Touch bumps the optimistic version counter. Concurrent modification is
// detected, not prevented.
func (d *District) Touch() {
	d.Version++
	d.Modified = time.Now().UTC()
}
