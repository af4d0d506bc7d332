package model

// User is an operator account for the admin API.
type User struct {
	BaseModel
	Username     string `gorm:"column:username;type:varchar(64);not null;uniqueIndex" json:"username"`
	PasswordHash string `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	Role         string `gorm:"column:role;type:enum('admin','viewer');default:viewer" json:"role"`
	Enabled      bool   `gorm:"column:enabled;default:true" json:"enabled"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// User role constants
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)
