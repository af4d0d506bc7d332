package model

// WSEvent is a persisted dashboard event, kept so reconnecting Socket.IO
// clients can replay what they missed.
type WSEvent struct {
	BaseModel
	Topic     string `gorm:"column:topic;type:varchar(64);not null;index" json:"topic"`
	EventType string `gorm:"column:event_type;type:varchar(32);not null" json:"eventType"`
	Payload   string `gorm:"column:payload;type:longtext" json:"payload"`
}

// TableName specifies the table name for WSEvent
func (WSEvent) TableName() string {
	return "ws_events"
}
