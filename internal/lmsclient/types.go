package lmsclient

import (
	"encoding/json"
	"time"
)

// ApplyRequest is the envelope POSTed to the LMS for one line.
type ApplyRequest struct {
	DistrictID   int             `json:"districtId"`
	DistrictName string          `json:"districtName"`
	Table        string          `json:"table"`
	SourcedID    string          `json:"sourcedId"`
	TargetID     *string         `json:"targetId,omitempty"`
	LastSeen     time.Time       `json:"lastSeen"`
	LoadStatus   string          `json:"loadStatus"`
	Data         json.RawMessage `json:"data"`
}

// ApplyResponse is the LMS reply. Success with a targetId is expected even
// for records the LMS already had, so the caller always adopts the returned
// id.
type ApplyResponse struct {
	Success      bool   `json:"success"`
	TargetID     string `json:"targetId,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}
