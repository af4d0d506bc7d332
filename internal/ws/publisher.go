package ws

import (
	"encoding/json"
	"fmt"
	"log"

	"rostersync/internal/db"
	"rostersync/internal/model"
)

const districtsTopic = "districts"

// PublishDistrictEvent persists a district event and broadcasts it to all
// connected clients. The stored copy lets a reconnecting client replay what
// it missed.
func PublishDistrictEvent(eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WebSocket] Failed to marshal payload: %v", err)
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := model.WSEvent{
		Topic:     districtsTopic,
		EventType: eventType,
		Payload:   string(payloadJSON),
	}
	if err := db.GetDB().Create(&event).Error; err != nil {
		log.Printf("[WebSocket] Failed to write event to database: %v", err)
		return fmt.Errorf("failed to write event to database: %w", err)
	}

	// Broadcast failure must not affect the processing flow.
	BroadcastToAll("district:update", map[string]interface{}{
		"eventId": event.ID,
		"type":    eventType,
		"data":    payload,
	})
	return nil
}

// DistrictPublisher adapts the package-level publish function to the
// processor's Publisher interface.
type DistrictPublisher struct{}

// PublishDistrict broadcasts a district state change.
func (DistrictPublisher) PublishDistrict(district *model.District) {
	if err := PublishDistrictEvent("update", district); err != nil {
		log.Printf("[WebSocket] Failed to publish district %d: %v", district.ID, err)
	}
}

// GetIncrementalEvents retrieves district events with id > lastEventID,
// limited to maxCount.
func GetIncrementalEvents(lastEventID int64, maxCount int) ([]model.WSEvent, error) {
	var events []model.WSEvent
	err := db.GetDB().
		Where("topic = ? AND id > ?", districtsTopic, lastEventID).
		Order("id ASC").
		Limit(maxCount).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query incremental events: %w", err)
	}
	return events, nil
}

// GetLatestEventID retrieves the newest district event id, 0 when none exist.
func GetLatestEventID() (int64, error) {
	var event model.WSEvent
	err := db.GetDB().
		Where("topic = ?", districtsTopic).
		Order("id DESC").
		Limit(1).
		First(&event).Error
	if err != nil {
		if err.Error() == "record not found" {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query latest event: %w", err)
	}
	return int64(event.ID), nil
}
