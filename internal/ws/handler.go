package ws

import (
	"encoding/json"
	"log"

	socketio "github.com/googollee/go-socket.io"

	"rostersync/internal/db"
	"rostersync/internal/model"
)

// maxIncrementalEvents caps a replay; past this the client gets the full
// district list instead.
const maxIncrementalEvents = 500

// handleRequestDistricts serves the request:districts event. A client that
// supplies its last seen event id gets an incremental replay when possible,
// otherwise the full district list.
func handleRequestDistricts(s socketio.Conn, data interface{}) {
	var lastEventID int64
	if dataMap, ok := data.(map[string]interface{}); ok {
		if v, ok := dataMap["lastEventId"].(float64); ok {
			lastEventID = int64(v)
		}
	}

	if lastEventID > 0 && sendIncrementalUpdates(s, lastEventID) {
		return
	}
	sendFullDistrictList(s)
}

// sendIncrementalUpdates replays missed events. Returns false when the
// client should fall back to the full list.
func sendIncrementalUpdates(s socketio.Conn, lastEventID int64) bool {
	events, err := GetIncrementalEvents(lastEventID, maxIncrementalEvents)
	if err != nil {
		log.Printf("[WebSocket] Failed to query incremental events: %v", err)
		return false
	}
	if len(events) >= maxIncrementalEvents {
		// Too far behind; a full list is cheaper than the replay.
		return false
	}

	if len(events) == 0 {
		latestEventID, _ := GetLatestEventID()
		s.Emit("districts:initial", map[string]interface{}{
			"items":       []interface{}{},
			"total":       0,
			"lastEventId": latestEventID,
		})
		return true
	}

	for _, event := range events {
		var payload interface{}
		if err := json.Unmarshal([]byte(event.Payload), &payload); err != nil {
			log.Printf("[WebSocket] Failed to unmarshal event payload: %v", err)
			continue
		}
		s.Emit("district:update", map[string]interface{}{
			"eventId": event.ID,
			"type":    event.EventType,
			"data":    payload,
		})
	}
	return true
}

func sendFullDistrictList(s socketio.Conn) {
	var districts []model.District
	if err := db.GetDB().Order("id ASC").Find(&districts).Error; err != nil {
		log.Printf("[WebSocket] Failed to query districts: %v", err)
		s.Emit("error", map[string]interface{}{
			"message": "Failed to query districts",
		})
		return
	}

	latestEventID, _ := GetLatestEventID()
	s.Emit("districts:initial", map[string]interface{}{
		"items":       districts,
		"total":       len(districts),
		"lastEventId": latestEventID,
	})
}
