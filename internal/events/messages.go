package events

import (
	"encoding/json"
	"time"

	"github.com/SilentInt/HamsterWallet/internal/core"
)

// TaskEventMessage notifies downstream consumers about a re-categorization
// task transition. It carries the full counter snapshot so consumers do not
// need to call back into the API.
type TaskEventMessage struct {
	Event     string            `json:"event"`
	Task      core.TaskSnapshot `json:"task"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewTaskEventMessage creates an event message stamped with the current time.
func NewTaskEventMessage(event string, snap core.TaskSnapshot) *TaskEventMessage {
	return &TaskEventMessage{
		Event:     event,
		Task:      snap,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TaskEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON creates a message from JSON bytes
func TaskEventMessageFromJSON(data []byte) (*TaskEventMessage, error) {
	var msg TaskEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
