package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"tracker/internal/core"
)

type EventType string

const (
	EventUserCreated     EventType = "user.created"
	EventUserDeleted     EventType = "user.deleted"
	EventCategoryCreated EventType = "category.created"
	EventCategoryDeleted EventType = "category.deleted"
	EventRecordCreated   EventType = "record.created"
	EventRecordDeleted   EventType = "record.deleted"
)

// Event announces a change to one resource. Record events also carry the
// references and the sum so a consumer can act without reading back.
type Event struct {
	Type       EventType  `json:"type"`
	ResourceID uuid.UUID  `json:"resourceId"`
	UserID     *uuid.UUID `json:"userId,omitempty"`
	CategoryID *uuid.UUID `json:"categoryId,omitempty"`
	Sum        string     `json:"sum,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

func NewEvent(t EventType, resourceID uuid.UUID) Event {
	return Event{
		Type:       t,
		ResourceID: resourceID,
		Timestamp:  time.Now().UTC(),
	}
}

// NewRecordEvent builds an event for r, including its references and sum.
func NewRecordEvent(t EventType, r core.Record) Event {
	e := NewEvent(t, r.ID)
	userID, categoryID := r.UserID, r.CategoryID
	e.UserID = &userID
	e.CategoryID = &categoryID
	e.Sum = r.Sum.String()
	return e
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event published by Client.Publish.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
