package messages

import (
	"time"

	"github.com/google/uuid"
)

type ShipmentEventType string

const (
	ShipmentClaimed       ShipmentEventType = "claimed"
	ShipmentStatusChanged ShipmentEventType = "status_changed"
	ShipmentDeleted       ShipmentEventType = "deleted"
)

// ShipmentEvent is published after a user-visible change to a claimed shipment.
type ShipmentEvent struct {
	EventID        string            `json:"event_id"`
	Type           ShipmentEventType `json:"type"`
	UserID         string            `json:"user_id,omitempty"`
	TrackingNumber string            `json:"tracking_number"`
	Status         string            `json:"status,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

func NewShipmentEvent(typ ShipmentEventType, userID, trackingNumber, status string, at time.Time) ShipmentEvent {
	return ShipmentEvent{
		EventID:        uuid.NewString(),
		Type:           typ,
		UserID:         userID,
		TrackingNumber: trackingNumber,
		Status:         status,
		OccurredAt:     at.UTC(),
	}
}
