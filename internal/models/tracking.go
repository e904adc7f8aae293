package models

import (
	"strings"
	"time"
)

// DefaultUserID is the single local profile key used by the web client.
const DefaultUserID = "default"

// AdminRecord: запись, зарегистрированная оператором.
type AdminRecord struct {
	TrackingNumber string    `json:"trackingNumber"`
	Status         Status    `json:"status"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

type HistoryEntry struct {
	Status  Status    `json:"status"`
	Date    time.Time `json:"date"`
	Details string    `json:"details"`
}

// UserShipment is a tracking number a user claims as theirs.
type UserShipment struct {
	TrackingNumber     string    `json:"trackingNumber"`
	Sender             string    `json:"sender"`
	Product            string    `json:"product"`
	Quantity           int       `json:"quantity"`
	UserTrackingNumber *string   `json:"userTrackingNumber"`
	Status             Status    `json:"status"`
	AddedDate          time.Time `json:"addedDate"`
	LastUpdated        time.Time `json:"lastUpdated"`
}

// CanonicalTrackingNumber trims and upper-cases a tracking number.
func CanonicalTrackingNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
