package messages

import "time"

// AdminStatusChanged приходит из админского сервиса: регистрация номера
// или смена его статуса. Status: сырая строка, маппится через ParseStatus.
type AdminStatusChanged struct {
	TrackingNumber string    `json:"tracking_number"`
	Status         string    `json:"status"`
	ChangedAt      time.Time `json:"changed_at"`
	Operator       string    `json:"operator,omitempty"`
}
