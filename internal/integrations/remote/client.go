package remote

import (
	"context"
	"time"

	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/pkg/errors"
)

// ErrNotFound: удалённый сервис ещё не знает номер (админ не зарегистрировал).
var ErrNotFound = errors.New("tracking number not found on remote")

type Status struct {
	TrackingNumber string        `json:"trackingNumber"`
	Status         models.Status `json:"status"`
	StatusRaw      string        `json:"statusRaw"`
	LastUpdated    time.Time     `json:"lastUpdated"`
	ShippingMark   *string       `json:"shippingMark,omitempty"`
}

type Client interface {
	Lookup(ctx context.Context, trackingNumber string) (Status, error)
}
