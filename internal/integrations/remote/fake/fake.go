package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BearBump/TrackLedger/internal/integrations/remote"
	"github.com/BearBump/TrackLedger/internal/models"
)

// Client: заглушка удалённого сервиса для локального запуска без сети.
// Статус детерминирован по хэшу номера; примерно каждый седьмой номер "не найден".
type Client struct {
	now func() time.Time
}

func New() *Client {
	return &Client{now: func() time.Time { return time.Now().UTC() }}
}

var lifecycle = []models.Status{
	models.StatusInChinaWarehouse,
	models.StatusOnWayToWarehouse,
	models.StatusReceivedAtWarehouse,
	models.StatusInTransit,
	models.StatusInTransit,
	models.StatusDelivered,
}

func (c *Client) Lookup(ctx context.Context, trackingNumber string) (remote.Status, error) {
	tn := models.CanonicalTrackingNumber(trackingNumber)

	h := fnv.New32a()
	_, _ = h.Write([]byte(tn))
	v := h.Sum32()

	if v%7 == 0 {
		return remote.Status{}, remote.ErrNotFound
	}
	st := lifecycle[int(v%uint32(len(lifecycle)))]

	return remote.Status{
		TrackingNumber: tn,
		Status:         st,
		StatusRaw:      string(st),
		LastUpdated:    c.now(),
	}, nil
}
