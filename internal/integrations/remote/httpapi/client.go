// Package httpapi talks to the remote tracking service's JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/TrackLedger/internal/integrations/remote"
	"github.com/BearBump/TrackLedger/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     *zap.Logger
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
		log:     zap.NewNop(),
	}
}

func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l != nil {
		c.log = l
	}
	return c
}

type respBody struct {
	TrackingNumber string    `json:"trackingNumber"`
	Status         string    `json:"status"`
	LastUpdated    time.Time `json:"lastUpdated"`
	ShippingMark   *string   `json:"shippingMark,omitempty"`
}

func (c *Client) Lookup(ctx context.Context, trackingNumber string) (remote.Status, error) {
	tn := models.CanonicalTrackingNumber(trackingNumber)

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return remote.Status{}, errors.Wrap(err, "parse base url")
	}
	u = u.JoinPath("api", "v1", "trackings", tn)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return remote.Status{}, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return remote.Status{}, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return remote.Status{}, remote.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return remote.Status{}, fmt.Errorf("remote tracking rate limit (429)")
	case resp.StatusCode/100 != 2:
		return remote.Status{}, fmt.Errorf("remote tracking http %d", resp.StatusCode)
	}

	var rb respBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return remote.Status{}, errors.Wrap(err, "decode")
	}

	status, ok := models.ParseStatus(rb.Status)
	if !ok {
		c.log.Warn("remote returned unrecognised status",
			zap.String("tracking_number", tn),
			zap.String("status", rb.Status),
			zap.String("mapped_to", status.String()))
	}
	out := remote.Status{
		TrackingNumber: tn,
		Status:         status,
		StatusRaw:      rb.Status,
		LastUpdated:    rb.LastUpdated.UTC(),
		ShippingMark:   rb.ShippingMark,
	}
	if rb.TrackingNumber != "" {
		out.TrackingNumber = models.CanonicalTrackingNumber(rb.TrackingNumber)
	}
	return out, nil
}
