// Package nengclient is the HTTP client for the upstream NENG
// device-inventory and power-reading endpoints (spec.md §6.1). It is
// an opaque JSON source; this package's only job is to fetch and
// decode the two arrays, never to interpret them.
package nengclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dcops/pdumonitor/internal/classify"
)

// DeviceRecord is one entry of the `/device` endpoint: identity and
// topology. Field names mirror NENG's wire shape verbatim (spec.md
// §6.1) — they are mapped, not renamed, at this layer.
type DeviceRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	RackID  string `json:"rackId"`
	Country string `json:"country"`
	Site    string `json:"site"`
	DC      string `json:"dc"`
	Phase   string `json:"phase"`
	Chain   string `json:"chain"`
	Node    string `json:"node"`
	Serial  string `json:"serial"`
	GwName  string `json:"gwName"`
	GwIP    string `json:"gwIp"`
}

// PowerRecord is one entry of the `/power` endpoint: readings.
// Numeric fields are pointers because a missing reading is
// "unreadable", never a silent zero.
type PowerRecord struct {
	ID                string   `json:"id"`
	TotalAmps         *float64 `json:"-"`
	TotalVolts        *float64 `json:"totalVolts"`
	TotalWatts        *float64 `json:"totalWatts"`
	Temperature       *float64 `json:"temperature"`
	SensorTemperature *float64 `json:"sensorTemperature"`
	SensorHumidity    *float64 `json:"sensorHumidity"`
}

// UnmarshalJSON decodes totalAmps leniently. NENG's own loose numeric
// encoding means a current reading is sometimes a plain number and
// sometimes a string that may or may not parse as one; a record that
// fails to parse must not fail the whole batch decode, since that
// reading is "unreadable", not an error (classify.ParseCurrent, and
// spec.md §4.4's warning_amperage_invalid_reading, already model this
// as a per-PDU classification outcome, not a fetch failure).
func (p *PowerRecord) UnmarshalJSON(data []byte) error {
	type alias PowerRecord
	aux := &struct {
		TotalAmps json.RawMessage `json:"totalAmps"`
		*alias
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	p.TotalAmps = parseTotalAmps(aux.TotalAmps)
	return nil
}

// parseTotalAmps handles both encodings NENG uses for totalAmps: a
// plain JSON number, or a string (which may itself be non-numeric).
// Anything that isn't a clean float - missing, null, non-numeric
// string, or any other shape - comes back nil rather than erroring.
func parseTotalAmps(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return &asNumber
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return nil
	}
	v, ok := classify.ParseCurrent(asString)
	if !ok {
		return nil
	}
	return v
}

type envelope[T any] struct {
	Code int `json:"code"`
	Data []T `json:"data"`
}

// Client fetches the device and power endpoints of a single NENG base
// URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) FetchDevices(ctx context.Context) ([]DeviceRecord, error) {
	var env envelope[DeviceRecord]
	if err := c.getJSON(ctx, "/device", &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) FetchPower(ctx context.Context) ([]PowerRecord, error) {
	var env envelope[PowerRecord]
	if err := c.getJSON(ctx, "/power", &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &TransientError{StatusCode: resp.StatusCode, Path: path}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// TransientError marks a response worth retrying (5xx, 429).
type TransientError struct {
	StatusCode int
	Path       string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error from %s: status %d", e.Path, e.StatusCode)
}
