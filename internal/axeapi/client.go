package axeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"axectl/internal/logging"
)

// DefaultTimeout bounds a single device request. AxeOS responds in well
// under a second on a healthy LAN; anything slower is effectively offline.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of a device response we will read. AxeOS
// payloads are a few KB; the cap guards against a misbehaving endpoint.
const maxResponseBytes = 1 << 20

// Client talks to a single AxeOS device over its HTTP API.
type Client struct {
	ip         string
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the device at ip. A zero timeout selects
// DefaultTimeout.
func NewClient(ip string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		ip:      ip,
		baseURL: fmt.Sprintf("http://%s", net.JoinHostPort(ip, "80")),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// IP returns the address this client targets.
func (c *Client) IP() string {
	return c.ip
}

// SystemInfo fetches the device identity and live stats payload.
func (c *Client) SystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.getJSON(ctx, "/api/system/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UpdateSystem applies a partial settings update. Most changes take effect
// only after a restart; callers decide whether to chain one.
func (c *Client) UpdateSystem(ctx context.Context, req UpdateRequest) error {
	if req.IsEmpty() {
		return NewValidationError(c.ip, "update request has no fields to apply")
	}
	if req.FanSpeed != nil {
		if err := validateFanSpeed(*req.FanSpeed, c.ip); err != nil {
			return err
		}
	}
	return c.send(ctx, http.MethodPatch, "/api/system", req)
}

// Restart reboots the device.
func (c *Client) Restart(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/system/restart", nil)
}

// UpdateFirmware points the device at a firmware image URL and starts an
// OTA flash.
func (c *Client) UpdateFirmware(ctx context.Context, url string) error {
	if url == "" {
		return NewValidationError(c.ip, "firmware URL must not be empty")
	}
	return c.send(ctx, http.MethodPost, "/api/system/OTA", map[string]string{"url": url})
}

// UpdateWebUI flashes a new web interface image over the air.
func (c *Client) UpdateWebUI(ctx context.Context, url string) error {
	if url == "" {
		return NewValidationError(c.ip, "web UI URL must not be empty")
	}
	return c.send(ctx, http.MethodPost, "/api/system/OTAWWW", map[string]string{"url": url})
}

// ScanWifi asks the device to scan for nearby WiFi networks.
func (c *Client) ScanWifi(ctx context.Context) (*WifiScanResult, error) {
	var result WifiScanResult
	if err := c.getJSON(ctx, "/api/system/wifi/scan", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetFanSpeed sets the fan duty cycle in percent. The range check happens
// before any network traffic.
func (c *Client) SetFanSpeed(ctx context.Context, percent int) error {
	if err := validateFanSpeed(percent, c.ip); err != nil {
		return err
	}
	return c.send(ctx, http.MethodPatch, "/api/system", UpdateRequest{FanSpeed: &percent})
}

func validateFanSpeed(percent int, ip string) error {
	if percent < 0 || percent > 100 {
		return NewValidationError(ip, fmt.Sprintf("fan speed %d%% out of range 0-100", percent))
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewMalformedResponseError(c.ip, fmt.Sprintf("decoding %s response", path), err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload any) error {
	_, err := c.do(ctx, method, path, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, NewValidationError(c.ip, fmt.Sprintf("encoding request body: %v", err))
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, NewValidationError(c.ip, fmt.Sprintf("building request: %v", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewUnreachableError(c.ip, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewUnreachableError(c.ip, err)
	}

	logging.LogHTTPRequest(c.ip, method, path, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewHTTPError(c.ip, resp.StatusCode, string(body))
	}
	return body, nil
}
