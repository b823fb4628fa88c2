// Package backend reads the paged REST snapshot of devices and geofences
// that seeds fleet state before the live stream starts.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fleetwatch/internal/domain/fleet"
	"fleetwatch/internal/stream"
)

const (
	DefaultPageSize = 100
	// maxPages stops a backend that ignores paging from looping forever.
	maxPages = 10000
)

var ErrNotConfigured = errors.New("backend base url is not configured")

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL  string
	PageSize int
	Timeout  time.Duration
	// Session supplies the basic auth credentials; nil sends anonymous requests.
	Session stream.SessionStore
	Logger  *zap.Logger
}

type Client struct {
	baseURL    string
	pageSize   int
	session    stream.SessionStore
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		baseURL:    base,
		pageSize:   pageSize,
		session:    cfg.Session,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}, nil
}

// ListDevices walks the device pages until a short page.
func (c *Client) ListDevices(ctx context.Context) ([]fleet.Record, error) {
	var all []fleet.Record
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(c.pageSize))

		records, err := c.list(ctx, "/devices", q)
		if err != nil {
			return nil, fmt.Errorf("list devices page %d: %w", page, err)
		}
		all = append(all, records...)
		if len(records) < c.pageSize {
			break
		}
	}
	c.log.Debug("Loaded device snapshot", zap.Int("devices", len(all)))
	return all, nil
}

// ListGeofences returns every geofence; each carries its WKT under "area".
func (c *Client) ListGeofences(ctx context.Context) ([]fleet.Record, error) {
	records, err := c.list(ctx, "/geofences", nil)
	if err != nil {
		return nil, fmt.Errorf("list geofences: %w", err)
	}
	return records, nil
}

func (c *Client) list(ctx context.Context, path string, query url.Values) ([]fleet.Record, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return decodeRecords(body)
}

func (c *Client) authorize(req *http.Request) error {
	if c.session == nil {
		return nil
	}
	blob, err := c.session.Load()
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if strings.TrimSpace(blob) == "" {
		return nil
	}
	creds, err := stream.DecodeCredentials(blob)
	if err != nil {
		return err
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	return nil
}

// decodeRecords accepts a bare JSON array or a {"data": [...]} envelope.
func decodeRecords(body []byte) ([]fleet.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var records []fleet.Record
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return records, nil
	}

	var envelope struct {
		Data []fleet.Record `json:"data"`
	}
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return envelope.Data, nil
}
