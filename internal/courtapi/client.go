package courtapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

// Config contains connection settings for the reservation service.
type Config struct {
	// BaseURL is the service's API root, without a trailing slash.
	BaseURL string

	// AdminPassword is sent on every request in the x-admin-password
	// header; registration and approval are admin operations.
	AdminPassword string

	// Referer is the origin the service expects requests to come from.
	Referer string

	// Timeout bounds each individual request.
	Timeout time.Duration
}

// Client talks to the external reservation service.
//
// The client is stateless: it performs no retries and holds no session
// state. Callers own the retry policy (for rotation, the next 30-minute
// window is the retry).
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a reservation service client.
func New(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// do performs one JSON request against the service and decodes the
// response body into out (which may be nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AdminPassword != "" {
		req.Header.Set("x-admin-password", c.cfg.AdminPassword)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Read-side close, nothing to recover

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s: status %d", ErrRequestFailed, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding %s response: %w", ErrRequestFailed, path, err)
		}
	}

	return nil
}

// Register creates a user on the reservation service.
//
// The service assigns the user a unique animal display name; an already
// registered phone number comes back with IsExisting set.
func (c *Client) Register(ctx context.Context, phoneNumber string) (*RegisterResult, error) {
	var result RegisterResult
	err := c.do(ctx, http.MethodPost, "/register", map[string]string{"phoneNumber": phoneNumber}, &result)
	if err != nil {
		return nil, fmt.Errorf("registering user %s: %w", phoneNumber, err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: registering user %s", ErrRejected, phoneNumber)
	}
	return &result, nil
}

// Approve marks a registered user as approved, identified by animal name.
func (c *Client) Approve(ctx context.Context, animalName string) error {
	var result approveResult
	err := c.do(ctx, http.MethodPost, "/admin/users/approve", map[string]string{"animalName": animalName}, &result)
	if err != nil {
		return fmt.Errorf("approving user %s: %w", animalName, err)
	}
	if !result.Success {
		return fmt.Errorf("%w: approving user %s: %s", ErrRejected, animalName, result.Message)
	}
	return nil
}

// Reserve places a group of users on a court.
//
// The service's queue semantics apply: if the court is occupied the group
// joins the waitlist, and the sitting group is demoted to the waitlist
// when a queued group is seated. One call both seats the new group and
// re-queues the previous one; no separate eviction is needed.
func (c *Client) Reserve(ctx context.Context, courtID string, animalNames []string) error {
	payload := map[string]any{
		"courtId": courtID,
		"userIds": animalNames,
		"type":    reserveTypeFull,
		"option":  reserveOptionQueue,
	}

	var result reserveResult
	if err := c.do(ctx, http.MethodPost, "/reserve", payload, &result); err != nil {
		return fmt.Errorf("reserving court %s: %w", courtID, err)
	}
	if !result.Success {
		return fmt.Errorf("%w: reserving court %s", ErrRejected, courtID)
	}
	return nil
}

// ListCourts returns every court the service reports, visible or not.
// Callers filter for visibility/availability as needed.
func (c *Client) ListCourts(ctx context.Context) ([]Court, error) {
	var result courtsResult
	if err := c.do(ctx, http.MethodGet, "/courts/all", nil, &result); err != nil {
		return nil, fmt.Errorf("listing courts: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: listing courts", ErrRejected)
	}
	return result.Courts, nil
}

// GetCourt returns metadata for a single court by ID.
func (c *Client) GetCourt(ctx context.Context, courtID string) (*Court, error) {
	courts, err := c.ListCourts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range courts {
		if courts[i].ID == courtID {
			return &courts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCourtNotFound, courtID)
}

// GeneratePhoneNumber returns a random 5-digit phone-number-like
// identifier for a synthetic user.
func GeneratePhoneNumber() string {
	// 10000..99999, crypto source so concurrent provisioning cannot
	// collide through a shared seed.
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		// Fall back to a time-derived value; uniqueness is re-checked by
		// the caller against its own batch anyway.
		return fmt.Sprintf("%05d", time.Now().UnixNano()%90000+10000)
	}
	return fmt.Sprintf("%05d", n.Int64()+10000)
}
