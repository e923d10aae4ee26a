package facial

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

var _ Matcher = (*Client)(nil)

// Client calls a DeepFace-compatible recognition service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient constructs a matcher client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type recognizeRequest struct {
	Photo     string  `json:"photo"`
	Threshold float64 `json:"threshold"`
}

type recognizeResponse struct {
	Recognized bool    `json:"recognized"`
	EmployeeID int64   `json:"employee_id"`
	Similarity float64 `json:"similarity"`
}

// Recognize submits the photo and returns the service verdict. Any
// transport failure or non-200 status maps to ErrUnavailable; the
// caller cannot distinguish a down matcher from a slow one and should
// not try.
func (c *Client) Recognize(ctx context.Context, photo []byte, threshold float64) (Match, error) {
	body, err := json.Marshal(recognizeRequest{
		Photo:     base64.StdEncoding.EncodeToString(photo),
		Threshold: threshold,
	})
	if err != nil {
		return Match{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/recognize", bytes.NewReader(body))
	if err != nil {
		return Match{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Match{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Match{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Match{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Match{
		EmployeeID: out.EmployeeID,
		Similarity: out.Similarity,
		Recognized: out.Recognized,
	}, nil
}
