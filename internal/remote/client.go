package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	errs "signage-agent-go/internal/platform/errors"
)

const (
	headerAPIKey   = "X-Api-Key"
	headerDeviceID = "X-Device-Id"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 2048
)

// Logger is the minimal logging contract required by the remote layer.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ClientOptions configures the backend HTTP client.
type ClientOptions struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	Timeout  time.Duration
	Logger   Logger
}

// Client talks JSON over HTTP to the signage backend. Every request carries
// the API key and the device identifier so the backend can scope responses.
type Client struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	logger   Logger
}

// NewClient validates the options and builds a backend client.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errs.New(errs.KindConfig, "remote.NewClient", "backend base url required")
	}
	if opts.DeviceID == "" {
		return nil, errs.New(errs.KindConfig, "remote.NewClient", "device id required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		deviceID: opts.DeviceID,
		http:     &http.Client{Timeout: timeout},
		logger:   opts.Logger,
	}, nil
}

// DeviceID returns the identifier the client was built for.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// statusError is a non-2xx backend response. It keeps the status code so
// callers can tell a rejection apart from transport trouble.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// doJSON issues one request and decodes a JSON response into out when out is
// non-nil. Network failures come back as gateway errors; non-2xx responses
// come back as *statusError for the gateway layer to classify.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	const op = "remote.doJSON"

	var body io.Reader
	if in != nil {
		raw, err := sonic.Marshal(in)
		if err != nil {
			return errs.Wrap(errs.KindGateway, op, "encode request", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errs.Wrap(errs.KindGateway, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerDeviceID, c.deviceID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindGateway, op, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.KindGateway, op, "read response", err)
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return errs.Wrap(errs.KindGateway, op, "decode response", err)
	}
	return nil
}
