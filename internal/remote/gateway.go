package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	commandmodel "signage-agent-go/internal/domain/command/model"
	"signage-agent-go/internal/domain/identity"
	sessionmodel "signage-agent-go/internal/domain/session/model"
	errs "signage-agent-go/internal/platform/errors"
)

const (
	clearAuthAttempts = 3
	clearAuthBackoff  = 500 * time.Millisecond
)

// Gateway exposes the backend operations the session and command domains
// need. Rejections (backend said no) and gateway failures (backend was
// unreachable) carry different error kinds so callers can decide whether
// to retry.
type Gateway struct {
	client *Client
	logger Logger
}

// NewGateway wraps a backend client.
func NewGateway(client *Client, logger Logger) *Gateway {
	return &Gateway{client: client, logger: logger}
}

// classify turns a client error into a typed error. Non-2xx responses in the
// 4xx range are rejections; everything else is a gateway failure worth
// retrying later.
func classify(err error, rejectionKind errs.Kind, op, message string) error {
	if err == nil {
		return nil
	}
	var status *statusError
	if errors.As(err, &status) && status.Status >= 400 && status.Status < 500 {
		return errs.Wrap(rejectionKind, op, message, err)
	}
	return errs.Wrap(errs.KindGateway, op, message, err)
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	ScreenName string `json:"screen_name"`
	DeviceID   string `json:"device_id"`
}

type loginResponse struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	ScreenName string `json:"screen_name"`
}

// Login exchanges operator credentials for the device credential triple,
// binding the device to the named screen.
func (g *Gateway) Login(ctx context.Context, username, password, screenName string) (sessionmodel.Credentials, error) {
	const op = "gateway.Login"

	req := loginRequest{
		Username:   username,
		Password:   password,
		ScreenName: screenName,
		DeviceID:   g.client.DeviceID(),
	}
	var resp loginResponse
	err := g.client.doJSON(ctx, http.MethodPost, "/api/v1/devices/login", req, &resp)
	if err != nil {
		return sessionmodel.Credentials{}, classify(err, errs.KindSession, op, "login rejected for user "+username)
	}

	creds := sessionmodel.Credentials{
		Username:   resp.Username,
		Password:   resp.Password,
		ScreenName: resp.ScreenName,
	}
	if !creds.Complete() {
		return sessionmodel.Credentials{}, errs.New(errs.KindGateway, op, "backend returned incomplete credentials")
	}
	return creds, nil
}

type statusRequest struct {
	Username   string    `json:"username"`
	Password   string    `json:"password"`
	ScreenName string    `json:"screen_name"`
	Status     string    `json:"status"`
	Active     bool      `json:"active"`
	Timestamp  time.Time `json:"timestamp"`
}

// PushStatus reports the device heartbeat. The backend authenticates the
// report by the embedded credentials; Active means content is rendering.
func (g *Gateway) PushStatus(ctx context.Context, report sessionmodel.StatusReport) error {
	const op = "gateway.PushStatus"

	status := "online"
	if !report.Online {
		status = "offline"
	}
	req := statusRequest{
		Username:   report.Credentials.Username,
		Password:   report.Credentials.Password,
		ScreenName: report.Credentials.ScreenName,
		Status:     status,
		Active:     report.Active,
		Timestamp:  time.Now().UTC(),
	}

	path := fmt.Sprintf("/api/v1/devices/%s/status", url.PathEscape(g.client.DeviceID()))
	err := g.client.doJSON(ctx, http.MethodPost, path, req, nil)
	return classify(err, errs.KindSession, op, "status push rejected")
}

type pairingCodeRequest struct {
	DeviceInfo identity.DeviceInfo `json:"device_info"`
}

// GeneratePairingCode asks the backend to mint a fresh pairing code for
// this device, invalidating any previous one. Device details ride along so
// the companion UI can show what is being paired.
func (g *Gateway) GeneratePairingCode(ctx context.Context) (sessionmodel.PairingCode, error) {
	const op = "gateway.GeneratePairingCode"

	path := fmt.Sprintf("/api/v1/devices/%s/pairing-code", url.PathEscape(g.client.DeviceID()))
	var code sessionmodel.PairingCode
	if err := g.client.doJSON(ctx, http.MethodPost, path, pairingCodeRequest{DeviceInfo: identity.Info()}, &code); err != nil {
		return sessionmodel.PairingCode{}, classify(err, errs.KindSession, op, "pairing code request rejected")
	}
	if code.Code == "" {
		return sessionmodel.PairingCode{}, errs.New(errs.KindGateway, op, "backend returned empty pairing code")
	}
	return code, nil
}

type pairingStatusResponse struct {
	Status      sessionmodel.PairingStatus `json:"status"`
	Credentials *loginResponse             `json:"credentials,omitempty"`
}

// PollPairingStatus checks whether a companion client has claimed the code.
// Credentials are only present when the status is authenticated.
func (g *Gateway) PollPairingStatus(ctx context.Context, code string) (sessionmodel.PairingStatus, sessionmodel.Credentials, error) {
	const op = "gateway.PollPairingStatus"

	path := fmt.Sprintf("/api/v1/devices/%s/pairing-code/%s",
		url.PathEscape(g.client.DeviceID()), url.PathEscape(code))
	var resp pairingStatusResponse
	if err := g.client.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", sessionmodel.Credentials{}, classify(err, errs.KindSession, op, "pairing status poll rejected")
	}

	if resp.Status != sessionmodel.PairingAuthenticated {
		return resp.Status, sessionmodel.Credentials{}, nil
	}
	if resp.Credentials == nil {
		return "", sessionmodel.Credentials{}, errs.New(errs.KindGateway, op, "authenticated pairing response missing credentials")
	}
	creds := sessionmodel.Credentials{
		Username:   resp.Credentials.Username,
		Password:   resp.Credentials.Password,
		ScreenName: resp.Credentials.ScreenName,
	}
	if !creds.Complete() {
		return "", sessionmodel.Credentials{}, errs.New(errs.KindGateway, op, "authenticated pairing response incomplete")
	}
	return resp.Status, creds, nil
}

// ClearDeviceAuth tells the backend to forget this device's authentication.
// The call retries a few times because it runs during logout, when giving up
// too early would leave a stale server side session behind.
func (g *Gateway) ClearDeviceAuth(ctx context.Context) error {
	const op = "gateway.ClearDeviceAuth"

	path := fmt.Sprintf("/api/v1/devices/%s/auth", url.PathEscape(g.client.DeviceID()))

	var lastErr error
	for attempt := 1; attempt <= clearAuthAttempts; attempt++ {
		err := g.client.doJSON(ctx, http.MethodDelete, path, nil, nil)
		if err == nil {
			return nil
		}

		var status *statusError
		if errors.As(err, &status) {
			// Nothing to clear is a success for our purposes.
			if status.Status == http.StatusNotFound {
				return nil
			}
			if status.Status >= 400 && status.Status < 500 {
				return errs.Wrap(errs.KindSession, op, "auth clear rejected", err)
			}
		}
		lastErr = err

		if attempt < clearAuthAttempts {
			if g.logger != nil {
				g.logger.Warn("auth clear attempt %d/%d failed: %v", attempt, clearAuthAttempts, err)
			}
			select {
			case <-ctx.Done():
				return errs.Wrap(errs.KindGateway, op, "auth clear cancelled", ctx.Err())
			case <-time.After(clearAuthBackoff * time.Duration(attempt)):
			}
		}
	}
	return errs.Wrap(errs.KindGateway, op, "auth clear failed", lastErr)
}

type pollCommandsResponse struct {
	Commands []commandmodel.Command `json:"commands"`
}

// PollCommands fetches commands still pending for this device.
func (g *Gateway) PollCommands(ctx context.Context) ([]commandmodel.Command, error) {
	const op = "gateway.PollCommands"

	path := fmt.Sprintf("/api/v1/devices/%s/commands?status=pending", url.PathEscape(g.client.DeviceID()))
	var resp pollCommandsResponse
	if err := g.client.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, classify(err, errs.KindCommand, op, "command poll rejected")
	}
	return resp.Commands, nil
}

type ackRequest struct {
	Status  commandmodel.Status `json:"status"`
	Message string              `json:"message,omitempty"`
}

// AckCommand reports a command's new status back to the backend.
func (g *Gateway) AckCommand(ctx context.Context, commandID string, status commandmodel.Status, message string) error {
	const op = "gateway.AckCommand"

	path := fmt.Sprintf("/api/v1/commands/%s/ack", url.PathEscape(commandID))
	err := g.client.doJSON(ctx, http.MethodPost, path, ackRequest{Status: status, Message: message}, nil)
	return classify(err, errs.KindCommand, op, "command ack rejected")
}
