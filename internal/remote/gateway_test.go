package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	commandmodel "signage-agent-go/internal/domain/command/model"
	sessionmodel "signage-agent-go/internal/domain/session/model"
	errs "signage-agent-go/internal/platform/errors"
)

func newTestGateway(t *testing.T, handler http.Handler) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{
		BaseURL:  server.URL,
		APIKey:   "test-key",
		DeviceID: "device-1",
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return NewGateway(client, nil)
}

func TestGatewayLogin(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/devices/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get(headerAPIKey); got != "test-key" {
			t.Errorf("missing api key header, got %q", got)
		}
		if got := r.Header.Get(headerDeviceID); got != "device-1" {
			t.Errorf("missing device id header, got %q", got)
		}

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Username != "lobby" || req.ScreenName != "Lobby Display" || req.DeviceID != "device-1" {
			t.Errorf("unexpected login request: %+v", req)
		}

		json.NewEncoder(w).Encode(loginResponse{
			Username:   "lobby",
			Password:   "secret",
			ScreenName: "Lobby Display",
		})
	}))

	creds, err := gw.Login(context.Background(), "lobby", "secret", "Lobby Display")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	want := sessionmodel.Credentials{Username: "lobby", Password: "secret", ScreenName: "Lobby Display"}
	if creds != want {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestGatewayLoginRejection(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))

	_, err := gw.Login(context.Background(), "lobby", "wrong", "Lobby Display")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsKind(err, errs.KindSession) {
		t.Fatalf("expected session rejection, got %v", err)
	}
	if errs.Retryable(err) {
		t.Fatal("rejection must not be retryable")
	}
}

func TestGatewayLoginNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client, err := NewClient(ClientOptions{BaseURL: server.URL, DeviceID: "device-1"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	server.Close()

	gw := NewGateway(client, nil)
	_, err = gw.Login(context.Background(), "lobby", "secret", "Lobby Display")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errs.IsKind(err, errs.KindGateway) {
		t.Fatalf("expected gateway failure, got %v", err)
	}
	if !errs.Retryable(err) {
		t.Fatal("gateway failure must be retryable")
	}
}

func TestGatewayPushStatus(t *testing.T) {
	var got statusRequest
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/devices/device-1/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	report := sessionmodel.StatusReport{
		Credentials: sessionmodel.Credentials{Username: "lobby", Password: "secret", ScreenName: "Lobby Display"},
		Online:      false,
		Active:      false,
	}
	if err := gw.PushStatus(context.Background(), report); err != nil {
		t.Fatalf("PushStatus returned error: %v", err)
	}
	if got.Status != "offline" || got.ScreenName != "Lobby Display" || got.Username != "lobby" {
		t.Fatalf("unexpected status request: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Fatal("status request missing timestamp")
	}
}

func TestGatewayPollPairingStatus(t *testing.T) {
	responses := map[string]pairingStatusResponse{
		"111111": {Status: sessionmodel.PairingPending},
		"222222": {Status: sessionmodel.PairingExpired},
		"333333": {
			Status: sessionmodel.PairingAuthenticated,
			Credentials: &loginResponse{
				Username:   "lobby",
				Password:   "secret",
				ScreenName: "Lobby Display",
			},
		},
	}
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Path[len(r.URL.Path)-6:]
		json.NewEncoder(w).Encode(responses[code])
	}))

	ctx := context.Background()

	status, _, err := gw.PollPairingStatus(ctx, "111111")
	if err != nil || status != sessionmodel.PairingPending {
		t.Fatalf("expected pending, got %v err=%v", status, err)
	}

	status, _, err = gw.PollPairingStatus(ctx, "222222")
	if err != nil || status != sessionmodel.PairingExpired {
		t.Fatalf("expected expired, got %v err=%v", status, err)
	}

	status, creds, err := gw.PollPairingStatus(ctx, "333333")
	if err != nil {
		t.Fatalf("PollPairingStatus returned error: %v", err)
	}
	if status != sessionmodel.PairingAuthenticated || !creds.Complete() {
		t.Fatalf("expected authenticated with credentials, got %v %+v", status, creds)
	}
}

func TestGatewayGeneratePairingCode(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code":       "123456",
			"expires_at": "2026-01-01T00:10:00Z",
		})
	}))

	code, err := gw.GeneratePairingCode(context.Background())
	if err != nil {
		t.Fatalf("GeneratePairingCode returned error: %v", err)
	}
	if code.Code != "123456" || code.ExpiresAt.IsZero() {
		t.Fatalf("unexpected code: %+v", code)
	}
}

func TestGatewayClearDeviceAuthRetries(t *testing.T) {
	attempts := 0
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "try later", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := gw.ClearDeviceAuth(context.Background()); err != nil {
		t.Fatalf("ClearDeviceAuth returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestGatewayClearDeviceAuthNotFoundIsSuccess(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	if err := gw.ClearDeviceAuth(context.Background()); err != nil {
		t.Fatalf("expected 404 to be treated as success, got %v", err)
	}
}

func TestGatewayPollAndAckCommands(t *testing.T) {
	var ackedID string
	var acked ackRequest
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(pollCommandsResponse{
				Commands: []commandmodel.Command{
					{ID: "cmd-1", Kind: commandmodel.KindSyncStatus, Status: commandmodel.StatusPending},
				},
			})
		case r.Method == http.MethodPost:
			ackedID = r.URL.Path[len("/api/v1/commands/") : len(r.URL.Path)-len("/ack")]
			json.NewDecoder(r.Body).Decode(&acked)
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	ctx := context.Background()
	commands, err := gw.PollCommands(ctx)
	if err != nil {
		t.Fatalf("PollCommands returned error: %v", err)
	}
	if len(commands) != 1 || commands[0].ID != "cmd-1" {
		t.Fatalf("unexpected commands: %+v", commands)
	}

	if err := gw.AckCommand(ctx, "cmd-1", commandmodel.StatusCompleted, "done"); err != nil {
		t.Fatalf("AckCommand returned error: %v", err)
	}
	if ackedID != "cmd-1" || acked.Status != commandmodel.StatusCompleted {
		t.Fatalf("unexpected ack: id=%q %+v", ackedID, acked)
	}
}
