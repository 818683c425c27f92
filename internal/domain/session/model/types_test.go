package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCredentialsComplete(t *testing.T) {
	cases := []struct {
		name  string
		creds Credentials
		want  bool
	}{
		{"all fields", Credentials{Username: "u", Password: "p", ScreenName: "s"}, true},
		{"missing password", Credentials{Username: "u", ScreenName: "s"}, false},
		{"missing screen name", Credentials{Username: "u", Password: "p"}, false},
		{"empty", Credentials{}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.creds.Complete(); got != tc.want {
				t.Fatalf("Complete() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPairingCodeExpired(t *testing.T) {
	now := time.Now()

	live := PairingCode{Code: "123456", ExpiresAt: now.Add(time.Minute)}
	if live.Expired(now) {
		t.Fatal("code with future expiry must not be expired")
	}

	dead := PairingCode{Code: "123456", ExpiresAt: now.Add(-time.Second)}
	if !dead.Expired(now) {
		t.Fatal("code with past expiry must be expired")
	}

	zero := PairingCode{Code: "123456"}
	if zero.Expired(now) {
		t.Fatal("code without expiry must not expire")
	}
}

func TestDeviceSessionJSONHidesCredentials(t *testing.T) {
	session := DeviceSession{
		DeviceID: "device-1",
		Credentials: Credentials{
			Username:   "lobby",
			Password:   "secret",
			ScreenName: "Lobby Display",
		},
		IsAuthenticated: true,
	}

	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(raw), "secret") || strings.Contains(string(raw), "lobby") {
		t.Fatalf("serialized session leaks credentials: %s", raw)
	}
}
