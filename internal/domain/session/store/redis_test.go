package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"signage-agent-go/internal/domain/session/model"
)

func newTestRedis(t *testing.T) Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := NewRedis(Config{
		Driver: DriverRedis,
		Redis:  &RedisConfig{Addr: mr.Addr()},
	})
	if err != nil {
		t.Fatalf("NewRedis returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})
	return s
}

func TestRedisStoreCredentialsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestRedis(t)

	if _, ok, err := s.LoadCredentials(ctx); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	creds := model.Credentials{
		Username:   "lobby",
		Password:   "x",
		ScreenName: "Lobby Display",
	}
	if err := s.SaveCredentials(ctx, creds); err != nil {
		t.Fatalf("SaveCredentials returned error: %v", err)
	}

	loaded, ok, err := s.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials returned error: %v", err)
	}
	if !ok || loaded != creds {
		t.Fatalf("unexpected credentials: ok=%v %+v", ok, loaded)
	}

	if err := s.ClearCredentials(ctx); err != nil {
		t.Fatalf("ClearCredentials returned error: %v", err)
	}
	if _, ok, _ := s.LoadCredentials(ctx); ok {
		t.Fatal("expected credentials gone after clear")
	}
}

func TestRedisStoreSentinel(t *testing.T) {
	ctx := context.Background()
	s := newTestRedis(t)

	if has, err := s.HasLogoutSentinel(ctx); err != nil || has {
		t.Fatalf("expected no sentinel initially, got has=%v err=%v", has, err)
	}

	if err := s.SetLogoutSentinel(ctx); err != nil {
		t.Fatalf("SetLogoutSentinel returned error: %v", err)
	}
	if has, _ := s.HasLogoutSentinel(ctx); !has {
		t.Fatal("expected sentinel after set")
	}

	if err := s.ClearLogoutSentinel(ctx); err != nil {
		t.Fatalf("ClearLogoutSentinel returned error: %v", err)
	}
	if has, _ := s.HasLogoutSentinel(ctx); has {
		t.Fatal("expected sentinel cleared")
	}
}

func TestNewRedisRequiresAddr(t *testing.T) {
	if _, err := NewRedis(Config{Driver: DriverRedis, Redis: &RedisConfig{}}); err == nil {
		t.Fatal("expected error for missing address")
	}
	if _, err := NewRedis(Config{Driver: DriverRedis}); err == nil {
		t.Fatal("expected error for missing redis config")
	}
}
