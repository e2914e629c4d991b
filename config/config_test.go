package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Port != 5236 {
		t.Fatalf("port = %d, want 5236", c.Port)
	}
	if c.PingInterval != 5*time.Second {
		t.Fatalf("ping interval = %v, want 5s", c.PingInterval)
	}
	if c.FlushInterval != 10*time.Second {
		t.Fatalf("flush interval = %v, want 10s", c.FlushInterval)
	}
	if c.RequireCreateCredential {
		t.Fatalf("expected open create-board policy by default")
	}
}

func TestFromEnvOverlaysDefaults(t *testing.T) {
	os.Setenv("PORT", "9999")
	os.Setenv("WHITEBOARD_REQUIRE_CREATE_CREDENTIAL", "true")
	os.Setenv("WHITEBOARD_PING_INTERVAL", "2s")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("WHITEBOARD_REQUIRE_CREATE_CREDENTIAL")
		os.Unsetenv("WHITEBOARD_PING_INTERVAL")
	}()

	c := FromEnv()
	if c.Port != 9999 {
		t.Fatalf("port = %d, want 9999", c.Port)
	}
	if !c.RequireCreateCredential {
		t.Fatalf("expected RequireCreateCredential to be overlaid true")
	}
	if c.PingInterval != 2*time.Second {
		t.Fatalf("ping interval = %v, want 2s", c.PingInterval)
	}
}

func TestFromEnvIgnoresInvalidValues(t *testing.T) {
	os.Setenv("PORT", "not-a-number")
	defer os.Unsetenv("PORT")

	c := FromEnv()
	if c.Port != 5236 {
		t.Fatalf("expected invalid PORT to fall back to default, got %d", c.Port)
	}
}
