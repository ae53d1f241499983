package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// chdirTemp runs the test in an empty directory so no stray .env is loaded.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PEERCALL_NAME", "PEERCALL_RELAY_URL", "PEERCALL_LISTEN", "PEERCALL_STUN",
		"PEERCALL_ICE_FILE", "PEERCALL_ICE_URL", "PEERCALL_GATHER_TIMEOUT", "PEERCALL_PING_INTERVAL", "PEERCALL_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RelayURL != DefaultRelayURL || cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("relay %q listen %q", cfg.RelayURL, cfg.ListenAddr)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != DefaultSTUN {
		t.Errorf("ICE servers = %+v", cfg.ICEServers)
	}
	if cfg.GatherTimeout != DefaultGatherTimeout || cfg.PingInterval != DefaultPingInterval {
		t.Errorf("timeouts = %v/%v", cfg.GatherTimeout, cfg.PingInterval)
	}
	if cfg.LogLevel != zerolog.InfoLevel {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
}

func TestLoad_Environment(t *testing.T) {
	chdirTemp(t)
	clearEnv(t)
	t.Setenv("PEERCALL_NAME", "alice")
	t.Setenv("PEERCALL_RELAY_URL", "wss://relay.example.org/websocket")
	t.Setenv("PEERCALL_STUN", "stun:a.example.org:3478, stun:b.example.org:3478")
	t.Setenv("PEERCALL_GATHER_TIMEOUT", "3s")
	t.Setenv("PEERCALL_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "alice" || cfg.RelayURL != "wss://relay.example.org/websocket" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.ICEServers) != 2 || cfg.ICEServers[1].URLs[0] != "stun:b.example.org:3478" {
		t.Errorf("ICE servers = %+v", cfg.ICEServers)
	}
	if cfg.GatherTimeout != 3*time.Second {
		t.Errorf("gather timeout = %v", cfg.GatherTimeout)
	}
	if cfg.LogLevel != zerolog.DebugLevel {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)
	// An empty value counts as set for godotenv, so unset the name first.
	os.Unsetenv("PEERCALL_NAME")
	t.Setenv("PEERCALL_LISTEN", ":9000")

	env := "PEERCALL_NAME=bob\nPEERCALL_LISTEN=:7000\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PEERCALL_NAME") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "bob" {
		t.Errorf("name = %q, want bob from .env", cfg.Name)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("listen = %q, want :9000 from the environment", cfg.ListenAddr)
	}
}

func TestLoad_ICEFile(t *testing.T) {
	dir := chdirTemp(t)
	clearEnv(t)

	path := filepath.Join(dir, "ice.yaml")
	data := `iceServers:
  - urls: ["stun:stun.example.org:3478"]
  - urls: ["turn:turn.example.org:3478?transport=udp"]
    username: alice
    credential: secret
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PEERCALL_ICE_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ICE servers = %+v", cfg.ICEServers)
	}
	turn := cfg.ICEServers[1]
	if turn.Username != "alice" || turn.Credential != "secret" || turn.URLs[0] != "turn:turn.example.org:3478?transport=udp" {
		t.Errorf("turn server = %+v", turn)
	}
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":  {"PEERCALL_GATHER_TIMEOUT", "soon"},
		"bad level":     {"PEERCALL_LOG_LEVEL", "loud"},
		"bad scheme":    {"PEERCALL_RELAY_URL", "http://localhost:8080/websocket"},
		"missing file":  {"PEERCALL_ICE_FILE", "/nonexistent/ice.yaml"},
		"zero interval": {"PEERCALL_PING_INTERVAL", "0s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			chdirTemp(t)
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Errorf("%s=%s: expected an error", kv[0], kv[1])
			}
		})
	}
}
