package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"peercall/internal/domain"
)

const (
	DefaultRelayURL      = "ws://localhost:8080/websocket"
	DefaultListenAddr    = ":8080"
	DefaultSTUN          = "stun:stun.l.google.com:19302"
	DefaultGatherTimeout = 15 * time.Second
	DefaultPingInterval  = 30 * time.Second
	DefaultLogLevel      = "info"
)

// Config holds the settings shared by the client and the relay.
type Config struct {
	// Name is the login name; empty means ask at startup.
	Name          string
	RelayURL      string
	ListenAddr    string
	ICEServers    []domain.ICEServer
	// ICEURL, when set, is fetched at startup and replaces ICEServers.
	ICEURL        string
	GatherTimeout time.Duration
	PingInterval  time.Duration
	LogLevel      zerolog.Level
}

// iceFile is the layout of PEERCALL_ICE_FILE.
type iceFile struct {
	ICEServers []domain.ICEServer `yaml:"iceServers"`
}

// Load reads configuration from a .env file (if present) and environment variables.
// Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	cfg := &Config{
		Name:       os.Getenv("PEERCALL_NAME"),
		RelayURL:   getenv("PEERCALL_RELAY_URL", DefaultRelayURL),
		ListenAddr: getenv("PEERCALL_LISTEN", DefaultListenAddr),
		ICEServers: parseSTUN(getenv("PEERCALL_STUN", DefaultSTUN)),
		ICEURL:     os.Getenv("PEERCALL_ICE_URL"),
	}

	var err error
	if cfg.GatherTimeout, err = durationEnv("PEERCALL_GATHER_TIMEOUT", DefaultGatherTimeout); err != nil {
		return nil, err
	}
	if cfg.PingInterval, err = durationEnv("PEERCALL_PING_INTERVAL", DefaultPingInterval); err != nil {
		return nil, err
	}
	if err := cfg.SetLogLevel(getenv("PEERCALL_LOG_LEVEL", DefaultLogLevel)); err != nil {
		return nil, err
	}
	if path := os.Getenv("PEERCALL_ICE_FILE"); path != "" {
		if err := cfg.LoadICEFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadICEFile replaces the ICE servers with those listed in a YAML file.
func (c *Config) LoadICEFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read ICE file: %w", err)
	}
	var f iceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse ICE file %s: %w", path, err)
	}
	for i, s := range f.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ICE file %s: server %d has no urls", path, i)
		}
	}
	c.ICEServers = f.ICEServers
	return nil
}

// SetLogLevel parses a zerolog level name.
func (c *Config) SetLogLevel(level string) error {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("PEERCALL_LOG_LEVEL: %w", err)
	}
	c.LogLevel = l
	return nil
}

// Validate checks values that flags may have overridden.
func (c *Config) Validate() error {
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return fmt.Errorf("relay URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay URL %q: scheme must be ws or wss", c.RelayURL)
	}
	if c.GatherTimeout <= 0 {
		return fmt.Errorf("gather timeout must be positive")
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// parseSTUN turns a comma separated URL list into one ICE server each.
func parseSTUN(list string) []domain.ICEServer {
	var servers []domain.ICEServer
	for _, u := range strings.Split(list, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		servers = append(servers, domain.ICEServer{URLs: []string{u}})
	}
	return servers
}
