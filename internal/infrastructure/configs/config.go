package configs

import (
	"fmt"
	"time"

	"github.com/curalink/portal-core/internal/infrastructure/env"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Socket SocketConfig `koanf:"socket"`
	Queue  QueueConfig  `koanf:"queue"`
	API    APIConfig    `koanf:"api"`
	HTTP   HTTPConfig   `koanf:"http"`
}

// SocketConfig tunes the realtime connection. Reconnection never gives up;
// only the delays are configurable.
type SocketConfig struct {
	URL              string        `koanf:"url"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	ReconnectInitial time.Duration `koanf:"reconnect_initial"`
	ReconnectMax     time.Duration `koanf:"reconnect_max"`
	JoinWait         time.Duration `koanf:"join_wait"`
}

type QueueConfig struct {
	AckTimeout time.Duration `koanf:"ack_timeout"`
	RetryBase  time.Duration `koanf:"retry_base"`
	RetryMax   time.Duration `koanf:"retry_max"`
	MaxRetries int           `koanf:"max_retries"`
	StaleAfter time.Duration `koanf:"stale_after"`
	SweepEvery time.Duration `koanf:"sweep_every"`
}

// APIConfig points at the clinic CRUD API.
type APIConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	Token   string        `koanf:"token"`
}

// HTTPConfig is only used by the dev server binary.
type HTTPConfig struct {
	Host         string        `koanf:"host"`
	Port         uint16        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load from YAML file if it exists
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// Only return error if file was explicitly provided but failed to load
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply defaults and environment variable overrides
	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	// Socket defaults
	setDefault(k, "socket.url", "ws://localhost:8080/ws")
	setDefault(k, "socket.handshake_timeout", 10*time.Second)
	setDefault(k, "socket.reconnect_initial", 100*time.Millisecond)
	setDefault(k, "socket.reconnect_max", 3*time.Second)
	setDefault(k, "socket.join_wait", time.Second)

	// Queue defaults
	setDefault(k, "queue.ack_timeout", 5*time.Second)
	setDefault(k, "queue.retry_base", 500*time.Millisecond)
	setDefault(k, "queue.retry_max", 8*time.Second)
	setDefault(k, "queue.max_retries", 5)
	setDefault(k, "queue.stale_after", 30*time.Second)
	setDefault(k, "queue.sweep_every", 5*time.Second)

	// CRUD API defaults
	setDefault(k, "api.base_url", "http://localhost:8080")
	setDefault(k, "api.timeout", 15*time.Second)

	// HTTP defaults (dev server)
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 8080)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
}

func applyEnvOverrides(k *koanf.Koanf) {
	if u := env.GetString("SOCKET_URL", ""); u != "" {
		k.Set("socket.url", u)
	}
	if d := env.GetDuration("SOCKET_RECONNECT_INITIAL", 0); d > 0 {
		k.Set("socket.reconnect_initial", d)
	}
	if d := env.GetDuration("SOCKET_RECONNECT_MAX", 0); d > 0 {
		k.Set("socket.reconnect_max", d)
	}

	if d := env.GetDuration("QUEUE_ACK_TIMEOUT", 0); d > 0 {
		k.Set("queue.ack_timeout", d)
	}
	if n := env.GetInt("QUEUE_MAX_RETRIES", 0); n > 0 {
		k.Set("queue.max_retries", n)
	}
	if d := env.GetDuration("QUEUE_STALE_AFTER", 0); d > 0 {
		k.Set("queue.stale_after", d)
	}

	if u := env.GetString("API_BASE_URL", ""); u != "" {
		k.Set("api.base_url", u)
	}
	if t := env.GetString("API_TOKEN", ""); t != "" {
		k.Set("api.token", t)
	}

	if host := env.GetString("HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := env.GetInt("HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
}

func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}
