package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/message"
)

// EnvPrefix prefixes all environment overrides.
const EnvPrefix = "HTIER_"

// StoreConfig configures the message store.
type StoreConfig struct {
	Capacity   int    `json:"capacity"`
	PersistDir string `json:"persist_dir,omitempty"`
}

// ServerConfig configures the reader-side HTTP surface.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the listen address. Port 0 asks the kernel for a free port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate implements the config contract.
func (c ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapConfig(
			fmt.Errorf("server port %d out of range", c.Port),
			"ServerConfig", "Validate", "server port")
	}
	return nil
}

// Config is the complete application configuration.
type Config struct {
	Connection ConnectionConfig `json:"connection"`
	Store      StoreConfig      `json:"store"`
	Server     ServerConfig     `json:"server"`
}

// Default returns a config with every protocol section filled with its
// defaults and MQTT selected.
func Default() *Config {
	mqtt := DefaultMQTTConfig()
	httpPoll := DefaultHTTPPollConfig()
	register := DefaultRegisterPollConfig()
	video := DefaultVideoConfig()

	return &Config{
		Connection: ConnectionConfig{
			Protocol: message.ProtocolMQTT,
			MQTT:     &mqtt,
			HTTP:     &httpPoll,
			Register: &register,
			Video:    &video,
		},
		Store:  StoreConfig{Capacity: 100},
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
	}
}

// Load reads a JSON config file over the defaults, then applies
// environment overrides and validates the result. An empty path loads
// defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapConfig(err, "Config", "Load", "config file read")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapConfig(err, "Config", "Load", "config file parse")
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the selected connection plus store and server settings.
func (c *Config) Validate() error {
	if err := c.Connection.Validate(); err != nil {
		return err
	}
	if c.Store.Capacity < 1 {
		return errors.WrapConfig(
			errors.ErrInvalidConfig,
			"Config", "Validate", "store capacity")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.WrapConfig(
			errors.ErrInvalidConfig,
			"Config", "Validate", "server port")
	}
	return nil
}

// applyEnvOverrides lets deployment environments adjust the common knobs
// without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "PROTOCOL"); v != "" {
		cfg.Connection.Protocol = message.Protocol(v)
	}
	if cfg.Connection.MQTT != nil {
		setString(&cfg.Connection.MQTT.BrokerHost, "MQTT_BROKER_HOST")
		setInt(&cfg.Connection.MQTT.BrokerPort, "MQTT_BROKER_PORT")
		setString(&cfg.Connection.MQTT.ClientID, "MQTT_CLIENT_ID")
		setString(&cfg.Connection.MQTT.Username, "MQTT_USERNAME")
		setString(&cfg.Connection.MQTT.Password, "MQTT_PASSWORD")
		setString(&cfg.Connection.MQTT.Topic, "MQTT_TOPIC")
	}
	if cfg.Connection.HTTP != nil {
		setString(&cfg.Connection.HTTP.Host, "RELAY_HOST")
		setInt(&cfg.Connection.HTTP.Port, "RELAY_PORT")
		setString(&cfg.Connection.HTTP.Key, "RELAY_KEY")
		setInt(&cfg.Connection.HTTP.PollIntervalSec, "RELAY_POLL_INTERVAL")
	}
	if cfg.Connection.Register != nil {
		setString(&cfg.Connection.Register.Host, "MODBUS_HOST")
		setInt(&cfg.Connection.Register.Port, "MODBUS_PORT")
	}
	if cfg.Connection.Video != nil {
		setString(&cfg.Connection.Video.Source, "VIDEO_SOURCE")
		if v := os.Getenv(EnvPrefix + "VIDEO_KIND"); v != "" {
			cfg.Connection.Video.Kind = StreamKind(v)
		}
	}
	setInt(&cfg.Store.Capacity, "STORE_CAPACITY")
	setString(&cfg.Store.PersistDir, "STORE_DIR")
	setInt(&cfg.Server.Port, "SERVER_PORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
