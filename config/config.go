// Package config defines the hub's configuration model: one immutable
// connection config per protocol plus store and reader-server settings.
package config

import (
	"fmt"
	"time"

	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/message"
)

// StreamKind selects the video acquisition source.
type StreamKind string

// Supported video source kinds.
const (
	StreamDevice StreamKind = "device"
	StreamMJPEG  StreamKind = "mjpeg"
	StreamRTSP   StreamKind = "rtsp"
)

// MQTTConfig configures the subscribe-driven handler.
type MQTTConfig struct {
	BrokerHost        string `json:"broker_host"`
	BrokerPort        int    `json:"broker_port"`
	ClientID          string `json:"client_id"`
	Username          string `json:"username,omitempty"`
	Password          string `json:"password,omitempty"`
	KeepAliveSeconds  int    `json:"keep_alive_seconds"`
	Topic             string `json:"topic"`
	ConnectTimeoutSec int    `json:"connect_timeout_seconds"`
}

// DefaultMQTTConfig returns the public-broker defaults.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		BrokerHost:        "broker.emqx.io",
		BrokerPort:        1883,
		ClientID:          "htier-hub",
		KeepAliveSeconds:  60,
		Topic:             "modtopic",
		ConnectTimeoutSec: 5,
	}
}

// BrokerURL returns the paho broker URL.
func (c MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.BrokerHost, c.BrokerPort)
}

// KeepAlive returns the keep-alive as a duration.
func (c MQTTConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveSeconds) * time.Second
}

// ConnectTimeout returns the connect timeout as a duration.
func (c MQTTConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// Validate implements the config contract.
func (c MQTTConfig) Validate() error {
	if c.BrokerHost == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "MQTTConfig", "Validate", "broker host")
	}
	if c.BrokerPort < 1 || c.BrokerPort > 65535 {
		return errors.WrapConfig(
			fmt.Errorf("broker port %d out of range", c.BrokerPort),
			"MQTTConfig", "Validate", "broker port")
	}
	if c.ClientID == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "MQTTConfig", "Validate", "client id")
	}
	if c.KeepAliveSeconds < 0 {
		return errors.WrapConfig(
			fmt.Errorf("keep-alive %d must not be negative", c.KeepAliveSeconds),
			"MQTTConfig", "Validate", "keep-alive")
	}
	return nil
}

// HTTPPollConfig configures polling of the external key-value relay.
type HTTPPollConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Key             string `json:"key"`
	PollIntervalSec int    `json:"poll_interval_seconds"`
	TimeoutSec      int    `json:"timeout_seconds"`
}

// DefaultHTTPPollConfig returns the local-relay defaults.
func DefaultHTTPPollConfig() HTTPPollConfig {
	return HTTPPollConfig{
		Host:            "127.0.0.1",
		Port:            8000,
		Key:             "python_message",
		PollIntervalSec: 2,
		TimeoutSec:      5,
	}
}

// BaseURL returns the relay base URL.
func (c HTTPPollConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// PollInterval returns the poll interval as a duration.
func (c HTTPPollConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// Timeout returns the per-request timeout as a duration.
func (c HTTPPollConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Validate implements the config contract.
func (c HTTPPollConfig) Validate() error {
	if c.Host == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "HTTPPollConfig", "Validate", "relay host")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapConfig(
			fmt.Errorf("relay port %d out of range", c.Port),
			"HTTPPollConfig", "Validate", "relay port")
	}
	if c.Key == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "HTTPPollConfig", "Validate", "relay key")
	}
	if c.PollIntervalSec < 1 {
		return errors.WrapConfig(
			fmt.Errorf("poll interval %ds must be at least 1s", c.PollIntervalSec),
			"HTTPPollConfig", "Validate", "poll interval")
	}
	return nil
}

// RegisterPollConfig configures direct industrial register polling.
type RegisterPollConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	UnitID          byte   `json:"unit_id"`
	StartAddress    uint16 `json:"start_address"`
	RegisterCount   uint16 `json:"register_count"`
	PollIntervalSec int    `json:"poll_interval_seconds"`
	TimeoutSec      int    `json:"timeout_seconds"`
}

// DefaultRegisterPollConfig returns the local-device defaults.
func DefaultRegisterPollConfig() RegisterPollConfig {
	return RegisterPollConfig{
		Host:            "127.0.0.1",
		Port:            12345,
		UnitID:          1,
		StartAddress:    0,
		RegisterCount:   10,
		PollIntervalSec: 2,
		TimeoutSec:      5,
	}
}

// Address returns the device TCP address.
func (c RegisterPollConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PollInterval returns the poll interval as a duration.
func (c RegisterPollConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// Timeout returns the per-read timeout as a duration.
func (c RegisterPollConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Validate implements the config contract.
func (c RegisterPollConfig) Validate() error {
	if c.Host == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "RegisterPollConfig", "Validate", "device host")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapConfig(
			fmt.Errorf("device port %d out of range", c.Port),
			"RegisterPollConfig", "Validate", "device port")
	}
	if c.RegisterCount < 1 || c.RegisterCount > 125 {
		return errors.WrapConfig(
			fmt.Errorf("register count %d outside Modbus read limit", c.RegisterCount),
			"RegisterPollConfig", "Validate", "register count")
	}
	if c.PollIntervalSec < 1 {
		return errors.WrapConfig(
			fmt.Errorf("poll interval %ds must be at least 1s", c.PollIntervalSec),
			"RegisterPollConfig", "Validate", "poll interval")
	}
	return nil
}

// VideoConfig configures the frame-driven handler.
type VideoConfig struct {
	Kind       StreamKind `json:"kind"`
	Source     string     `json:"source"`
	FrameEvery int        `json:"frame_every"`
}

// DefaultVideoConfig returns defaults for a local capture device.
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		Kind:       StreamDevice,
		Source:     "0",
		FrameEvery: 30,
	}
}

// Validate implements the config contract.
func (c VideoConfig) Validate() error {
	switch c.Kind {
	case StreamDevice, StreamMJPEG, StreamRTSP:
	default:
		return errors.WrapConfig(
			fmt.Errorf("unknown stream kind %q", c.Kind),
			"VideoConfig", "Validate", "stream kind")
	}
	if c.Source == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "VideoConfig", "Validate", "source")
	}
	if c.FrameEvery < 1 {
		return errors.WrapConfig(
			fmt.Errorf("frame cadence %d must be positive", c.FrameEvery),
			"VideoConfig", "Validate", "frame cadence")
	}
	return nil
}

// ConnectionConfig selects one protocol and carries its parameters. It is
// immutable once a session starts; changing it requires a protocol switch.
type ConnectionConfig struct {
	Protocol message.Protocol    `json:"protocol"`
	MQTT     *MQTTConfig         `json:"mqtt,omitempty"`
	HTTP     *HTTPPollConfig     `json:"http,omitempty"`
	Register *RegisterPollConfig `json:"register,omitempty"`
	Video    *VideoConfig        `json:"video,omitempty"`
}

// Validate checks the protocol tag and the matching section.
func (c ConnectionConfig) Validate() error {
	switch c.Protocol {
	case message.ProtocolMQTT:
		if c.MQTT == nil {
			return errors.WrapConfig(errors.ErrMissingConfig, "ConnectionConfig", "Validate", "mqtt section")
		}
		return c.MQTT.Validate()
	case message.ProtocolHTTP:
		if c.HTTP == nil {
			return errors.WrapConfig(errors.ErrMissingConfig, "ConnectionConfig", "Validate", "http section")
		}
		return c.HTTP.Validate()
	case message.ProtocolRegister:
		if c.Register == nil {
			return errors.WrapConfig(errors.ErrMissingConfig, "ConnectionConfig", "Validate", "register section")
		}
		return c.Register.Validate()
	case message.ProtocolVideo:
		if c.Video == nil {
			return errors.WrapConfig(errors.ErrMissingConfig, "ConnectionConfig", "Validate", "video section")
		}
		return c.Video.Validate()
	default:
		return errors.WrapConfig(
			fmt.Errorf("unknown protocol %q", c.Protocol),
			"ConnectionConfig", "Validate", "protocol tag")
	}
}
