package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/message"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, message.ProtocolMQTT, cfg.Connection.Protocol)
	assert.Equal(t, "broker.emqx.io", cfg.Connection.MQTT.BrokerHost)
	assert.Equal(t, "tcp://broker.emqx.io:1883", cfg.Connection.MQTT.BrokerURL())
	assert.Equal(t, "modtopic", cfg.Connection.MQTT.Topic)
	assert.Equal(t, "python_message", cfg.Connection.HTTP.Key)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Connection.HTTP.BaseURL())
	assert.Equal(t, "127.0.0.1:12345", cfg.Connection.Register.Address())
	assert.Equal(t, uint16(10), cfg.Connection.Register.RegisterCount)
	assert.Equal(t, 30, cfg.Connection.Video.FrameEvery)
	assert.Equal(t, 100, cfg.Store.Capacity)
}

func TestConnectionConfig_Validate(t *testing.T) {
	mqtt := DefaultMQTTConfig()
	httpPoll := DefaultHTTPPollConfig()

	tests := []struct {
		name    string
		cfg     ConnectionConfig
		wantErr bool
	}{
		{"valid mqtt", ConnectionConfig{Protocol: message.ProtocolMQTT, MQTT: &mqtt}, false},
		{"valid http", ConnectionConfig{Protocol: message.ProtocolHTTP, HTTP: &httpPoll}, false},
		{"missing section", ConnectionConfig{Protocol: message.ProtocolHTTP}, true},
		{"unknown protocol", ConnectionConfig{Protocol: "smoke-signal"}, true},
		{"wrong section for protocol", ConnectionConfig{Protocol: message.ProtocolVideo, MQTT: &mqtt}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.cfg.Validate()
			if test.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsConfig(err), "validation failures carry the config class")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSectionValidation(t *testing.T) {
	mqtt := DefaultMQTTConfig()
	mqtt.BrokerPort = 0
	assert.Error(t, mqtt.Validate())

	httpPoll := DefaultHTTPPollConfig()
	httpPoll.PollIntervalSec = 0
	assert.Error(t, httpPoll.Validate())

	register := DefaultRegisterPollConfig()
	register.RegisterCount = 200
	assert.Error(t, register.Validate(), "reads beyond the Modbus limit must be rejected")

	video := DefaultVideoConfig()
	video.Kind = "smoke"
	assert.Error(t, video.Validate())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hub.json")
	body := `{
		"connection": {
			"protocol": "http",
			"http": {"host": "relay.internal", "port": 9001, "key": "python_message", "poll_interval_seconds": 3, "timeout_seconds": 5}
		},
		"store": {"capacity": 50}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv(EnvPrefix+"RELAY_PORT", "9002")
	t.Setenv(EnvPrefix+"STORE_CAPACITY", "25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, message.ProtocolHTTP, cfg.Connection.Protocol)
	assert.Equal(t, "relay.internal", cfg.Connection.HTTP.Host)
	assert.Equal(t, 9002, cfg.Connection.HTTP.Port, "env beats file")
	assert.Equal(t, 25, cfg.Store.Capacity)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.json")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestLoad_InvalidResultRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"connection": {"protocol": "mqtt", "mqtt": {"broker_host": ""}}}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}
