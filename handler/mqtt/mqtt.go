// Package mqtt implements the subscribe-driven acquisition handler. Data
// arrives pushed by the broker; no polling interval applies.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/htier-pubsub/HtierDemoApp/config"
	"github.com/htier-pubsub/HtierDemoApp/errors"
	"github.com/htier-pubsub/HtierDemoApp/handler"
	"github.com/htier-pubsub/HtierDemoApp/message"
	"github.com/htier-pubsub/HtierDemoApp/pkg/retry"
	"github.com/htier-pubsub/HtierDemoApp/store"
)

// disconnectQuiesce lets paho flush in-flight work on disconnect.
const disconnectQuiesce = 250 * time.Millisecond

// Deps holds runtime dependencies for the MQTT handler.
type Deps struct {
	Config config.MQTTConfig
	Store  *store.Store
	Logger *slog.Logger
}

// Handler subscribes to broker topics and appends each inbound message to
// the store as raw text.
type Handler struct {
	config config.MQTTConfig
	store  *store.Store
	logger *slog.Logger
	state  *handler.StateTracker

	mu      sync.Mutex
	client  paho.Client
	topics  map[string]bool
	running atomic.Bool

	received atomic.Int64
}

var _ handler.Handler = (*Handler)(nil)

// New creates an MQTT handler. Configuration problems surface here,
// before any connection attempt.
func New(deps Deps) (*Handler, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "MqttHandler", "New", "store dependency")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "mqtt-handler", "broker", deps.Config.BrokerURL())
	}

	return &Handler{
		config: deps.Config,
		store:  deps.Store,
		logger: logger,
		state:  handler.NewStateTracker(logger),
		topics: make(map[string]bool),
	}, nil
}

// Protocol implements handler.Handler.
func (h *Handler) Protocol() message.Protocol { return message.ProtocolMQTT }

// Status implements handler.Handler.
func (h *Handler) Status() handler.Status { return h.state.Get() }

// Start connects to the broker with bounded attempts. On success the
// handler is Connected; subscribing is a separate step. A lost connection
// transitions to Error and waits for an explicit re-start.
func (h *Handler) Start(ctx context.Context) error {
	if h.running.Load() {
		return errors.WrapConfig(errors.ErrAlreadyStarted, "MqttHandler", "Start", "lifecycle check")
	}

	h.state.Set(handler.StateConnecting)

	opts := paho.NewClientOptions().
		AddBroker(h.config.BrokerURL()).
		SetClientID(h.config.ClientID).
		SetKeepAlive(h.config.KeepAlive()).
		SetConnectTimeout(h.config.ConnectTimeout()).
		SetAutoReconnect(false).
		SetConnectionLostHandler(h.onConnectionLost)
	if h.config.Username != "" {
		opts.SetUsername(h.config.Username)
		opts.SetPassword(h.config.Password)
	}

	client := paho.NewClient(opts)

	connect := func() error {
		token := client.Connect()
		if !token.WaitTimeout(h.config.ConnectTimeout()) {
			return errors.WrapConnection(errors.ErrConnectionTimeout, "MqttHandler", "Start", "broker connect")
		}
		if err := token.Error(); err != nil {
			return errors.WrapConnection(err, "MqttHandler", "Start", "broker connect")
		}
		return nil
	}

	if err := retry.Do(ctx, retry.Connect(), connect); err != nil {
		h.state.SetError(fmt.Sprintf("broker connect failed: %v", err))
		return err
	}

	h.mu.Lock()
	h.client = client
	h.mu.Unlock()
	h.running.Store(true)
	h.state.Set(handler.StateConnected)
	h.logger.Info("connected to broker", "client_id", h.config.ClientID)
	return nil
}

// Subscribe registers a topic with the broker. The first successful
// subscription moves the handler from Connected to Subscribed.
func (h *Handler) Subscribe(topic string) error {
	if topic == "" {
		topic = h.config.Topic
	}

	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil || !h.running.Load() {
		return errors.WrapConnection(errors.ErrNotStarted, "MqttHandler", "Subscribe", "lifecycle check")
	}

	token := client.Subscribe(topic, 0, h.onMessage)
	if !token.WaitTimeout(h.config.ConnectTimeout()) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = errors.ErrConnectionTimeout
		}
		return errors.WrapConnection(err, "MqttHandler", "Subscribe", "topic subscribe")
	}

	h.mu.Lock()
	first := len(h.topics) == 0
	h.topics[topic] = true
	h.mu.Unlock()

	if first {
		if err := h.state.SetSubscribed(); err != nil {
			return errors.WrapConcurrency(err, "MqttHandler", "Subscribe", "state transition")
		}
	}
	h.logger.Info("subscribed", "topic", topic)
	return nil
}

// Unsubscribe removes a topic. Dropping the last topic returns the
// handler to Connected.
func (h *Handler) Unsubscribe(topic string) error {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil || !h.running.Load() {
		return errors.WrapConnection(errors.ErrNotStarted, "MqttHandler", "Unsubscribe", "lifecycle check")
	}

	token := client.Unsubscribe(topic)
	if !token.WaitTimeout(h.config.ConnectTimeout()) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = errors.ErrConnectionTimeout
		}
		return errors.WrapConnection(err, "MqttHandler", "Unsubscribe", "topic unsubscribe")
	}

	h.mu.Lock()
	delete(h.topics, topic)
	empty := len(h.topics) == 0
	h.mu.Unlock()

	if empty && h.state.Get().State == handler.StateSubscribed {
		h.state.Set(handler.StateConnected)
	}
	h.logger.Info("unsubscribed", "topic", topic)
	return nil
}

// Publish sends a payload to the configured topic. Used for the hub's
// outbound test message.
func (h *Handler) Publish(payload string) error {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil || !h.running.Load() {
		return errors.WrapConnection(errors.ErrNotStarted, "MqttHandler", "Publish", "lifecycle check")
	}

	token := client.Publish(h.config.Topic, 0, false, payload)
	if !token.WaitTimeout(h.config.ConnectTimeout()) || token.Error() != nil {
		err := token.Error()
		if err == nil {
			err = errors.ErrConnectionTimeout
		}
		return errors.WrapConnection(err, "MqttHandler", "Publish", "message publish")
	}
	return nil
}

// Stop unsubscribes, disconnects, and returns to Disconnected
// unconditionally.
func (h *Handler) Stop(timeout time.Duration) error {
	if !h.running.Swap(false) {
		h.state.Set(handler.StateDisconnected)
		return nil
	}

	h.mu.Lock()
	client := h.client
	h.client = nil
	topics := make([]string, 0, len(h.topics))
	for topic := range h.topics {
		topics = append(topics, topic)
	}
	h.topics = make(map[string]bool)
	h.mu.Unlock()

	if client != nil {
		// timeout bounds the whole shutdown, not each topic.
		deadline := time.Now().Add(timeout)
		for _, topic := range topics {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				break
			}
			token := client.Unsubscribe(topic)
			token.WaitTimeout(remaining)
		}
		client.Disconnect(uint(disconnectQuiesce.Milliseconds()))
	}

	h.state.Set(handler.StateDisconnected)
	h.logger.Info("disconnected from broker", "messages_received", h.received.Load())
	return nil
}

// Received reports how many broker messages have been appended.
func (h *Handler) Received() int64 { return h.received.Load() }

// onMessage appends each inbound broker message as raw text.
func (h *Handler) onMessage(_ paho.Client, m paho.Message) {
	msg := message.New(
		message.ProtocolMQTT,
		message.TextPayload{Text: string(m.Payload())},
		message.WithSource(m.Topic()),
	)
	if _, err := h.store.Append(msg); err != nil {
		h.logger.Error("store append failed", "topic", m.Topic(), "error", err)
		return
	}
	h.received.Add(1)
}

// onConnectionLost reifies broker disconnects into the Error state. The
// caller must re-issue Start to reconnect.
func (h *Handler) onConnectionLost(_ paho.Client, err error) {
	h.running.Store(false)
	h.state.SetError(fmt.Sprintf("connection lost: %v", err))
}
