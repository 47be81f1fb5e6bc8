package testutil

import (
	"fmt"
	"net"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Broker wraps an embedded MQTT broker listening on a loopback port.
type Broker struct {
	Server *mochi.Server
	Host   string
	Port   int
}

// FreePort asks the kernel for an unused TCP port.
func FreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

// StartBroker runs an embedded mochi-mqtt broker that allows all clients,
// registered for cleanup with t. The inline client is enabled so tests can
// publish without a separate connection.
func StartBroker(t *testing.T) *Broker {
	t.Helper()

	port := FreePort(t)
	server := mochi.New(&mochi.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("add auth hook: %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "test-tcp",
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("add listener: %v", err)
	}

	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() {
		// mochi's Close is not idempotent; tests may have closed the
		// broker themselves, so swallow the double-close panic.
		defer func() { _ = recover() }()
		_ = server.Close()
	})

	// Give the listener a moment to come up before clients dial in.
	time.Sleep(100 * time.Millisecond)

	return &Broker{Server: server, Host: "127.0.0.1", Port: port}
}

// Publish sends a message through the broker's inline client.
func (b *Broker) Publish(t *testing.T, topic string, payload []byte) {
	t.Helper()
	if err := b.Server.Publish(topic, payload, false, 0); err != nil {
		t.Fatalf("inline publish: %v", err)
	}
}
