// Package htierdemoapp is a multi-protocol data acquisition hub.
//
// The hub runs exactly one acquisition session at a time, selected from
// four strategies: an MQTT subscriber, a fixed-interval poller of an HTTP
// key-value relay, a direct Modbus TCP register poller, and a video frame
// capturer. Every strategy normalizes what it acquires into messages and
// appends them to a shared in-memory store, which a poll-driven HTTP
// reader drains via snapshots.
//
// Switching protocols is transactional: the old handler is stopped and
// waited for, the store is cleared into a new generation, and only then
// does the new handler start. The reader therefore observes either the
// old stream or a fresh one, never a blend of the two.
package htierdemoapp
