// Package errors provides standardized error handling patterns for the Htier hub.
//
// # Overview
//
// The package implements a five-class error taxonomy matched to the failure
// modes of the protocol-handler framework:
//
//   - Connection: transport or auth failure at connect time (retryable)
//   - Poll: transient failure during a scheduled poll (retryable)
//   - Decode: malformed bridge payload (skip the sample, never retry)
//   - Config: invalid or missing configuration (surface synchronously)
//   - Concurrency: store-contention invariant violation (programming error)
//
// Handlers convert Connection and Poll errors into connection-state
// transitions observable by the supervisor and reader; they are never allowed
// to escape as process failures. Decode errors are swallowed at the point of
// decode because one malformed sample must not interrupt an otherwise healthy
// stream. Config errors are returned from Start/SwitchProtocol before any
// acquisition task begins.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Classification-aware wrappers apply the pattern while tagging the class:
//
//	errors.WrapConnection(err, "MqttHandler", "Start", "broker connect")
//	errors.WrapPoll(err, "HttpPollHandler", "poll", "relay fetch")
//	errors.WrapDecode(err, "HttpPollHandler", "poll", "bridge decode")
//	errors.WrapConfig(err, "Supervisor", "SwitchProtocol", "config validation")
//
// # Classification Checks
//
// Retry decisions use Retryable(), which treats Connection and Poll classes
// (plus context deadline expiry) as transient:
//
//	if err := connect(); err != nil && errors.Retryable(err) {
//	    // bounded backoff via pkg/retry
//	}
//
// All error types support errors.Is, errors.As, and wrapping chains, and the
// classification survives further wrapping with fmt.Errorf("%w").
package errors
