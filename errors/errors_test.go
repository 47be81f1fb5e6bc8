package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClass_String(t *testing.T) {
	tests := []struct {
		class    Class
		expected string
	}{
		{ClassConnection, "connection"},
		{ClassPoll, "poll"},
		{ClassDecode, "decode"},
		{ClassConfig, "config"},
		{ClassConcurrency, "concurrency"},
		{Class(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if got := test.class.String(); got != test.expected {
				t.Errorf("expected %s, got %s", test.expected, got)
			}
		})
	}
}

func TestWrap_Format(t *testing.T) {
	base := errors.New("dial tcp: refused")
	err := Wrap(base, "MqttHandler", "Start", "broker connect")
	want := "MqttHandler.Start: broker connect failed: dial tcp: refused"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should match base via errors.Is")
	}
	if Wrap(nil, "C", "M", "a") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestClassifiedWrappers(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class Class
	}{
		{"connection", WrapConnection, ClassConnection},
		{"poll", WrapPoll, ClassPoll},
		{"decode", WrapDecode, ClassDecode},
		{"config", WrapConfig, ClassConfig},
		{"concurrency", WrapConcurrency, ClassConcurrency},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.wrap(base, "Comp", "Method", "action")
			var ce *ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatal("expected a ClassifiedError")
			}
			if ce.Class != test.class {
				t.Errorf("expected class %v, got %v", test.class, ce.Class)
			}
			if !errors.Is(err, base) {
				t.Error("classification must preserve the error chain")
			}
			if !strings.Contains(err.Error(), "Comp.Method: action failed") {
				t.Errorf("unexpected message %q", err.Error())
			}
			if test.wrap(nil, "Comp", "Method", "action") != nil {
				t.Error("wrapping nil should return nil")
			}
		})
	}
}

func TestClassification_SurvivesFurtherWrapping(t *testing.T) {
	err := WrapPoll(errors.New("timeout"), "HttpPollHandler", "poll", "relay fetch")
	outer := fmt.Errorf("loop iteration: %w", err)
	if !IsPoll(outer) {
		t.Error("poll classification lost through fmt.Errorf wrapping")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"connection class", WrapConnection(errors.New("refused"), "C", "M", "a"), true},
		{"poll class", WrapPoll(errors.New("503"), "C", "M", "a"), true},
		{"decode class", WrapDecode(errors.New("bad wire"), "C", "M", "a"), false},
		{"config class", WrapConfig(errors.New("missing host"), "C", "M", "a"), false},
		{"concurrency class", WrapConcurrency(errors.New("torn read"), "C", "M", "a"), false},
		{"config sentinel", ErrInvalidConfig, false},
		{"payload sentinel", ErrInvalidPayload, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"unclassified", errors.New("connection reset by peer"), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Retryable(test.err); got != test.expected {
				t.Errorf("Retryable(%v): expected %v, got %v", test.err, test.expected, got)
			}
		})
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsConnection(ErrConnectionLost) {
		t.Error("ErrConnectionLost should classify as connection")
	}
	if !IsConnection(WrapConnection(errors.New("x"), "C", "M", "a")) {
		t.Error("connection wrapper should classify as connection")
	}
	if !IsDecode(ErrInvalidPayload) {
		t.Error("ErrInvalidPayload should classify as decode")
	}
	if !IsConfig(ErrMissingConfig) {
		t.Error("ErrMissingConfig should classify as config")
	}
	if IsConfig(nil) || IsDecode(nil) || IsConnection(nil) || IsPoll(nil) {
		t.Error("nil must never classify")
	}
}
