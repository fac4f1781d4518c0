package provider

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"testing"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: fmt.Errorf("send: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "transient provider error", err: &ProviderError{Message: "busy", Transient: true}, want: true},
		{name: "permanent provider error", err: &ProviderError{Message: "rejected"}, want: false},
		{name: "smtp 421", err: &textproto.Error{Code: 421, Msg: "try later"}, want: true},
		{name: "smtp 554", err: &textproto.Error{Code: 554, Msg: "rejected"}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFailureReason(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: "none"},
		{name: "timeout", err: context.DeadlineExceeded, want: "timeout"},
		{name: "circuit open", err: &ProviderError{Transient: true, Cause: ErrCircuitOpen}, want: "circuit_open"},
		{name: "transient", err: &ProviderError{Transient: true}, want: "transient"},
		{name: "permanent", err: errors.New("boom"), want: "permanent"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FailureReason(tc.err); got != tc.want {
				t.Fatalf("FailureReason() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProviderErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ProviderError{StatusCode: 503, Message: "unavailable", Cause: errors.New("upstream")}
	want := "mail provider error: status=503: unavailable: upstream"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	var nilErr *ProviderError
	if got := nilErr.Error(); got != "<nil>" {
		t.Fatalf("nil Error() = %q", got)
	}
}
