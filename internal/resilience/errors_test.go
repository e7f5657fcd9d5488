package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"syscall"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
)

func apiError(status int) error {
	return &sdk.Error{StatusCode: status}
}

func TestIsTransient_AnthropicStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{429, true}, // rate limited
		{529, true}, // overloaded
		{500, true},
		{503, true},
		{400, false}, // invalid request, retrying cannot help
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		if got := IsTransient(apiError(tt.status)); got != tt.want {
			t.Errorf("status %d: IsTransient = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsTransient_WrappedAPIError(t *testing.T) {
	// The analyzer sees SDK errors through eris wraps.
	err := eris.Wrap(apiError(529), "anthropic: create message")
	if !IsTransient(err) {
		t.Error("expected wrapped overloaded error to be transient")
	}
}

func TestIsTransient_FTPReplies(t *testing.T) {
	// 4yz is a transient negative completion, 5yz is permanent.
	busy := &textproto.Error{Code: 450, Msg: "file busy"}
	if !IsTransient(eris.Wrap(busy, "docstore: ftp retr")) {
		t.Error("expected 450 reply to be transient")
	}
	missing := &textproto.Error{Code: 550, Msg: "no such file"}
	if IsTransient(missing) {
		t.Error("550 reply should not be transient")
	}
}

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
	wrapped := fmt.Errorf("api call failed: %w", err)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NetworkErrors(t *testing.T) {
	timeout := &net.DNSError{Err: "lookup timed out", IsTimeout: true}
	if !IsTransient(timeout) {
		t.Error("expected network timeout to be transient")
	}
	if !IsTransient(syscall.ECONNRESET) {
		t.Error("expected connection reset to be transient")
	}
	if !IsTransient(syscall.ECONNREFUSED) {
		t.Error("expected connection refused to be transient")
	}
}

func TestIsTransient_PermanentErrors(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
	if IsTransient(errors.New("unparseable document")) {
		t.Error("plain errors should not be transient")
	}
	if IsTransient(context.Canceled) {
		t.Error("cancellation should not be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, status := range []int{408, 429, 500, 502, 503, 504, 529} {
		if !IsTransientHTTPStatus(status) {
			t.Errorf("status %d should be transient", status)
		}
	}
	for _, status := range []int{200, 201, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(status) {
			t.Errorf("status %d should not be transient", status)
		}
	}
}
