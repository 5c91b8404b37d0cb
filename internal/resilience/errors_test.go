package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("invalid expression"), false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped explicit", fmt.Errorf("compute: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"eris wrapped", eris.Wrap(NewTransientError(errors.New("busy"), 503), "earthengine: compute"), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"pattern", errors.New("read tcp 10.0.0.1:443: i/o timeout"), true},
		{"pattern case", errors.New("Connection Reset By Peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Message(t *testing.T) {
	assert.Equal(t, "transient (429): slow down", NewTransientError(errors.New("slow down"), 429).Error())
	assert.Equal(t, "eof", NewTransientError(errors.New("eof"), 0).Error())

	inner := errors.New("inner")
	assert.ErrorIs(t, NewTransientError(inner, 500), inner)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 501} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
