package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		err      error
		ctx      context.Context
		kind     Kind
		sentinel error
	}{
		{"connection refused", refused, context.Background(), KindServiceDown, ErrServiceDown},
		{"wrapped refused", fmt.Errorf("proxy: %w", refused), context.Background(), KindServiceDown, ErrServiceDown},
		{"deadline", context.DeadlineExceeded, context.Background(), KindServiceTimeout, ErrServiceTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, context.Background(), KindServiceTimeout, ErrServiceTimeout},
		{"reset", errors.New("connection reset by peer"), context.Background(), KindProxyError, ErrProxyFailed},
		{"client gone", context.Canceled, cancelled, KindClientClosed, ErrClientClosed},
		{"nil ctx", errors.New("x"), nil, KindProxyError, ErrProxyFailed},
		{"body limit", fmt.Errorf("write body: %w", &http.MaxBytesError{Limit: 10}), context.Background(), KindPayloadTooLarge, ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Classify("meals", tt.err, tt.ctx)
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, "meals", fe.Service)
			assert.ErrorIs(t, fe, tt.sentinel)
			assert.ErrorIs(t, fe, tt.err)
		})
	}
}

func TestUnavailable(t *testing.T) {
	err := Unavailable("meals")
	assert.ErrorIs(t, err, ErrServiceDown)
	assert.NotErrorIs(t, err, ErrServiceTimeout)
	assert.Equal(t, "meals: ServiceDown", err.Error())
}
