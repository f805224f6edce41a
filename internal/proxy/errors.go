package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies a forwarding failure.
type Kind string

const (
	KindServiceDown    Kind = "ServiceDown"
	KindServiceTimeout Kind = "ServiceTimeout"
	KindProxyError     Kind = "ProxyError"

	// KindPayloadTooLarge means the streamed request body crossed the size limit.
	KindPayloadTooLarge Kind = "PayloadTooLarge"

	// KindClientClosed means the caller went away; nothing can be written.
	KindClientClosed Kind = "ClientClosed"
)

var (
	ErrServiceDown     = errors.New("service unavailable")
	ErrServiceTimeout  = errors.New("service timed out")
	ErrProxyFailed     = errors.New("proxy error")
	ErrClientClosed    = errors.New("client closed request")
	ErrPayloadTooLarge = errors.New("request body too large")
)

// ForwardError is the classified result of a failed forward.
type ForwardError struct {
	Kind    Kind
	Service string
	Err     error
}

func (e *ForwardError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Service, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *ForwardError) Is(target error) bool {
	switch e.Kind {
	case KindServiceDown:
		return target == ErrServiceDown
	case KindServiceTimeout:
		return target == ErrServiceTimeout
	case KindProxyError:
		return target == ErrProxyFailed
	case KindClientClosed:
		return target == ErrClientClosed
	case KindPayloadTooLarge:
		return target == ErrPayloadTooLarge
	}
	return false
}

// Unavailable is the fast-fail result for a service marked unhealthy.
func Unavailable(service string) *ForwardError {
	return &ForwardError{Kind: KindServiceDown, Service: service}
}

// Classify maps a transport error to a Kind. clientCtx is the inbound request
// context; its cancellation takes precedence over everything else.
func Classify(service string, err error, clientCtx context.Context) *ForwardError {
	kind := KindProxyError

	var netErr net.Error
	var maxErr *http.MaxBytesError
	switch {
	case clientCtx != nil && errors.Is(clientCtx.Err(), context.Canceled):
		kind = KindClientClosed
	case errors.As(err, &maxErr):
		kind = KindPayloadTooLarge
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindServiceDown
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindServiceTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindServiceTimeout
	}

	return &ForwardError{Kind: kind, Service: service, Err: err}
}
