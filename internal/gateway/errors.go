package gateway

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/jamesprial/biteme-gateway/internal/auth"
	"github.com/jamesprial/biteme-gateway/internal/proxy"
	"github.com/jamesprial/biteme-gateway/internal/utils"
)

// Kind names a client-visible failure. It is sent as the envelope "error".
type Kind string

const (
	KindNoTokenProvided       Kind = "NoTokenProvided"
	KindInvalidOrExpiredToken Kind = "InvalidOrExpiredToken"
	KindRateLimitExceeded     Kind = "RateLimitExceeded"
	KindServiceDown           Kind = "ServiceDown"
	KindServiceTimeout        Kind = "ServiceTimeout"
	KindProxyError            Kind = "ProxyError"
	KindPayloadTooLarge       Kind = "PayloadTooLarge"
	KindRouteNotFound         Kind = "RouteNotFound"
	KindInternalGatewayError  Kind = "InternalGatewayError"
)

// Error is a failure answered by the gateway itself.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Write sends e as the standard failure envelope.
func (e *Error) Write(w http.ResponseWriter) {
	utils.WriteError(w, e.Status, string(e.Kind), e.Message, "")
}

var errRouteNotFound = &Error{Kind: KindRouteNotFound, Status: http.StatusNotFound, Message: "Route not found"}

func rateLimitError(message string) *Error {
	if message == "" {
		message = "Too many requests, please try again later"
	}
	return &Error{Kind: KindRateLimitExceeded, Status: http.StatusTooManyRequests, Message: message}
}

// authError maps an authentication failure to its 401.
func authError(err error) *Error {
	if errors.Is(err, auth.ErrNoTokenProvided) {
		return &Error{Kind: KindNoTokenProvided, Status: http.StatusUnauthorized, Message: auth.MessageNoToken}
	}
	return &Error{Kind: KindInvalidOrExpiredToken, Status: http.StatusUnauthorized, Message: auth.MessageInvalidToken}
}

// forwardError maps a classified proxy failure. label names the backend in
// messages, e.g. "Meals". ClientClosed has no mapping since nobody is
// listening for the answer.
func forwardError(fe *proxy.ForwardError, label string) *Error {
	switch fe.Kind {
	case proxy.KindServiceDown:
		return &Error{Kind: KindServiceDown, Status: http.StatusServiceUnavailable, Message: label + " service unavailable"}
	case proxy.KindServiceTimeout:
		return &Error{Kind: KindServiceTimeout, Status: http.StatusGatewayTimeout, Message: label + " service timed out"}
	case proxy.KindPayloadTooLarge:
		return &Error{Kind: KindPayloadTooLarge, Status: http.StatusRequestEntityTooLarge, Message: "Request body too large"}
	case proxy.KindClientClosed:
		return nil
	}
	return &Error{Kind: KindProxyError, Status: http.StatusBadGateway, Message: label + " service error"}
}

// routeLabel derives the display name of a route from the last segment of
// its prefix: /api/meals/nutrition -> "Nutrition", /api/ai -> "AI".
func routeLabel(route *proxy.Route) string {
	name := route.Service
	if i := strings.LastIndexByte(strings.TrimRight(route.Prefix, "/"), '/'); i >= 0 {
		if seg := strings.TrimRight(route.Prefix, "/")[i+1:]; seg != "" {
			name = seg
		}
	}
	if name == "" {
		return "Backend"
	}
	if utf8.RuneCountInString(name) <= 2 {
		return strings.ToUpper(name)
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
