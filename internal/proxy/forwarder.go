package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
)

// Headers carrying the verified caller to backends. Client supplied copies
// are always removed.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Forwarder proxies a request to one backend and reports failures as a
// ForwardError instead of writing a response.
type Forwarder struct {
	transport http.RoundTripper
	logger    interfaces.Logger
}

// NewForwarder creates a forwarder. A nil transport uses a pooled clone of
// http.DefaultTransport.
func NewForwarder(transport http.RoundTripper, logger interfaces.Logger) *Forwarder {
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConnsPerHost = 100
		t.IdleConnTimeout = 90 * time.Second
		transport = t
	}
	return &Forwarder{
		transport: transport,
		logger:    logger,
	}
}

// Forward sends r to baseURL with the route's path rewrite and timeout. The
// backend response is streamed back unchanged. On failure nothing has been
// written to w unless the response was already in flight.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, route *Route, baseURL string, id *interfaces.Identity) error {
	target, err := url.Parse(baseURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return &ForwardError{Kind: KindProxyError, Service: route.Service, Err: err}
	}

	ctx := r.Context()
	if route.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, route.Timeout)
		defer cancel()
	}

	upstreamRaw := route.Rewrite.Apply(r.URL.EscapedPath())
	upstreamPath, err := url.PathUnescape(upstreamRaw)
	if err != nil {
		upstreamPath = route.Rewrite.Apply(r.URL.Path)
		upstreamRaw = ""
	}

	var proxyErr error
	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Path = upstreamPath
			pr.Out.URL.RawPath = upstreamRaw
			pr.SetURL(target)
			pr.SetXForwarded()

			pr.Out.Header.Del(HeaderUserID)
			pr.Out.Header.Del(HeaderUserRole)
			if id != nil {
				pr.Out.Header.Set(HeaderUserID, id.SubjectID)
				pr.Out.Header.Set(HeaderUserRole, string(id.Role))
			}
		},
		Transport: f.transport,
		// Backend headers replace any the gateway middleware already set.
		ModifyResponse: func(resp *http.Response) error {
			for k := range resp.Header {
				w.Header().Del(k)
			}
			return nil
		},
		ErrorHandler: func(_ http.ResponseWriter, _ *http.Request, err error) {
			proxyErr = err
		},
	}

	if f.logger != nil {
		f.logger.Debug("Proxying request", map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"upstream": upstreamPath,
			"service":  route.Service,
		})
	}

	rp.ServeHTTP(w, r.WithContext(ctx))

	if proxyErr != nil {
		if r.Context().Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &ForwardError{Kind: KindServiceTimeout, Service: route.Service, Err: proxyErr}
		}
		return Classify(route.Service, proxyErr, r.Context())
	}
	return nil
}
