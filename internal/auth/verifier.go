package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jamesprial/biteme-gateway/config"
	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/jamesprial/biteme-gateway/internal/utils"
)

const maxVerifyBody = 64 << 10

var errLocalDisabled = errors.New("no signing secret configured")

// URLResolver looks up the base URL of a registered service.
type URLResolver interface {
	ServiceURL(name string) (string, bool)
}

// Fallback outcomes reported to the FallbackRecorder.
const (
	FallbackAccepted = "accepted"
	FallbackRejected = "rejected"
)

// FallbackRecorder is notified once per remote verification.
type FallbackRecorder interface {
	RecordAuthFallback(outcome string)
}

// Verifier checks bearer tokens against the shared secret and falls back to
// the identity service when local verification fails.
type Verifier struct {
	secret   []byte
	service  string
	path     string
	timeout  time.Duration
	resolver URLResolver
	client   *http.Client
	logger   interfaces.Logger
	recorder FallbackRecorder
}

// NewVerifier creates a verifier. resolver supplies the identity service URL
// at call time so discovery updates are honored.
func NewVerifier(cfg config.AuthConfig, resolver URLResolver, logger interfaces.Logger) *Verifier {
	timeout := cfg.VerifyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		service:  cfg.VerifyService,
		path:     cfg.VerifyPath,
		timeout:  timeout,
		resolver: resolver,
		client:   &http.Client{},
		logger:   logger,
	}
}

// SetHTTPClient replaces the client used for remote verification.
func (v *Verifier) SetHTTPClient(c *http.Client) {
	v.client = c
}

// SetFallbackRecorder registers a recorder for remote verification outcomes.
func (v *Verifier) SetFallbackRecorder(r FallbackRecorder) {
	v.recorder = r
}

// Verify returns the identity for token. A local failure triggers exactly one
// remote attempt; both failures surface as ErrInvalidOrExpiredToken.
func (v *Verifier) Verify(ctx context.Context, token string) (*interfaces.Identity, error) {
	if token == "" {
		return nil, ErrNoTokenProvided
	}

	id, localErr := v.VerifyLocal(token)
	if localErr == nil {
		return id, nil
	}

	if v.logger != nil {
		v.logger.Debug("Local token verification failed", map[string]any{
			"token":  utils.MaskToken(token),
			"reason": localErr.Error(),
		})
	}

	id, remoteErr := v.VerifyRemote(ctx, token)
	if remoteErr != nil {
		v.record(FallbackRejected)
		if v.logger != nil {
			v.logger.Warn("Remote token verification failed", map[string]any{
				"token":  utils.MaskToken(token),
				"reason": remoteErr.Error(),
			})
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrExpiredToken, remoteErr)
	}

	v.record(FallbackAccepted)
	return id, nil
}

// VerifyLocal checks the HS256 signature and expiry without any network call.
// A token without an exp claim is rejected.
func (v *Verifier) VerifyLocal(token string) (*interfaces.Identity, error) {
	if len(v.secret) == 0 {
		return nil, errLocalDisabled
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	return identityFrom(claims.UserID, claims.Role)
}

type verifyResponse struct {
	Success bool `json:"success"`
	User    struct {
		UserID string          `json:"userId"`
		Role   interfaces.Role `json:"role"`
	} `json:"user"`
}

// VerifyRemote asks the identity service to validate token. It never retries.
func (v *Verifier) VerifyRemote(ctx context.Context, token string) (*interfaces.Identity, error) {
	if v.resolver == nil {
		return nil, errors.New("identity service not configured")
	}
	base, ok := v.resolver.ServiceURL(v.service)
	if !ok {
		return nil, fmt.Errorf("identity service %q not registered", v.service)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+v.path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("identity service returned status %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVerifyBody)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if !body.Success {
		return nil, errors.New("identity service rejected token")
	}

	return identityFrom(body.User.UserID, body.User.Role)
}

func identityFrom(subject string, role interfaces.Role) (*interfaces.Identity, error) {
	if subject == "" {
		return nil, errors.New("token has no subject")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	return &interfaces.Identity{SubjectID: subject, Role: role}, nil
}

func (v *Verifier) record(outcome string) {
	if v.recorder != nil {
		v.recorder.RecordAuthFallback(outcome)
	}
}
