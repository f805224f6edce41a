package auth

import (
	"errors"
	"net/http"

	"github.com/jamesprial/biteme-gateway/internal/interfaces"
	"github.com/jamesprial/biteme-gateway/internal/utils"
)

// Authenticator resolves the caller of a request from its bearer token.
type Authenticator struct {
	verifier interfaces.TokenVerifier
	logger   interfaces.Logger
}

// NewAuthenticator creates an authenticator backed by verifier.
func NewAuthenticator(verifier interfaces.TokenVerifier, logger interfaces.Logger) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		logger:   logger,
	}
}

// Authenticate returns the identity for r. The error is ErrNoTokenProvided or
// wraps ErrInvalidOrExpiredToken.
func (a *Authenticator) Authenticate(r *http.Request) (*interfaces.Identity, error) {
	token, err := ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("Missing bearer token in request", map[string]any{
				"path":   r.URL.Path,
				"method": r.Method,
			})
		}
		return nil, err
	}

	id, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		if !errors.Is(err, ErrNoTokenProvided) && !errors.Is(err, ErrInvalidOrExpiredToken) {
			err = errors.Join(ErrInvalidOrExpiredToken, err)
		}
		if a.logger != nil {
			a.logger.Warn("Rejected bearer token", map[string]any{
				"path":   r.URL.Path,
				"method": r.Method,
				"token":  utils.MaskToken(token),
			})
		}
		return nil, err
	}

	if a.logger != nil {
		a.logger.Debug("Request authenticated", map[string]any{
			"path":    r.URL.Path,
			"method":  r.Method,
			"user_id": id.SubjectID,
			"role":    string(id.Role),
		})
	}
	return id, nil
}

// Client-facing messages for authentication failures.
const (
	MessageNoToken      = "No token provided, authorization denied"
	MessageInvalidToken = "Invalid or expired token"
)
