package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dwitter/apiserver/internal/logging"
	"github.com/dwitter/apiserver/internal/metrics"
	"github.com/dwitter/apiserver/internal/services"
	"github.com/dwitter/apiserver/types"
	"github.com/sirupsen/logrus"
)

const authErrorMessage = "Authentication Error"

var errMissingToken = errors.New("missing bearer token")

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.User, error)
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// caller's Identity to the request context.
func RequireAuth(authn Authenticator, logger logrus.FieldLogger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				m.AuthAttempt("token", "rejected")
				writeError(w, http.StatusUnauthorized, authErrorMessage)
				return
			}

			identity, ok := authenticate(w, r, authn, token, logger, m)
			if !ok {
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// authenticate writes the failure response itself and reports whether the
// request may proceed.
func authenticate(w http.ResponseWriter, r *http.Request, authn Authenticator, token string, logger logrus.FieldLogger, m *metrics.Metrics) (Identity, bool) {
	user, err := authn.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			m.AuthAttempt("token", "rejected")
			logging.FromRequest(logger, r).WithError(err).Debug("token rejected")
			writeError(w, http.StatusUnauthorized, authErrorMessage)
			return Identity{}, false
		}
		m.AuthAttempt("token", "error")
		logging.FromRequest(logger, r).WithError(err).Error("authenticate request")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return Identity{}, false
	}

	m.AuthAttempt("token", "ok")
	return Identity{UserID: user.ID, Token: token}, true
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", errMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}
