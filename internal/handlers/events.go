package handlers

import (
	"net/http"
	"strings"

	"github.com/dwitter/apiserver/internal/metrics"
	"github.com/dwitter/apiserver/internal/notify"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Clients authenticate with a bearer token rather than cookies, so the
// origin is not used for access control.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// EventsHandler upgrades authenticated requests to a WebSocket fed by hub.
// The token comes from the Authorization header or the token query parameter.
func EventsHandler(authn Authenticator, hub *notify.Hub, logger logrus.FieldLogger, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			m.AuthAttempt("token", "rejected")
			writeError(w, http.StatusUnauthorized, authErrorMessage)
			return
		}

		identity, ok := authenticate(w, r, authn, token, logger, m)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied to the client.
			return
		}
		hub.Serve(conn, identity.UserID)
	}
}
