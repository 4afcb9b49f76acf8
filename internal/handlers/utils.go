package handlers

import (
	"context"
	"encoding/json"
	"net/http"
)

const maxBodyBytes = 1 << 20

type contextKey string

const contextIdentityKey contextKey = "identity"

// Identity is what the access gate attaches to an authenticated request.
type Identity struct {
	UserID int
	Token  string
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Message string `json:"message"`
}

func withIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

// IdentityFromContext returns the identity attached by RequireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(Identity)
	if !ok || identity.UserID < 1 {
		return Identity{}, false
	}
	return identity, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return validationError{message: "invalid request"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}
