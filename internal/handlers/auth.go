package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dwitter/apiserver/internal/logging"
	"github.com/dwitter/apiserver/internal/metrics"
	"github.com/dwitter/apiserver/internal/services"
	"github.com/dwitter/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// AuthHandler provides signup, login and me endpoints.
type AuthHandler struct {
	authService *services.AuthService
	logger      logrus.FieldLogger
	metrics     *metrics.Metrics
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, logger logrus.FieldLogger, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
		metrics:     m,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, logger logrus.FieldLogger, m *metrics.Metrics) {
	handler := NewAuthHandler(authService, logger, m)

	r.Post("/signup", handler.SignUp)
	r.Post("/login", handler.LogIn)
	r.With(RequireAuth(authService, logger, m)).Get("/me", handler.Me)
}

// SignUp creates a new user account and returns a JWT.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input, err := validateSignUp(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.SignUp(r.Context(), input)
	if err != nil {
		if errors.Is(err, services.ErrUsernameTaken) {
			h.metrics.AuthAttempt("signup", "conflict")
			writeError(w, http.StatusConflict, fmt.Sprintf("%s already exists", input.Username))
			return
		}
		h.metrics.AuthAttempt("signup", "error")
		logging.FromRequest(h.logger, r).WithError(err).Error("sign up")
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.metrics.AuthAttempt("signup", "ok")
	writeJSON(w, http.StatusCreated, result)
}

// LogIn verifies credentials and returns a JWT.
func (h *AuthHandler) LogIn(w http.ResponseWriter, r *http.Request) {
	var req LogInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	creds, err := validateCredentials(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.authService.LogIn(r.Context(), creds.username, creds.password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			h.metrics.AuthAttempt("login", "rejected")
			writeError(w, http.StatusUnauthorized, "Invalid user or password")
			return
		}
		h.metrics.AuthAttempt("login", "error")
		logging.FromRequest(h.logger, r).WithError(err).Error("log in")
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	h.metrics.AuthAttempt("login", "ok")
	writeJSON(w, http.StatusOK, result)
}

// Me echoes the caller's token and username.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authErrorMessage)
		return
	}

	result, err := h.authService.Me(r.Context(), identity.UserID, identity.Token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		logging.FromRequest(h.logger, r).WithError(err).Error("load current user")
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type SignUpRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	URL      string `json:"url"`
}

type LogInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
