package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dwitter/apiserver/internal/logging"
	"github.com/dwitter/apiserver/internal/services"
	"github.com/dwitter/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// TweetHandler provides HTTP handlers for tweets.
type TweetHandler struct {
	tweetService *services.TweetService
	logger       logrus.FieldLogger
}

func NewTweetHandler(tweetService *services.TweetService, logger logrus.FieldLogger) *TweetHandler {
	return &TweetHandler{tweetService: tweetService, logger: logger}
}

// TweetRouter registers tweet routes; every route sits behind authMiddleware.
func TweetRouter(r chi.Router, tweetService *services.TweetService, authMiddleware func(http.Handler) http.Handler, logger logrus.FieldLogger) {
	handler := NewTweetHandler(tweetService, logger)

	r.Use(authMiddleware)
	r.Get("/", handler.ListTweets)
	r.Post("/", handler.CreateTweet)
	r.Route("/{tweetID}", func(r chi.Router) {
		r.Get("/", handler.GetTweet)
		r.Put("/", handler.UpdateTweet)
		r.Delete("/", handler.DeleteTweet)
	})
}

func (h *TweetHandler) ListTweets(w http.ResponseWriter, r *http.Request) {
	tweets, err := h.tweetService.List(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		h.internalError(w, r, err, "list tweets")
		return
	}
	writeJSON(w, http.StatusOK, tweets)
}

func (h *TweetHandler) GetTweet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTweetID(w, r)
	if !ok {
		return
	}

	tweet, err := h.tweetService.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "get tweet")
		return
	}
	writeJSON(w, http.StatusOK, tweet)
}

func (h *TweetHandler) CreateTweet(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authErrorMessage)
		return
	}

	text, ok := decodeTweetText(w, r)
	if !ok {
		return
	}

	tweet, err := h.tweetService.Create(r.Context(), text, identity.UserID)
	if err != nil {
		h.internalError(w, r, err, "create tweet")
		return
	}
	writeJSON(w, http.StatusCreated, tweet)
}

func (h *TweetHandler) UpdateTweet(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authErrorMessage)
		return
	}

	id, ok := parseTweetID(w, r)
	if !ok {
		return
	}

	text, ok := decodeTweetText(w, r)
	if !ok {
		return
	}

	tweet, err := h.tweetService.Update(r.Context(), id, text, identity.UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "update tweet")
		return
	}
	writeJSON(w, http.StatusOK, tweet)
}

func (h *TweetHandler) DeleteTweet(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, authErrorMessage)
		return
	}

	id, ok := parseTweetID(w, r)
	if !ok {
		return
	}

	if err := h.tweetService.Delete(r.Context(), id, identity.UserID); err != nil {
		h.writeServiceError(w, r, err, "delete tweet")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TweetHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, tweetNotFound(chi.URLParam(r, "tweetID")))
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	default:
		h.internalError(w, r, err, action)
	}
}

func (h *TweetHandler) internalError(w http.ResponseWriter, r *http.Request, err error, action string) {
	logging.FromRequest(h.logger, r).WithError(err).Error(action)
	writeError(w, http.StatusInternalServerError, "failed to "+action)
}

type TweetRequest struct {
	Text string `json:"text"`
}

func decodeTweetText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TweetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	text, err := validateTweetText(req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return text, true
}

// parseTweetID treats an id that cannot name a tweet as a missing tweet.
func parseTweetID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "tweetID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		writeError(w, http.StatusNotFound, tweetNotFound(raw))
		return 0, false
	}
	return id, true
}

func tweetNotFound(id string) string {
	return fmt.Sprintf("Tweet id(%s) not found", id)
}
