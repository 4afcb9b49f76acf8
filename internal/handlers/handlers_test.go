package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dwitter/apiserver/internal/auth"
	"github.com/dwitter/apiserver/internal/services"
	"github.com/dwitter/apiserver/internal/store"
	"github.com/dwitter/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type emitted struct {
	events []types.Event
}

func (e *emitted) Emit(event types.Event) { e.events = append(e.events, event) }

type fixture struct {
	router *chi.Mux
	users  *store.MemoryUserRepository
	events *emitted
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()

	users := store.NewMemoryUserRepository()
	tweets := store.NewMemoryTweetRepository(users)
	issuer, err := auth.NewIssuer("handler-secret", time.Hour)
	require.NoError(t, err)

	authService := services.NewAuthService(users, auth.NewBcryptHasher(bcrypt.MinCost), issuer)
	events := &emitted{}
	tweetService := services.NewTweetService(tweets, events)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authService, logger, nil)
	})
	router.Route("/tweets", func(r chi.Router) {
		TweetRouter(r, tweetService, RequireAuth(authService, logger, nil), logger)
	})

	return &fixture{router: router, users: users, events: events}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) signUp(t *testing.T, username string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": username,
		"password": "abcde12345",
		"name":     "Name " + username,
		"email":    username + "@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res services.AuthResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
