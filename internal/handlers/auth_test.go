package handlers

import (
	"net/http"
	"testing"

	"github.com/dwitter/apiserver/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUp(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "ellie",
		"password": "abcde12345",
		"name":     "Ellie",
		"email":    "Ellie@Example.com",
		"url":      "https://example.com/ellie.png",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decode[services.AuthResult](t, rec)
	assert.Equal(t, "ellie", res.Username)
	assert.NotEmpty(t, res.Token)
	assert.NotContains(t, rec.Body.String(), "password")

	user, err := f.users.GetByUsername(t.Context(), "ellie")
	require.NoError(t, err)
	assert.Equal(t, "ellie@example.com", user.Email)
}

func TestSignUp_DuplicateConflicts(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "ellie")

	rec := f.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "ellie",
		"password": "different",
		"name":     "Other",
		"email":    "other@example.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message":"ellie already exists"}`, rec.Body.String())
}

func TestSignUp_RejectsInvalidBodies(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/signup", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"invalid request"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"username": "ellie",
		"password": "abcde",
		"name":     "Ellie",
		"email":    "nope",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"invalid Email"}`, rec.Body.String())

	_, err := f.users.GetByUsername(t.Context(), "ellie")
	assert.Error(t, err)
}

func TestLogIn_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "ellie")

	ok := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ellie", "password": "abcde12345"})
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, "ellie", decode[services.AuthResult](t, ok).Username)

	wrongPassword := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ellie", "password": "wrong-one"})
	unknownUser := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "nobody", "password": "abcde12345"})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.Bytes(), unknownUser.Body.Bytes())
	assert.JSONEq(t, `{"message":"Invalid user or password"}`, wrongPassword.Body.String())
}

func TestLogIn_ValidatesCredentials(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "ellie", "password": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"password should be at least 5 characters"}`, rec.Body.String())
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	token := f.signUp(t, "ellie")

	rec := f.do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.AuthResult{Token: token, Username: "ellie"}, decode[services.AuthResult](t, rec))

	rec = f.do(t, http.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Authentication Error"}`, rec.Body.String())
}

func TestMe_DeletedUserFailsAtTheGate(t *testing.T) {
	f := newFixture(t)
	token := f.signUp(t, "ellie")

	user, err := f.users.GetByUsername(t.Context(), "ellie")
	require.NoError(t, err)
	require.NoError(t, f.users.Delete(t.Context(), user.ID))

	rec := f.do(t, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
