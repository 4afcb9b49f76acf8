package handlers

import (
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/dwitter/apiserver/internal/services"
)

const (
	minPasswordLength  = 5
	maxPasswordBytes   = 72
	minTweetTextLength = 3
)

// validationError is reported to the client verbatim with status 400.
type validationError struct {
	message string
}

func (e validationError) Error() string { return e.message }

type credentials struct {
	username string
	password string
}

func validateCredentials(username, password string) (credentials, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	if username == "" {
		return credentials{}, validationError{message: "username should be at least 5 characters"}
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return credentials{}, validationError{message: "password should be at least 5 characters"}
	}
	// bcrypt ignores everything past 72 bytes.
	if len(password) > maxPasswordBytes {
		return credentials{}, validationError{message: "password should be at most 72 bytes"}
	}
	return credentials{username: username, password: password}, nil
}

func validateSignUp(req SignUpRequest) (services.SignUpInput, error) {
	creds, err := validateCredentials(req.Username, req.Password)
	if err != nil {
		return services.SignUpInput{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return services.SignUpInput{}, validationError{message: "name is missing"}
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return services.SignUpInput{}, validationError{message: "invalid Email"}
	}

	link := strings.TrimSpace(req.URL)
	if link != "" && !isWebURL(link) {
		return services.SignUpInput{}, validationError{message: "invalid URL"}
	}

	return services.SignUpInput{
		Username: creds.username,
		Password: creds.password,
		Name:     name,
		Email:    email,
		URL:      link,
	}, nil
}

func validateTweetText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minTweetTextLength {
		return "", validationError{message: "tweet text must be at least 3 characters"}
	}
	return text, nil
}

// normalizeEmail accepts a bare address and lower-cases it.
func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || addr.Name != "" {
		return "", false
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 1 || !strings.Contains(addr.Address[at+1:], ".") {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}

func isWebURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
