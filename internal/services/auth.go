package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dwitter/apiserver/internal/auth"
	"github.com/dwitter/apiserver/internal/store"
	"github.com/dwitter/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hashed string) bool
}

// TokenIssuer mints and verifies session tokens.
type TokenIssuer interface {
	Issue(subjectID int) (string, error)
	Verify(token string) (auth.Claims, error)
}

// SignUpInput carries validated signup fields.
type SignUpInput struct {
	Username string
	Password string
	Name     string
	Email    string
	URL      string
}

// AuthResult is returned by every successful auth operation.
type AuthResult struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// AuthService encapsulates signup, login and token resolution.
type AuthService struct {
	users  UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
}

func NewAuthService(users UserRepository, hasher PasswordHasher, tokens TokenIssuer) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// SignUp registers a user and issues a token for it. Either both happen or
// nothing is persisted.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (AuthResult, error) {
	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return AuthResult{}, ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("check username: %w", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	// The store enforces uniqueness too: a concurrent signup may win between
	// the lookup above and this insert.
	user, err := s.users.Create(ctx, types.User{
		Username:     in.Username,
		Name:         in.Name,
		Email:        in.Email,
		URL:          in.URL,
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return AuthResult{}, ErrUsernameTaken
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		if delErr := s.users.Delete(context.WithoutCancel(ctx), user.ID); delErr != nil {
			return AuthResult{}, errors.Join(fmt.Errorf("issue token: %w", err), fmt.Errorf("rollback user: %w", delErr))
		}
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	return AuthResult{Token: token, Username: user.Username}, nil
}

// LogIn verifies credentials. Unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *AuthService) LogIn(ctx context.Context, username, password string) (AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return AuthResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{Token: token, Username: user.Username}, nil
}

// Me echoes the caller's token with its current username.
func (s *AuthService) Me(ctx context.Context, userID int, token string) (AuthResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, Username: user.Username}, nil
}

// Authenticate verifies token and resolves its subject. Every token or lookup
// failure is ErrUnauthenticated; store failures are wrapped and returned.
func (s *AuthService) Authenticate(ctx context.Context, token string) (types.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return types.User{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	user, err := s.users.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthenticated
		}
		return types.User{}, fmt.Errorf("load subject: %w", err)
	}
	return user, nil
}
