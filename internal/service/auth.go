package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/ad-rewards/internal/apperror"
	"github.com/sakif/ad-rewards/internal/auth"
	"github.com/sakif/ad-rewards/internal/model"
	"github.com/sakif/ad-rewards/internal/repository"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
	MinPasswordLength = 6
	MaxPasswordBytes  = 72 // bcrypt input limit
)

// AuthService owns account creation, login and session issuing.
//
//	AuthHandler (HTTP) → AuthService → UserRepository
//	                               ↘ TokenService, PasswordService
//
// It never touches cookies; the handler turns an AuthResult into one.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	admins    map[string]bool
	logger    *slog.Logger
}

// NewAuthService wires the service. adminUsers lists the usernames that
// get admin capability; matching is case-insensitive.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	adminUsers []string,
	logger *slog.Logger,
) *AuthService {
	admins := make(map[string]bool, len(adminUsers))
	for _, name := range adminUsers {
		admins[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		admins:    admins,
		logger:    logger,
	}
}

// AuthResult bundles the user and their freshly signed session token.
type AuthResult struct {
	User  *model.User
	Token string
}

// SessionTTL is the lifetime of tokens issued by this service.
func (s *AuthService) SessionTTL() time.Duration {
	return s.tokens.TTL()
}

// Register validates and creates a password account, then signs it in.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if n := utf8.RuneCountInString(username); n < MinUsernameLength || n > MaxUsernameLength {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("Username must be between %d and %d characters", MinUsernameLength, MaxUsernameLength))
	}
	email, err := validateEmail("email", email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be %d bytes or fewer", MaxPasswordBytes))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password for %q: %w", username, err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create user",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("registering %q: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

// Login checks a username/password pair. Unknown users and wrong
// passwords produce the same Unauthorized error.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	invalid := apperror.Unauthorized("Invalid username or password")

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, fmt.Errorf("looking up %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Info("failed login", slog.String("username", user.Username))
			return nil, invalid
		}
		return nil, fmt.Errorf("verifying password for %q: %w", username, err)
	}

	return s.issue(user)
}

// LoginOrRegisterGitHub signs in a GitHub user, creating the local account
// on first use. GitHub users who hide their email get the noreply address
// GitHub routes for them. A username or email already held by another
// account is a Conflict; password accounts are never taken over.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, errors.New("GitHub user must not be nil")
	}

	email := ghUser.Email
	if email == "" {
		email = ghUser.Login + "@users.noreply.github.com"
	}
	user := &model.User{
		Username: ghUser.Login,
		Email:    email,
		GitHubID: ghUser.ID,
	}
	if err := s.users.UpsertGitHubUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upserting GitHub user %d: %w", ghUser.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.issue(user)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("Not authenticated")
	}
	return s.users.GetUserByID(ctx, id)
}

// ValidateToken returns the user ID encoded in a session token.
func (s *AuthService) ValidateToken(token string) (string, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return "", apperror.Unauthorized("Not authenticated")
	}
	return userID, nil
}

// Caller resolves the capabilities of an authenticated user. A session for
// a user that no longer exists is treated as unauthenticated.
func (s *AuthService) Caller(ctx context.Context, userID string) (Caller, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return Caller{}, apperror.Unauthorized("Not authenticated")
		}
		return Caller{}, err
	}
	return Caller{
		UserID:  user.ID,
		IsAdmin: s.admins[strings.ToLower(user.Username)],
	}, nil
}
