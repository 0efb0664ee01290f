package services

import (
	"context"
	stdErrors "errors"
	"final-draft/auth"
	"final-draft/domain"
	"final-draft/errors"
	"final-draft/repositories"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type IAuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (Token, error)
	Login(ctx context.Context, req auth.LoginRequest) (Token, error)
	Logout(ctx context.Context, credential string) error
}

type Token string

func (t Token) String() string {
	return string(t)
}

type AuthService struct {
	userRepository    repositories.IUserRepository
	sessionRepository repositories.ISessionRepository
	tokens            *auth.TokenIssuer
	sessionDuration   time.Duration
	log               *slog.Logger
}

func NewAuthService(
	users repositories.IUserRepository,
	sessions repositories.ISessionRepository,
	tokens *auth.TokenIssuer,
	sessionDuration time.Duration,
	log *slog.Logger,
) *AuthService {
	return &AuthService{
		userRepository:    users,
		sessionRepository: sessions,
		tokens:            tokens,
		sessionDuration:   sessionDuration,
		log:               log,
	}
}

func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest) (Token, error) {
	// Business rules are checked before any expensive cryptographic operation.
	if err := auth.ValidateRegister(req); err != nil {
		return "", err
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(ctx, domain.User{
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hashedPassword,
	})
	if err != nil {
		return "", err
	}
	s.log.Info("User registered", "user_id", user.ID)
	return s.openSession(ctx, user.ID)
}

func (s *AuthService) Login(ctx context.Context, req auth.LoginRequest) (Token, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return "", err
	}
	user, err := s.userRepository.GetUserByEmail(ctx, req.Email)
	if err != nil {
		// Generic error to prevent user enumeration
		if !stdErrors.Is(err, errors.ErrUserNotFound) {
			s.log.Error("User lookup failed", "error", err)
		}
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}
	return s.openSession(ctx, user.ID)
}

// Logout revokes the session behind the credential. Unknown sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, credential string) error {
	claims, err := s.tokens.Parse(credential)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	return s.sessionRepository.DeleteSession(ctx, claims.ID)
}

func (s *AuthService) openSession(ctx context.Context, userID domain.UserID) (Token, error) {
	session := domain.Session{
		Key:       uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.sessionDuration),
	}
	if err := s.sessionRepository.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	token, err := s.tokens.Issue(session)
	if err != nil {
		return "", fmt.Errorf("issue credential: %w", err)
	}
	return Token(token), nil
}
