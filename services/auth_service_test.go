package services

import (
	"context"
	"final-draft/auth"
	"final-draft/domain"
	"final-draft/errors"
	"final-draft/mocks"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const testSecret = "a-secret-long-enough-for-hs256-signing"

func newAuthService(t *testing.T) (*AuthService, *mocks.MockIUserRepository, *mocks.MockISessionRepository) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	sessions := mocks.NewMockISessionRepository(ctrl)
	svc := NewAuthService(users, sessions, auth.NewTokenIssuer(testSecret), 24*time.Hour, logs.GetLoggerFromLevel(slog.LevelDebug))
	return svc, users, sessions
}

func TestAuthService_Register(t *testing.T) {
	ctx := context.Background()
	valid := auth.RegisterRequest{Username: "ada", Email: "test@example.com", Password: "ComplexPass123!", FirstName: "Ada"}

	t.Run("should register successfully when input is valid", func(t *testing.T) {
		req := require.New(t)
		svc, users, sessions := newAuthService(t)

		// Expect CreateUser to be called with a hashed password (not the plain one)
		users.EXPECT().CreateUser(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, user domain.User) (domain.User, error) {
				req.NotEqual(valid.Password, user.PasswordHash)
				req.Equal("ada", user.Username)
				user.ID = 5
				return user, nil
			}).
			Times(1)
		sessions.EXPECT().CreateSession(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, session domain.Session) error {
				req.Equal(domain.UserID(5), session.UserID)
				req.NotEmpty(session.Key)
				return nil
			})

		token, err := svc.Register(ctx, valid)
		req.NoError(err)

		claims, err := auth.NewTokenIssuer(testSecret).Parse(token.String())
		req.NoError(err)
		req.Equal(domain.UserID(5), claims.UserID)
	})

	t.Run("should fail when password complexity is not met", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)

		// Repository should NEVER be called
		users.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Times(0)

		weak := valid
		weak.Password = "simplebutlongenough"
		token, err := svc.Register(ctx, weak)

		req.ErrorIs(err, errors.ErrInvalidPassword)
		req.Empty(token)
	})

	t.Run("should fail when user already exists in repository", func(t *testing.T) {
		req := require.New(t)
		svc, users, sessions := newAuthService(t)

		users.EXPECT().CreateUser(ctx, gomock.Any()).Return(domain.User{}, errors.ErrUserAlreadyExists)
		sessions.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Register(ctx, valid)
		req.ErrorIs(err, errors.ErrUserAlreadyExists)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()
	password := "ComplexPass123!"
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	user := domain.User{ID: 3, Email: "user@example.com", PasswordHash: hash}

	t.Run("should login successfully with correct credentials", func(t *testing.T) {
		req := require.New(t)
		svc, users, sessions := newAuthService(t)
		users.EXPECT().GetUserByEmail(ctx, user.Email).Return(user, nil)
		sessions.EXPECT().CreateSession(ctx, gomock.Any()).Return(nil)

		token, err := svc.Login(ctx, auth.LoginRequest{Email: user.Email, Password: password})
		req.NoError(err)
		req.NotEmpty(token)
	})

	t.Run("should fail with a wrong password", func(t *testing.T) {
		req := require.New(t)
		svc, users, sessions := newAuthService(t)
		users.EXPECT().GetUserByEmail(ctx, user.Email).Return(user, nil)
		sessions.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.Login(ctx, auth.LoginRequest{Email: user.Email, Password: "WrongPass123!"})
		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})

	t.Run("should not reveal unknown emails", func(t *testing.T) {
		req := require.New(t)
		svc, users, _ := newAuthService(t)
		users.EXPECT().GetUserByEmail(ctx, "ghost@example.com").Return(domain.User{}, errors.ErrUserNotFound)

		_, err := svc.Login(ctx, auth.LoginRequest{Email: "ghost@example.com", Password: password})
		req.ErrorIs(err, errors.ErrInvalidCredentials)
	})
}

func TestAuthService_Logout(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc, _, sessions := newAuthService(t)
	token, err := auth.NewTokenIssuer(testSecret).Issue(domain.Session{Key: "s-1", UserID: 3, ExpiresAt: time.Now().Add(time.Hour)})
	req.NoError(err)

	sessions.EXPECT().DeleteSession(ctx, "s-1").Return(nil)
	req.NoError(svc.Logout(ctx, token))

	req.ErrorIs(svc.Logout(ctx, "garbage"), errors.ErrUnauthenticated)
}
