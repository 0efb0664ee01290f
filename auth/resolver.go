package auth

import (
	"context"
	"final-draft/domain"
	"final-draft/repositories"
	"log/slog"
	"time"
)

// SessionResolver maps a session credential to the identity of its user.
// Anything it cannot resolve in time is anonymous.
type SessionResolver struct {
	tokens   *TokenIssuer
	sessions repositories.ISessionRepository
	users    repositories.IUserRepository
	timeout  time.Duration
	log      *slog.Logger
}

func NewSessionResolver(
	tokens *TokenIssuer,
	sessions repositories.ISessionRepository,
	users repositories.IUserRepository,
	timeout time.Duration,
	log *slog.Logger,
) *SessionResolver {
	return &SessionResolver{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		timeout:  timeout,
		log:      log,
	}
}

func (r *SessionResolver) Resolve(ctx context.Context, credential string) domain.Identity {
	if credential == "" {
		return domain.Anonymous
	}
	claims, err := r.tokens.Parse(credential)
	if err != nil {
		r.log.Debug("Credential rejected", "error", err)
		return domain.Anonymous
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resolved := make(chan domain.Identity, 1)
	go func() {
		resolved <- r.lookup(ctx, claims)
	}()

	select {
	case identity := <-resolved:
		return identity
	case <-ctx.Done():
		r.log.Warn("Identity resolution timed out", "session", claims.ID)
		return domain.Anonymous
	}
}

// lookup checks the session is still live server side and belongs to the claimed user.
func (r *SessionResolver) lookup(ctx context.Context, claims *SessionClaims) domain.Identity {
	session, err := r.sessions.GetSession(ctx, claims.ID)
	if err != nil {
		r.log.Debug("Session lookup failed", "error", err)
		return domain.Anonymous
	}
	if session.UserID != claims.UserID {
		r.log.Warn("Session does not match credential", "user_id", claims.UserID)
		return domain.Anonymous
	}
	user, err := r.users.GetUserByID(ctx, session.UserID)
	if err != nil {
		r.log.Debug("User lookup failed", "user_id", session.UserID, "error", err)
		return domain.Anonymous
	}
	return user.Identity()
}
