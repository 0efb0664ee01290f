package domain

import "time"

// Identity is what a connection knows about the person behind it.
type Identity struct {
	UserID    UserID
	Username  string
	FirstName string
	LastName  string
}

// Anonymous is returned whenever a credential can't be resolved.
var Anonymous = Identity{}

func (i Identity) IsAnonymous() bool {
	return i.UserID == 0
}

type User struct {
	ID           UserID
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	CreatedAt    time.Time
}

func (u User) Identity() Identity {
	return Identity{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

type Session struct {
	Key       string
	UserID    UserID
	ExpiresAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
