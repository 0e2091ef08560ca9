package models

import (
	"errors"
	"strings"
)

// ErrInvalidIdentity is returned when an identity does not name exactly one
// owner.
var ErrInvalidIdentity = errors.New("identity must have exactly one of user id or session key")

// IdentityKind tells authenticated users apart from anonymous sessions.
type IdentityKind string

const (
	KindUser    IdentityKind = "user"
	KindSession IdentityKind = "session"
)

// Identity owns game states and ending unlocks. It is either an
// authenticated user or an anonymous session, never both.
type Identity struct {
	UserID     string `yaml:"user_id,omitempty" json:"user_id,omitempty"`
	SessionKey string `yaml:"session_key,omitempty" json:"session_key,omitempty"`
}

func UserIdentity(userID string) Identity {
	return Identity{UserID: strings.TrimSpace(userID)}
}

func SessionIdentity(sessionKey string) Identity {
	return Identity{SessionKey: strings.TrimSpace(sessionKey)}
}

// Validate checks the exactly-one-owner invariant.
func (i Identity) Validate() error {
	if (i.UserID == "") == (i.SessionKey == "") {
		return ErrInvalidIdentity
	}
	return nil
}

func (i Identity) Kind() IdentityKind {
	if i.UserID != "" {
		return KindUser
	}
	return KindSession
}

// Key is the owner id without its kind.
func (i Identity) Key() string {
	if i.UserID != "" {
		return i.UserID
	}
	return i.SessionKey
}

func (i Identity) String() string {
	return string(i.Kind()) + ":" + i.Key()
}
