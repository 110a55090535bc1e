// Package auth defines the authentication boundary the session manager
// talks to, with a remote HTTP client and a local store-backed issuer as
// interchangeable implementations.
package auth

import (
	"context"
	"errors"
)

// TokenType is the only token type the boundary issues.
const TokenType = "Bearer"

var (
	// ErrRejected means the boundary refused the credentials or token.
	// The attempt is over; retrying with the same input will not help.
	ErrRejected = errors.New("authentication rejected")

	// ErrUnavailable means the boundary could not be reached or failed
	// internally. The caller may retry at its own discretion.
	ErrUnavailable = errors.New("authentication service unavailable")
)

// Credentials identify a user to the login boundary.
type Credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// User is the identity attached to an issued session.
type User struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	RollNo string `json:"rollNo"`
}

// LoginResult is the boundary's answer to a successful login.
type LoginResult struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"` // seconds
	User        User   `json:"user"`
}

// RefreshResult is the boundary's answer to a successful token refresh.
type RefreshResult struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"` // seconds
}

// Boundary is the authentication service as seen by the session manager.
// Failures are reported as ErrRejected or ErrUnavailable (possibly
// wrapped); the distinction decides whether the attempt is terminal.
type Boundary interface {
	Login(ctx context.Context, creds Credentials) (*LoginResult, error)
	Refresh(ctx context.Context, accessToken string) (*RefreshResult, error)
}
