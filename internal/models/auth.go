package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential holds the sign-in form.
type Credential struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Principal describes the signed-in operator.
type Principal struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	SessionID string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is returned after a successful sign-in.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	User        Principal `json:"user"`
}

// JWTClaims represents the JWT payload for session tokens.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}
