// Package auth verifies bearer tokens presented to the walker fixture server.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates tokens and extracts the caller's identity.
// Supports modes: dev (token is "user:role", unsigned) and hmac (HS256 JWT).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	RoleClaim  string
}

type Principal struct {
	UserID string
	Role   string // resident, collector, admin
}

// Claims is the JWT body accepted in hmac mode.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewVerifier(mode, secret string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret), RoleClaim: "role"}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	switch v.Mode {
	case "dev":
		user, role, ok := strings.Cut(token, ":")
		if !ok || user == "" || role == "" {
			return Principal{}, errors.New("invalid dev token; expected user:role")
		}
		return Principal{UserID: user, Role: strings.ToLower(role)}, nil
	case "hmac":
		var c Claims
		_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
			return v.HMACSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil {
			return Principal{}, fmt.Errorf("verify token: %w", err)
		}
		if c.Subject == "" {
			return Principal{}, errors.New("missing sub claim")
		}
		role := strings.ToLower(c.Role)
		if role == "" {
			role = "resident"
		}
		return Principal{UserID: c.Subject, Role: role}, nil
	}
	return Principal{}, fmt.Errorf("unsupported auth mode %q", v.Mode)
}

// Issue mints a token the verifier accepts. In dev mode ttl is ignored.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	if v.Mode == "dev" {
		return p.UserID + ":" + p.Role, nil
	}
	now := time.Now()
	c := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.HMACSecret)
}

func (p Principal) IsAdmin() bool { return p.Role == "admin" }
