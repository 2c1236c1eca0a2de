// Package auth verifies bearer tokens and maps them to portal roles.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Portal roles. Staff and admin edit routes, drivers follow them.
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleDriver   = "driver"
	RoleCustomer = "customer"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier validates bearer tokens and extracts subject and role claims.
// Supports modes: dev (token is "subject:role", no verify), hmac (HS256 JWT).
type Verifier struct {
	Mode         string
	HMACSecret   []byte
	RoleClaim    string
	SubjectClaim string
}

type Principal struct {
	Subject string
	Role    string
}

func NewVerifier(mode, secret string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	v := &Verifier{Mode: mode, HMACSecret: []byte(secret), RoleClaim: "role", SubjectClaim: "sub"}
	switch mode {
	case "dev":
	case "hmac":
		if secret == "" {
			return nil, errors.New("auth: hmac mode requires a secret")
		}
	default:
		return nil, fmt.Errorf("auth: unsupported mode %q", mode)
	}
	return v, nil
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		// token format: subject:role
		parts := strings.SplitN(token, ":", 2)
		if len(parts) == 2 && parts[1] != "" {
			return newPrincipal(parts[0], parts[1])
		}
		return Principal{}, fmt.Errorf("%w: invalid dev token; expected subject:role", ErrUnauthenticated)
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	sub, _ := claims[v.SubjectClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		return Principal{}, fmt.Errorf("%w: missing role claim", ErrUnauthenticated)
	}
	return newPrincipal(sub, role)
}

func newPrincipal(sub, role string) (Principal, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleAdmin, RoleStaff, RoleDriver, RoleCustomer:
		return Principal{Subject: sub, Role: role}, nil
	}
	return Principal{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, role)
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanEdit reports whether the principal may change routes.
func (p Principal) CanEdit() bool { return p.Role == RoleAdmin || p.Role == RoleStaff }

// CanView covers reading sessions, estimates and events.
func (p Principal) CanView() bool { return p.CanEdit() || p.Role == RoleDriver }

// CanTrack covers starting and stopping GPS polling.
func (p Principal) CanTrack() bool { return p.CanView() }
