package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestDevTokens(t *testing.T) {
	v, err := NewVerifier("", "")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	p, err := v.Verify("alice:Staff")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Subject != "alice" || p.Role != RoleStaff || !p.CanEdit() {
		t.Fatalf("unexpected principal %+v", p)
	}
	for _, tok := range []string{"alice", "alice:", "alice:pilot"} {
		if _, err := v.Verify(tok); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%q: want ErrUnauthenticated, got %v", tok, err)
		}
	}
}

func TestHMACTokens(t *testing.T) {
	const secret = "s3cret"
	v, err := NewVerifier("hmac", secret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	exp := time.Now().Add(time.Hour).Unix()

	p, err := v.Verify(sign(t, secret, jwt.MapClaims{"sub": "drv_7", "role": "driver", "exp": exp}, jwt.SigningMethodHS256))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Subject != "drv_7" || p.CanEdit() || !p.CanTrack() {
		t.Fatalf("unexpected principal %+v", p)
	}

	cases := map[string]string{
		"wrong secret": sign(t, "other", jwt.MapClaims{"role": "staff", "exp": exp}, jwt.SigningMethodHS256),
		"wrong alg":    sign(t, secret, jwt.MapClaims{"role": "staff", "exp": exp}, jwt.SigningMethodHS512),
		"expired":      sign(t, secret, jwt.MapClaims{"role": "staff", "exp": time.Now().Add(-time.Minute).Unix()}, jwt.SigningMethodHS256),
		"no exp":       sign(t, secret, jwt.MapClaims{"role": "staff"}, jwt.SigningMethodHS256),
		"no role":      sign(t, secret, jwt.MapClaims{"sub": "x", "exp": exp}, jwt.SigningMethodHS256),
		"garbage":      "not.a.jwt",
	}
	for name, tok := range cases {
		if _, err := v.Verify(tok); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%s: want ErrUnauthenticated, got %v", name, err)
		}
	}
}

func TestNewVerifierValidation(t *testing.T) {
	if _, err := NewVerifier("hmac", ""); err == nil {
		t.Error("hmac without secret should fail")
	}
	if _, err := NewVerifier("jwks", ""); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestRoleCapabilities(t *testing.T) {
	customer := Principal{Role: RoleCustomer}
	if customer.CanView() || customer.CanEdit() || customer.CanTrack() {
		t.Error("customer should have no route access")
	}
	admin := Principal{Role: RoleAdmin}
	if !admin.IsAdmin() || !admin.CanEdit() {
		t.Error("admin should edit")
	}
}
