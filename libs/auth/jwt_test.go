package auth

import (
	"testing"
	"time"
)

func TestHS256RoundTrip(t *testing.T) {
	claims := Claims{
		Sub:  "billing-writer",
		Role: RoleWriter,
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Sub != claims.Sub || parsed.Role != claims.Role {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret"); err == nil {
		t.Fatal("expected verification error with wrong secret")
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := SignHS256(Claims{Sub: "x", Role: RoleOperator, Exp: time.Now().Add(-time.Minute).Unix()}, "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHasRole(t *testing.T) {
	if !HasRole(&Claims{Role: RoleAdmin}, RoleOperator) {
		t.Fatal("admin should pass operator check")
	}
	if HasRole(&Claims{Role: RoleWriter}, RoleOperator) {
		t.Fatal("writer should not pass operator check")
	}
	if HasRole(nil, RoleWriter) {
		t.Fatal("nil claims should not pass")
	}
}
