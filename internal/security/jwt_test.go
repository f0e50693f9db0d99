package security

import (
	"errors"
	"testing"
	"time"

	"github.com/vinocount/session-service/internal/domain"
)

func TestSignParseRoundtrip(t *testing.T) {
	v := NewVerifier("test-secret", "vinocount-auth", 30*time.Second)

	token, err := v.Sign("u1", "Ann", domain.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := v.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "u1" || claims.DisplayName != "Ann" || claims.Role != domain.RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	good := NewVerifier("secret-a", "", 0)
	bad := NewVerifier("secret-b", "", 0)

	token, err := good.Sign("u1", "Ann", domain.RoleStaff, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := bad.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	v := NewVerifier("test-secret", "", 0)
	token, err := v.Sign("u1", "Ann", domain.RoleStaff, -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	issuerA := NewVerifier("test-secret", "issuer-a", 0)
	issuerB := NewVerifier("test-secret", "issuer-b", 0)

	token, err := issuerA.Sign("u1", "Ann", domain.RoleStaff, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuerB.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseDefaultsMissingRoleToStaff(t *testing.T) {
	v := NewVerifier("test-secret", "", 0)
	token, err := v.Sign("u1", "Ann", "", time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != domain.RoleStaff {
		t.Fatalf("role = %s, want staff", claims.Role)
	}
}
