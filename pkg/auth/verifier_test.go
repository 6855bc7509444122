package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "https://auth.formloft.io"

var testSecret = []byte("test-signing-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return raw
}

func TestHMACVerifier(t *testing.T) {
	verifier, err := NewHMACVerifier(testIssuer, "", testSecret)
	if err != nil {
		t.Fatalf("NewHMACVerifier: %v", err)
	}

	t.Run("valid token yields principal", func(t *testing.T) {
		exp := time.Now().Add(time.Hour)
		raw := signToken(t, jwt.MapClaims{
			"iss": testIssuer,
			"sub": "user-1",
			"jti": "token-abc",
			"tid": float64(7),
			"exp": exp.Unix(),
		})

		p, err := verifier.Verify(context.Background(), raw)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if p.Subject != "user-1" {
			t.Errorf("Subject = %q, want user-1", p.Subject)
		}
		if p.Issuer != testIssuer {
			t.Errorf("Issuer = %q", p.Issuer)
		}
		if p.TokenID != "token-abc" {
			t.Errorf("TokenID = %q", p.TokenID)
		}
		if p.TenantID != 7 {
			t.Errorf("TenantID = %d, want 7", p.TenantID)
		}
		if p.ExpiresAt.Unix() != exp.Unix() {
			t.Errorf("ExpiresAt = %v, want %v", p.ExpiresAt, exp)
		}
		if !p.Authenticated() {
			t.Error("expected authenticated principal")
		}
	})

	t.Run("wrong signature rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"iss": testIssuer,
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		raw, err := token.SignedString([]byte("some-other-secret"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := verifier.Verify(context.Background(), raw); err == nil {
			t.Error("expected verification failure for wrong signature")
		}
	})

	t.Run("expired token rejected", func(t *testing.T) {
		raw := signToken(t, jwt.MapClaims{
			"iss": testIssuer,
			"sub": "user-1",
			"exp": time.Now().Add(-time.Minute).Unix(),
		})
		if _, err := verifier.Verify(context.Background(), raw); err == nil {
			t.Error("expected verification failure for expired token")
		}
	})

	t.Run("token without expiry rejected", func(t *testing.T) {
		raw := signToken(t, jwt.MapClaims{
			"iss": testIssuer,
			"sub": "user-1",
		})
		if _, err := verifier.Verify(context.Background(), raw); err == nil {
			t.Error("expected verification failure for token without exp")
		}
	})

	t.Run("wrong issuer rejected", func(t *testing.T) {
		raw := signToken(t, jwt.MapClaims{
			"iss": "https://evil.example.com",
			"sub": "user-1",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		if _, err := verifier.Verify(context.Background(), raw); err == nil {
			t.Error("expected verification failure for wrong issuer")
		}
	})

	t.Run("audience enforced when configured", func(t *testing.T) {
		audVerifier, err := NewHMACVerifier(testIssuer, "formloft-api", testSecret)
		if err != nil {
			t.Fatal(err)
		}
		raw := signToken(t, jwt.MapClaims{
			"iss": testIssuer,
			"sub": "user-1",
			"aud": "other-service",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		if _, err := audVerifier.Verify(context.Background(), raw); err == nil {
			t.Error("expected verification failure for wrong audience")
		}
	})
}

func TestNewHMACVerifierValidation(t *testing.T) {
	if _, err := NewHMACVerifier("", "", testSecret); err == nil {
		t.Error("expected error for empty issuer")
	}
	if _, err := NewHMACVerifier(testIssuer, "", nil); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestPrincipalAuthenticated(t *testing.T) {
	var p *Principal
	if p.Authenticated() {
		t.Error("nil principal must not be authenticated")
	}
	if (&Principal{}).Authenticated() {
		t.Error("principal without subject must not be authenticated")
	}
}
