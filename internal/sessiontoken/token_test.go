package sessiontoken

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueVerifyRoundTrip(t *testing.T) {
	m, err := NewManager(Options{Secret: testSecret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue("sess-42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sessionID, err := m.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sessionID != "sess-42" {
		t.Fatalf("unexpected session id %q", sessionID)
	}
}

func TestManagerRequiresStrongSecret(t *testing.T) {
	if _, err := NewManager(Options{Secret: "short"}); err == nil {
		t.Fatal("expected weak secret to be rejected")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m1, _ := NewManager(Options{Secret: testSecret})
	m2, _ := NewManager(Options{Secret: strings.Repeat("x", 32)})
	token, _ := m1.Issue("sess-1")
	if _, err := m2.Verify(token); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(Options{Secret: testSecret, TTL: time.Second, Leeway: time.Millisecond})
	claims := jwt.RegisteredClaims{
		Issuer:    "atmosphera",
		Subject:   "sess-1",
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		ID:        "jti-1",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestVerifyRejectsForeignIssuer(t *testing.T) {
	m, _ := NewManager(Options{Secret: testSecret})
	claims := jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   "sess-1",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		ID:        "jti-1",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected foreign issuer to fail")
	}
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if _, ok := FromRequest(req); ok {
		t.Fatal("expected no token on bare request")
	}

	req.Header.Set("Authorization", "Bearer from-auth")
	token, ok := FromRequest(req)
	if !ok || token != "from-auth" {
		t.Fatalf("bearer extraction failed: %q", token)
	}

	// The dedicated header wins over Authorization.
	req.Header.Set(HeaderName, "from-header")
	token, ok = FromRequest(req)
	if !ok || token != "from-header" {
		t.Fatalf("header extraction failed: %q", token)
	}
}
