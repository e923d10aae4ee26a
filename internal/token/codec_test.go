package token

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func newTestCodec(t *testing.T, opts ...Option) *Codec {
	t.Helper()
	c, err := NewCodec("unit-test-secret", "pontual", opts...)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestNewCodecRejectsEmptySecret(t *testing.T) {
	if _, err := NewCodec("", "pontual"); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewCodec("   ", "pontual"); err == nil {
		t.Fatal("expected error for whitespace secret")
	}
}

func TestRoundTripV2(t *testing.T) {
	c := newTestCodec(t)

	tok, exp, err := c.Issue(42, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry, got %v", exp)
	}

	p, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.EmployeeID != 42 {
		t.Fatalf("unexpected employee id: %d", p.EmployeeID)
	}
	if p.Format != FormatV2 {
		t.Fatalf("unexpected format: %v", p.Format)
	}
}

func TestRoundTripV1(t *testing.T) {
	c := newTestCodec(t)

	tok, err := c.IssueLegacy(7)
	if err != nil {
		t.Fatalf("IssueLegacy: %v", err)
	}
	p, err := c.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.EmployeeID != 7 {
		t.Fatalf("unexpected employee id: %d", p.EmployeeID)
	}
	if p.Format != FormatV1 {
		t.Fatalf("unexpected format: %v", p.Format)
	}
	if !p.ExpiresAt.Equal(p.IssuedAt.Add(24 * time.Hour)) {
		t.Fatalf("legacy expiry should be issued-at + 24h, got %v", p.ExpiresAt)
	}
}

func TestTamperDetection(t *testing.T) {
	c := newTestCodec(t)

	v2, _, err := c.Issue(42, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	v1, err := c.IssueLegacy(42)
	if err != nil {
		t.Fatalf("IssueLegacy: %v", err)
	}

	for name, tok := range map[string]string{"v1": v1, "v2": v2} {
		for i := 0; i < len(tok); i++ {
			if tok[i] == '.' {
				continue
			}
			mutated := []byte(tok)
			if mutated[i] == 'A' {
				mutated[i] = 'B'
			} else {
				mutated[i] = 'A'
			}
			if _, err := c.Verify(string(mutated)); err == nil {
				t.Fatalf("%s: flipped byte %d still verified", name, i)
			}
		}
	}
}

func TestVerifySignatureErrorDistinctFromMalformed(t *testing.T) {
	c := newTestCodec(t)
	other := newTestCodec(t)
	other.secret = []byte("a-different-secret")

	tok, err := other.IssueLegacy(9)
	if err != nil {
		t.Fatalf("IssueLegacy: %v", err)
	}
	if _, err := c.Verify(tok); !errors.Is(err, ErrSignature) {
		t.Fatalf("expected ErrSignature, got %v", err)
	}

	if _, err := c.Verify("not-a-token"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := c.Verify("a.b.c.d"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for four segments, got %v", err)
	}
}

func TestExpiryBoundary(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := issuedAt
	c := newTestCodec(t, WithClock(func() time.Time { return now }))

	const ttl = 10 * time.Minute
	tok, _, err := c.Issue(5, ttl)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = issuedAt.Add(ttl - time.Second)
	if _, err := c.Verify(tok); err != nil {
		t.Fatalf("token should verify 1s before expiry: %v", err)
	}

	now = issuedAt.Add(ttl + time.Second)
	if _, err := c.Verify(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired 1s after expiry, got %v", err)
	}
}

func TestLegacyExpiry(t *testing.T) {
	issuedAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	now := issuedAt
	c := newTestCodec(t,
		WithClock(func() time.Time { return now }),
		WithLegacyTTL(time.Hour),
	)

	tok, err := c.IssueLegacy(5)
	if err != nil {
		t.Fatalf("IssueLegacy: %v", err)
	}

	now = issuedAt.Add(59 * time.Minute)
	if _, err := c.Verify(tok); err != nil {
		t.Fatalf("legacy token should still verify: %v", err)
	}

	now = issuedAt.Add(61 * time.Minute)
	if _, err := c.Verify(tok); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	c := newTestCodec(t)

	// alg:none style token: valid header and payload, empty signature.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(`{"iss":"pontual","sub":"42","iat":1700000000,"exp":9999999999}`))
	if _, err := c.Verify(header + "." + payload + "."); err == nil {
		t.Fatal("unsigned token must not verify")
	}
}
