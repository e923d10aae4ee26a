package oauth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pontual.org/internal/audit"
	"pontual.org/internal/directory"
)

func testDirectory(t *testing.T) directory.Store {
	t.Helper()
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return directory.NewMemory(
		&directory.Employee{
			ID: 1, Name: "Ana", Email: "ana@example.com",
			PasswordHash: hash, Role: directory.RoleEmployee,
			Department: "Vendas", Code: "1001", Active: true,
		},
		&directory.Employee{
			ID: 2, Name: "Bruno", Email: "bruno@example.com",
			PasswordHash: hash, Role: directory.RoleEmployee,
			Department: "Engenharia", Code: "1002", Active: false,
		},
	)
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *audit.Memory) {
	t.Helper()
	sink := audit.NewMemory()
	svc := NewService(NewMemory(), testDirectory(t), audit.NewRecorder(sink), opts...)
	return svc, sink
}

func TestPasswordGrantSuccess(t *testing.T) {
	svc, _ := newTestService(t)

	pair, employee, err := svc.PasswordGrant(context.Background(), "ana@example.com", "correct horse", "device-1", nil)
	if err != nil {
		t.Fatalf("PasswordGrant: %v", err)
	}
	if employee.ID != 1 {
		t.Fatalf("unexpected employee: %d", employee.ID)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected non-empty token pair")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
	if len(pair.Scopes) != 2 {
		t.Fatalf("expected default scopes, got %v", pair.Scopes)
	}

	tok, err := svc.Validate(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tok.EmployeeID != 1 {
		t.Fatalf("unexpected token owner: %d", tok.EmployeeID)
	}
	if !tok.HasScope(ScopeRead) {
		t.Fatal("expected api.read scope")
	}
}

func TestPasswordGrantGenericFailure(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "nobody@example.com", "correct horse"},
		{"bad password", "ana@example.com", "wrong"},
		{"inactive account", "bruno@example.com", "correct horse"},
	}
	for _, tc := range cases {
		_, _, err := svc.PasswordGrant(ctx, tc.username, tc.password, "device-1", nil)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", tc.name, err)
		}
	}

	// The generic error hides the reason, but the audit trail keeps it.
	entries := sink.Entries()
	if len(entries) != len(cases) {
		t.Fatalf("expected %d audit entries, got %d", len(cases), len(entries))
	}
	for _, e := range entries {
		if e.Action != "OAUTH_LOGIN_FAILED" {
			t.Fatalf("unexpected audit action: %s", e.Action)
		}
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pair, _, err := svc.PasswordGrant(ctx, "ana@example.com", "correct horse", "device-1", []string{ScopeRead})
	if err != nil {
		t.Fatalf("PasswordGrant: %v", err)
	}

	next, employee, err := svc.Refresh(ctx, pair.RefreshToken, "device-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if employee.ID != 1 {
		t.Fatalf("unexpected employee: %d", employee.ID)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if len(next.Scopes) != 1 || next.Scopes[0] != ScopeRead {
		t.Fatalf("scopes not carried over: %v", next.Scopes)
	}

	// Old pair is dead after rotation.
	if _, err := svc.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("old access token should be invalid, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken, "device-1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("old refresh token should be invalid, got %v", err)
	}

	// New pair works.
	if _, err := svc.Validate(ctx, next.AccessToken); err != nil {
		t.Fatalf("new access token should validate: %v", err)
	}
}

func TestRefreshDeviceMismatchIsSoft(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()

	pair, _, err := svc.PasswordGrant(ctx, "ana@example.com", "correct horse", "device-1", nil)
	if err != nil {
		t.Fatalf("PasswordGrant: %v", err)
	}

	if _, _, err := svc.Refresh(ctx, pair.RefreshToken, "device-2"); err != nil {
		t.Fatalf("device mismatch must not reject the refresh: %v", err)
	}

	found := false
	for _, e := range sink.Entries() {
		if e.Action == "OAUTH_DEVICE_MISMATCH" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected device mismatch audit entry")
	}
}

func TestRefreshExpired(t *testing.T) {
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t,
		WithRefreshTTL(time.Hour),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	pair, _, err := svc.PasswordGrant(ctx, "ana@example.com", "correct horse", "device-1", nil)
	if err != nil {
		t.Fatalf("PasswordGrant: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken, "device-1"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound for expired refresh, got %v", err)
	}
}

func TestRevokeAllIsIdempotentAndCounts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.PasswordGrant(ctx, "ana@example.com", "correct horse", "device-1", nil); err != nil {
			t.Fatalf("PasswordGrant: %v", err)
		}
	}
	keep, _, err := svc.PasswordGrant(ctx, "ana@example.com", "correct horse", "device-keep", nil)
	if err != nil {
		t.Fatalf("PasswordGrant: %v", err)
	}

	count, err := svc.RevokeAll(ctx, 1, "device-keep")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked, got %d", count)
	}
	if _, err := svc.Validate(ctx, keep.AccessToken); err != nil {
		t.Fatalf("excepted device should survive revoke-all: %v", err)
	}

	// Second call revokes nothing and is not an error.
	count, err = svc.RevokeAll(ctx, 1, "device-keep")
	if err != nil {
		t.Fatalf("RevokeAll (repeat): %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 revoked on repeat, got %d", count)
	}
}

func TestRevokeAllRefreshRaceEndsRevoked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		pair, _, err := svc.PasswordGrant(ctx, "ana@example.com", "correct horse", "device-1", nil)
		if err != nil {
			t.Fatalf("PasswordGrant: %v", err)
		}

		var (
			wg       sync.WaitGroup
			nextPair Pair
			refErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			nextPair, _, refErr = svc.Refresh(ctx, pair.RefreshToken, "device-1")
		}()
		go func() {
			defer wg.Done()
			if _, err := svc.RevokeAll(ctx, 1, ""); err != nil {
				t.Errorf("RevokeAll: %v", err)
			}
		}()
		wg.Wait()

		// Settle: after both complete, run revoke-all once more to model
		// "after the revoke completes". If the refresh won the race its
		// freshly minted token must be caught here; if it lost, it must
		// have returned an error.
		if _, err := svc.RevokeAll(ctx, 1, ""); err != nil {
			t.Fatalf("RevokeAll (settle): %v", err)
		}
		if refErr == nil {
			if _, err := svc.Validate(ctx, nextPair.AccessToken); !errors.Is(err, ErrTokenNotFound) {
				t.Fatalf("round %d: refreshed token survived revoke-all: %v", round, err)
			}
		} else if !errors.Is(refErr, ErrTokenNotFound) {
			t.Fatalf("round %d: unexpected refresh error: %v", round, refErr)
		}
	}
}

func TestActiveTokensExposeMetadataOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.PasswordGrant(ctx, "ana@example.com", "correct horse", "device-1", nil); err != nil {
		t.Fatalf("PasswordGrant: %v", err)
	}

	tokens, err := svc.ActiveTokens(ctx, 1)
	if err != nil {
		t.Fatalf("ActiveTokens: %v", err)
	}
	if len(tokens) != 1 {
		t.Fatalf("expected 1 active token, got %d", len(tokens))
	}
	tok := tokens[0]
	if tok.AccessHash != "" || tok.RefreshHash != "" {
		t.Fatal("token hashes must not be exposed in listings")
	}
	if tok.DeviceFingerprint != "device-1" {
		t.Fatalf("unexpected device: %s", tok.DeviceFingerprint)
	}
}
