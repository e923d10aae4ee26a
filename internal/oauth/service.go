// Package oauth implements the stateful token subsystem: password and
// refresh grants, revocation, and bearer validation for opaque tokens.
// Stateless (JWT) tokens are handled by internal/token; the two converge
// in the HTTP layer's auth resolver.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"pontual.org/internal/audit"
	"pontual.org/internal/directory"
	"pontual.org/internal/ids"
	"pontual.org/internal/obs"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour

	ScopeRead  = "api.read"
	ScopeWrite = "api.write"
)

var defaultScopes = []string{ScopeRead, ScopeWrite}

// Pair is the result of a successful grant. Raw token values appear here
// and nowhere else.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	Scopes       []string
}

// Service issues, refreshes, validates and revokes persisted tokens.
type Service struct {
	store      Store
	dir        directory.Store
	audit      *audit.Recorder
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service.
type ServiceOption func(*Service)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the token service.
func NewService(store Store, dir directory.Store, rec *audit.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		dir:        dir,
		audit:      rec,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PasswordGrant authenticates credentials and mints a token pair bound to
// the device fingerprint. All credential failures collapse into
// ErrInvalidCredentials; the precise reason goes to the audit sink.
func (s *Service) PasswordGrant(ctx context.Context, username, password, device string, scopes []string) (Pair, *directory.Employee, error) {
	employee, reason, err := verifyCredentials(ctx, s.dir, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			obs.CountAuthFailure(string(reason))
			s.record(ctx, nil, "OAUTH_LOGIN_FAILED", "denied",
				fmt.Sprintf("password grant for %q: %s", username, reason))
		}
		return Pair{}, nil, err
	}

	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	pair, tok, err := s.mint(employee.ID, device, scopes)
	if err != nil {
		return Pair{}, nil, err
	}
	if err := s.store.Create(ctx, tok); err != nil {
		return Pair{}, nil, err
	}

	s.record(ctx, &employee.ID, "OAUTH_LOGIN", "success",
		fmt.Sprintf("password grant, device %s", shortDevice(device)))
	return pair, employee, nil
}

// VerifyLogin checks credentials without minting stateful tokens. The
// stateless login endpoint uses it before signing a JWT. Failure
// semantics match PasswordGrant: one generic error, detailed audit.
func (s *Service) VerifyLogin(ctx context.Context, username, password string) (*directory.Employee, error) {
	employee, reason, err := verifyCredentials(ctx, s.dir, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			obs.CountAuthFailure(string(reason))
			s.record(ctx, nil, "LOGIN_FAILED", "denied",
				fmt.Sprintf("login for %q: %s", username, reason))
		}
		return nil, err
	}
	s.record(ctx, &employee.ID, "LOGIN", "success", "stateless token issued")
	return employee, nil
}

// Refresh rotates the pair identified by the refresh token. A device
// fingerprint mismatch is audited but does not reject the request: mobile
// clients legitimately change networks, so continuity is a soft signal.
func (s *Service) Refresh(ctx context.Context, refreshToken, device string) (Pair, *directory.Employee, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Pair{}, nil, ErrTokenNotFound
	}
	now := s.now().UTC()

	record, err := s.store.FindByRefreshHash(ctx, hashToken(refreshToken))
	if err != nil {
		return Pair{}, nil, err
	}
	if record.Revoked || now.After(record.RefreshExpiresAt) {
		s.record(ctx, &record.EmployeeID, "OAUTH_REFRESH_FAILED", "denied", "refresh token revoked or expired")
		return Pair{}, nil, ErrTokenNotFound
	}
	if device != "" && record.DeviceFingerprint != "" && device != record.DeviceFingerprint {
		s.record(ctx, &record.EmployeeID, "OAUTH_DEVICE_MISMATCH", "flagged",
			fmt.Sprintf("refresh from device %s, token bound to %s",
				shortDevice(device), shortDevice(record.DeviceFingerprint)))
	}

	employee, err := s.dir.Find(ctx, record.EmployeeID)
	if err != nil {
		return Pair{}, nil, ErrTokenNotFound
	}
	if !employee.Active {
		s.record(ctx, &employee.ID, "OAUTH_REFRESH_FAILED", "denied", "inactive account")
		return Pair{}, nil, ErrTokenNotFound
	}

	pair, next, err := s.mint(record.EmployeeID, record.DeviceFingerprint, record.Scopes)
	if err != nil {
		return Pair{}, nil, err
	}
	if err := s.store.Rotate(ctx, record.ID, next); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			// Lost the race against a revoke: the rotation never happened.
			return Pair{}, nil, ErrTokenNotFound
		}
		return Pair{}, nil, err
	}

	s.record(ctx, &employee.ID, "OAUTH_REFRESHED", "success", "refresh token rotated")
	return pair, employee, nil
}

// ChangePassword verifies the current password and replaces the stored
// hash. Every other session of the employee is revoked so a stolen
// session cannot outlive the credential change.
func (s *Service) ChangePassword(ctx context.Context, employeeID int64, current, next, keepDevice string) error {
	employee, err := s.dir.Find(ctx, employeeID)
	if err != nil {
		return ErrInvalidCredentials
	}
	if err := VerifyPassword(employee.PasswordHash, current); err != nil {
		obs.CountAuthFailure(string(reasonBadPassword))
		s.record(ctx, &employeeID, "PASSWORD_CHANGE_FAILED", "denied", "current password mismatch")
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.dir.UpdatePassword(ctx, employeeID, hash); err != nil {
		return err
	}
	if _, err := s.store.RevokeAll(ctx, employeeID, keepDevice); err != nil {
		return err
	}
	s.record(ctx, &employeeID, "PASSWORD_CHANGED", "success", "other sessions revoked")
	return nil
}

// Validate resolves an opaque access token to its row, enforcing the
// revoked flag and expiry, and stamps last-used.
func (s *Service) Validate(ctx context.Context, accessToken string) (*Token, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrTokenNotFound
	}
	record, err := s.store.FindByAccessHash(ctx, hashToken(accessToken))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if record.Revoked || now.After(record.AccessExpiresAt) {
		return nil, ErrTokenNotFound
	}
	_ = s.store.Touch(ctx, record.ID, now)
	return record, nil
}

// Revoke marks one token revoked. Revoking an already-revoked token is
// not an error.
func (s *Service) Revoke(ctx context.Context, tokenID string, employeeID int64) error {
	if err := s.store.MarkRevoked(ctx, tokenID); err != nil {
		return err
	}
	s.record(ctx, &employeeID, "OAUTH_REVOKED", "success", "token "+tokenID)
	return nil
}

// RevokeAll revokes every live token of the employee, optionally sparing
// the calling device, and returns the number revoked.
func (s *Service) RevokeAll(ctx context.Context, employeeID int64, exceptDevice string) (int, error) {
	count, err := s.store.RevokeAll(ctx, employeeID, exceptDevice)
	if err != nil {
		return 0, err
	}
	s.record(ctx, &employeeID, "OAUTH_REVOKED_ALL", "success",
		fmt.Sprintf("%d tokens revoked", count))
	return count, nil
}

// ActiveTokens lists live sessions for display. Only metadata: the raw
// token values cannot be recovered and the hashes are not exposed either.
func (s *Service) ActiveTokens(ctx context.Context, employeeID int64) ([]*Token, error) {
	tokens, err := s.store.ListActive(ctx, employeeID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	for _, tok := range tokens {
		tok.AccessHash = ""
		tok.RefreshHash = ""
	}
	return tokens, nil
}

// AccessTTL reports the configured access token lifetime in seconds, for
// the expires_in response field.
func (s *Service) AccessTTL() int {
	return int(s.accessTTL / time.Second)
}

func (s *Service) mint(employeeID int64, device string, scopes []string) (Pair, *Token, error) {
	access, err := newOpaqueToken()
	if err != nil {
		return Pair{}, nil, err
	}
	refresh, err := newOpaqueToken()
	if err != nil {
		return Pair{}, nil, err
	}
	now := s.now().UTC()
	tok := &Token{
		ID:                ids.New(),
		EmployeeID:        employeeID,
		AccessHash:        hashToken(access),
		RefreshHash:       hashToken(refresh),
		DeviceFingerprint: device,
		Scopes:            append([]string(nil), scopes...),
		IssuedAt:          now,
		AccessExpiresAt:   now.Add(s.accessTTL),
		RefreshExpiresAt:  now.Add(s.refreshTTL),
	}
	pair := Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.AccessTTL(),
		Scopes:       append([]string(nil), scopes...),
	}
	return pair, tok, nil
}

func (s *Service) record(ctx context.Context, employeeID *int64, action, outcome, detail string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, audit.Entry{
		EmployeeID: employeeID,
		Action:     action,
		Resource:   "oauth_tokens",
		Outcome:    outcome,
		Detail:     detail,
	})
}

// HasScope reports whether the token grants the required scope. The "*"
// wildcard grants everything.
func (t *Token) HasScope(required string) bool {
	for _, s := range t.Scopes {
		if s == required || s == "*" {
			return true
		}
	}
	return false
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func shortDevice(device string) string {
	if len(device) <= 12 {
		if device == "" {
			return "(none)"
		}
		return device
	}
	return device[:12]
}
