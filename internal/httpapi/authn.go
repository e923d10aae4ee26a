package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pontual.org/internal/directory"
	"pontual.org/internal/obs"
	"pontual.org/internal/token"
)

const (
	authHeader   = "Authorization"
	bearerScheme = "bearer "
)

// Identity is the resolved caller: the employee plus how they
// authenticated. Scopes is nil for stateless tokens, which carry the
// full default grant.
type Identity struct {
	Employee *directory.Employee
	Scopes   []string
	Format   token.Format // zero for opaque oauth tokens
}

// HasScope reports whether the identity may use the named scope.
func (id *Identity) HasScope(scope string) bool {
	if id.Scopes == nil {
		return true
	}
	for _, s := range id.Scopes {
		if s == scope || s == "*" {
			return true
		}
	}
	return false
}

type identityKey struct{}

func contextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func identityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Endpoints reachable without a bearer token. The punch registration
// endpoints are kiosk entry points: a token is optional there, but when
// one is present it is still resolved so the facial identity check can
// compare against it.
var publicPaths = map[string]bool{
	"/healthz":        true,
	"/readyz":         true,
	"/metrics":        true,
	"/v1/info":        true,
	"/api/auth/login": true,
	"/oauth/token":    true,
}

var kioskPaths = map[string]bool{
	"/punch":             true,
	"/punch/code":        true,
	"/punch/qrcode":      true,
	"/punch/face":        true,
	"/punch/fingerprint": true,
}

// withAuth resolves the Authorization header on every request. Public
// paths pass through; kiosk paths get best-effort resolution; all other
// paths require a valid identity and uniformly answer 401 otherwise.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.resolveIdentity(r.Context(), r.Header.Get(authHeader))
		if kioskPaths[r.URL.Path] {
			if identity != nil {
				r = r.WithContext(contextWithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
			return
		}
		if err != nil || identity == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), identity)))
	})
}

// resolveIdentity maps a bearer token to an employee. Dotted tokens go
// through the stateless codec; opaque hex values through the oauth
// store. Every failure collapses to a nil identity for the caller; the
// precise reason only feeds metrics and logs.
func (a *API) resolveIdentity(ctx context.Context, header string) (*Identity, error) {
	raw, ok := extractBearer(header)
	if !ok {
		return nil, errors.New("missing bearer token")
	}

	var (
		employeeID int64
		scopes     []string
		format     token.Format
	)
	if strings.Contains(raw, ".") {
		payload, err := a.deps.Codec.Verify(raw)
		if err != nil {
			obs.CountAuthFailure(codecFailReason(err))
			return nil, err
		}
		employeeID = payload.EmployeeID
		format = payload.Format
	} else {
		tok, err := a.deps.Tokens.Validate(ctx, raw)
		if err != nil {
			obs.CountAuthFailure("oauth_token_invalid")
			return nil, err
		}
		employeeID = tok.EmployeeID
		scopes = tok.Scopes
	}

	employee, err := a.deps.Directory.Find(ctx, employeeID)
	if err != nil {
		obs.CountAuthFailure("employee_not_found")
		return nil, err
	}
	if !employee.Active {
		obs.CountAuthFailure("inactive_account")
		return nil, errors.New("inactive account")
	}
	return &Identity{Employee: employee, Scopes: scopes, Format: format}, nil
}

func codecFailReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "token_expired"
	case errors.Is(err, token.ErrSignature):
		return "token_signature"
	default:
		return "token_malformed"
	}
}

// extractBearer pulls the token out of the Authorization header. The
// scheme match is case-insensitive; empty or whitespace-only headers
// are treated as absent.
func extractBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}
	if len(header) < len(bearerScheme) ||
		!strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearerScheme):])
	if tok == "" {
		return "", false
	}
	return tok, true
}

// requireIdentity returns the caller or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) *Identity {
	id := identityFrom(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil
	}
	return id
}

// requireRole writes 403 unless the identity's role is one of the
// allowed set. Exact match only: admin does not implicitly satisfy a
// manager-only check.
func requireRole(w http.ResponseWriter, id *Identity, roles ...directory.Role) bool {
	for _, role := range roles {
		if id.Employee.Role == role {
			return true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden")
	return false
}

// canAccessEmployee applies the record-access rule used by verify and
// listing endpoints: everyone sees their own records, admins see all,
// managers see their own department only.
func canAccessEmployee(id *Identity, target *directory.Employee) bool {
	switch {
	case id.Employee.ID == target.ID:
		return true
	case id.Employee.Role == directory.RoleAdmin:
		return true
	case id.Employee.Role == directory.RoleManager:
		return id.Employee.Department == target.Department
	}
	return false
}
