package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"pontual.org/internal/oauth"
)

type tokenRequest struct {
	GrantType         string `json:"grant_type"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	RefreshToken      string `json:"refresh_token"`
	Scope             string `json:"scope"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

func (a *API) oauthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	device := req.DeviceFingerprint
	if device == "" {
		device = r.Header.Get("X-Device-Fingerprint")
	}

	var (
		pair oauth.Pair
		err  error
	)
	switch req.GrantType {
	case "password":
		var scopes []string
		if s := strings.TrimSpace(req.Scope); s != "" {
			scopes = strings.Fields(s)
		}
		pair, _, err = a.deps.Tokens.PasswordGrant(r.Context(), req.Username, req.Password, device, scopes)
	case "refresh_token":
		pair, _, err = a.deps.Tokens.Refresh(r.Context(), req.RefreshToken, device)
	default:
		writeError(w, http.StatusBadRequest, "unsupported grant_type")
		return
	}
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidCredentials) || errors.Is(err, oauth.ErrTokenNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid grant")
			return
		}
		writeError(w, http.StatusInternalServerError, "token grant failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    pair.ExpiresIn,
		"scope":         strings.Join(pair.Scopes, " "),
	})
}

type revokeRequest struct {
	TokenID string `json:"token_id"`
}

// oauthRevoke revokes one of the caller's own sessions. The id must
// belong to the caller: revoking arbitrary ids by guessing is exactly
// the IDOR shape this endpoint must not have.
func (a *API) oauthRevoke(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}
	var req revokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TokenID == "" {
		writeError(w, http.StatusBadRequest, "token_id is required")
		return
	}

	owned, err := a.deps.Tokens.ActiveTokens(r.Context(), identity.Employee.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "revoke failed")
		return
	}
	found := false
	for _, tok := range owned {
		if tok.ID == req.TokenID {
			found = true
			break
		}
	}
	if !found {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}

	if err := a.deps.Tokens.Revoke(r.Context(), req.TokenID, identity.Employee.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "revoke failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type revokeAllRequest struct {
	KeepCurrentDevice bool `json:"keep_current_device"`
}

func (a *API) oauthRevokeAll(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}
	var req revokeAllRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	var keep string
	if req.KeepCurrentDevice {
		keep = r.Header.Get("X-Device-Fingerprint")
	}

	count, err := a.deps.Tokens.RevokeAll(r.Context(), identity.Employee.ID, keep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "revoke failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": count})
}

type tokenMetadata struct {
	ID                string     `json:"id"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	Scopes            []string   `json:"scopes"`
	IssuedAt          time.Time  `json:"issued_at"`
	AccessExpiresAt   time.Time  `json:"access_expires_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

// oauthTokens lists the caller's live sessions. Metadata only: raw
// token values never appear in list responses.
func (a *API) oauthTokens(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}
	tokens, err := a.deps.Tokens.ActiveTokens(r.Context(), identity.Employee.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	out := make([]tokenMetadata, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, tokenMetadata{
			ID:                tok.ID,
			DeviceFingerprint: tok.DeviceFingerprint,
			Scopes:            tok.Scopes,
			IssuedAt:          tok.IssuedAt,
			AccessExpiresAt:   tok.AccessExpiresAt,
			LastUsedAt:        tok.LastUsedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}
