package httpapi

import (
	"errors"
	"net/http"

	"pontual.org/internal/oauth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// login authenticates credentials and answers with a stateless signed
// token. Failures are uniformly 401 with a generic message; the reason
// lives in the audit trail.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	employee, err := a.deps.Tokens.VerifyLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	signed, _, err := a.deps.Codec.Issue(employee.ID, a.deps.LoginTokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      signed,
		"token_type": "Bearer",
		"expires_in": int(a.deps.LoginTokenTTL.Seconds()),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "new password must have at least 8 characters")
		return
	}

	device := r.Header.Get("X-Device-Fingerprint")
	err := a.deps.Tokens.ChangePassword(r.Context(), identity.Employee.ID,
		req.CurrentPassword, req.NewPassword, device)
	if err != nil {
		if errors.Is(err, oauth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "password change failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
