package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"pontual.org/internal/audit"
	"pontual.org/internal/oauth"
	"pontual.org/internal/punch"
)

type punchRequest struct {
	Method      string   `json:"method"`
	Type        string   `json:"type"`
	Code        string   `json:"code"`
	QRData      string   `json:"qr_data"`
	Photo       string   `json:"photo"` // base64
	Fingerprint string   `json:"fingerprint"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

func (a *API) punchGeneric(w http.ResponseWriter, r *http.Request) {
	var req punchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	method := punch.Method(req.Method)
	switch method {
	case punch.MethodCode, punch.MethodQR, punch.MethodFacial, punch.MethodFingerprint:
	default:
		writeError(w, http.StatusBadRequest, "unknown method")
		return
	}
	a.registerPunch(w, r, method, &req)
}

func (a *API) punchWith(method punch.Method) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req punchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		a.registerPunch(w, r, method, &req)
	}
}

func (a *API) registerPunch(w http.ResponseWriter, r *http.Request, method punch.Method, req *punchRequest) {
	var photo []byte
	if req.Photo != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Photo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "photo must be base64")
			return
		}
		photo = decoded
	}

	gateReq := &punch.Request{
		Method:            method,
		Type:              punch.Type(req.Type),
		Code:              req.Code,
		QRData:            req.QRData,
		Photo:             photo,
		FingerprintSample: req.Fingerprint,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		IP:                clientIP(r),
		UserAgent:         r.UserAgent(),
	}
	if identity := identityFrom(r.Context()); identity != nil {
		gateReq.AuthenticatedID = &identity.Employee.ID
		if !identity.HasScope(oauth.ScopeWrite) {
			writeError(w, http.StatusForbidden, "insufficient scope")
			return
		}
	}

	p, err := a.deps.Gate.Register(r.Context(), gateReq)
	if err != nil {
		status, msg := punchErrorStatus(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         p.ID,
		"nsr":        p.NSR,
		"hash":       p.Hash,
		"punch_time": p.Time.Format(time.RFC3339),
	})
}

// punchErrorStatus maps gate sentinels to the API taxonomy. Messages
// stay generic: the response never confirms whether a code or identity
// exists, and never names the failed check beyond what the client needs.
func punchErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, punch.ErrInvalidCode),
		errors.Is(err, punch.ErrNotRecognized):
		return http.StatusNotFound, "not recognized"
	case errors.Is(err, punch.ErrQRMalformed),
		errors.Is(err, punch.ErrInvalidType):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, punch.ErrQRExpired),
		errors.Is(err, punch.ErrQRSignature):
		return http.StatusUnauthorized, "invalid or expired code"
	case errors.Is(err, punch.ErrIdentityMismatch):
		return http.StatusForbidden, "identity mismatch"
	case errors.Is(err, punch.ErrInactive):
		return http.StatusForbidden, "account unavailable"
	case errors.Is(err, punch.ErrConsentRequired):
		return http.StatusForbidden, "consent_required"
	case errors.Is(err, punch.ErrGeolocationRequired):
		return http.StatusBadRequest, "geolocation required"
	case errors.Is(err, punch.ErrOutsideGeofence):
		return http.StatusForbidden, "outside allowed area"
	case errors.Is(err, punch.ErrDuplicateWindow):
		return http.StatusTooManyRequests, "punch already registered, wait before retrying"
	case errors.Is(err, punch.ErrMethodDisabled):
		return http.StatusForbidden, "method disabled"
	case errors.Is(err, punch.ErrMatcherUnavailable):
		return http.StatusServiceUnavailable, "matcher unavailable, try again"
	default:
		return http.StatusInternalServerError, "punch failed"
	}
}

// punchVerify recomputes the integrity hash of one punch. Access is the
// IDOR-sensitive part: the owner, an admin, or a manager of the same
// department. Violations are audited as security events with actor and
// target.
func (a *API) punchVerify(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}

	id := r.PathValue("id")
	p, err := a.deps.Engine.Verify(r.Context(), id)
	if errors.Is(err, punch.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil && !errors.Is(err, punch.ErrIntegrity) {
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	target, derr := a.deps.Directory.Find(r.Context(), p.EmployeeID)
	if derr != nil {
		writeError(w, http.StatusInternalServerError, "verification failed")
		return
	}
	if !canAccessEmployee(identity, target) {
		a.recordSecurityEvent(r, identity.Employee.ID, p.ID, fmt.Sprintf(
			"punch verify denied: actor %d (%s/%s) requested punch of employee %d (%s)",
			identity.Employee.ID, identity.Employee.Role, identity.Employee.Department,
			target.ID, target.Department))
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nsr":      p.NSR,
		"hash":     p.Hash,
		"is_valid": !errors.Is(err, punch.ErrIntegrity),
	})
}

func (a *API) punchToday(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}
	punches, err := a.deps.Punches.ListForDay(r.Context(), identity.Employee.ID, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}
	out := make([]map[string]any, 0, len(punches))
	for _, p := range punches {
		out = append(out, map[string]any{
			"id":         p.ID,
			"punch_time": p.Time.Format(time.RFC3339),
			"type":       p.Type,
			"method":     p.Method,
			"nsr":        p.NSR,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"punches": out})
}

// punchGeofences returns the active zones, with the caller's distance
// to each when a location is supplied.
func (a *API) punchGeofences(w http.ResponseWriter, r *http.Request) {
	identity := requireIdentity(w, r)
	if identity == nil {
		return
	}
	if a.deps.Zones == nil {
		writeJSON(w, http.StatusOK, map[string]any{"zones": []any{}})
		return
	}
	zones, err := a.deps.Zones.Zones(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing failed")
		return
	}

	lat, lon, hasPoint := queryPoint(r)
	out := make([]map[string]any, 0, len(zones))
	for _, z := range zones {
		if !z.Active {
			continue
		}
		item := map[string]any{
			"id":        z.ID,
			"name":      z.Name,
			"latitude":  z.Latitude,
			"longitude": z.Longitude,
			"radius_m":  z.RadiusM,
		}
		if hasPoint {
			item["distance_m"] = math.Round(z.DistanceM(lat, lon))
			item["within"] = z.Contains(lat, lon)
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": out})
}

func queryPoint(r *http.Request) (lat, lon float64, ok bool) {
	q := r.URL.Query()
	if q.Get("latitude") == "" || q.Get("longitude") == "" {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(q.Get("latitude"), "%f", &lat); err != nil {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(q.Get("longitude"), "%f", &lon); err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func (a *API) recordSecurityEvent(r *http.Request, actorID int64, resourceID, detail string) {
	if a.deps.Audit == nil {
		return
	}
	_ = a.deps.Audit.Record(r.Context(), audit.Entry{
		EmployeeID: &actorID,
		Action:     "ACCESS_DENIED",
		Resource:   "time_punches",
		ResourceID: resourceID,
		Outcome:    "denied",
		Detail:     detail,
		IP:         clientIP(r),
		UserAgent:  r.UserAgent(),
	})
}
