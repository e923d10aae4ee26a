package punch

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pontual.org/internal/audit"
	"pontual.org/internal/directory"
	"pontual.org/internal/facial"
	"pontual.org/internal/obs"
)

const defaultQRWindow = 300 * time.Second

// Request is one punch attempt. Exactly one identity credential is
// consulted, selected by Method. AuthenticatedID carries the bearer
// identity when the request arrived authenticated; for facial punches
// it must agree with the matcher verdict.
type Request struct {
	Method            Method
	Type              Type
	Code              string
	QRData            string
	Photo             []byte
	FingerprintSample string
	Latitude          *float64
	Longitude         *float64
	AuthenticatedID   *int64
	IP                string
	UserAgent         string
}

// Gate runs the punch registration pipeline: identity resolution,
// account and constraint checks, then the integrity commit. Every
// rejection is audited; the unauthenticated entry points (code, QR,
// biometrics) are attack surface and the audit trail is the record of
// what hit them.
type Gate struct {
	dir    directory.Store
	engine *Engine
	zones  ZoneStore
	audit  *audit.Recorder
	faces  facial.Matcher
	prints facial.TemplateStore

	secret             []byte
	qrWindow           time.Duration
	faceThreshold      float64
	fpThreshold        float64
	requireGeolocation bool
	requireGeofence    bool
	enabled            map[Method]bool
	now                func() time.Time
}

// GateOption configures Gate.
type GateOption func(*Gate)

// WithQRWindow overrides the QR validity window.
func WithQRWindow(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.qrWindow = d
		}
	}
}

// WithFaceMatcher wires the facial recognition collaborator.
func WithFaceMatcher(m facial.Matcher, threshold float64) GateOption {
	return func(g *Gate) {
		g.faces = m
		if threshold > 0 {
			g.faceThreshold = threshold
		}
	}
}

// WithFingerprints wires the enrolled template store.
func WithFingerprints(ts facial.TemplateStore, threshold float64) GateOption {
	return func(g *Gate) {
		g.prints = ts
		if threshold > 0 {
			g.fpThreshold = threshold
		}
	}
}

// WithGeofence wires the zone store and the location policy flags.
func WithGeofence(zs ZoneStore, requireGeolocation, requireGeofence bool) GateOption {
	return func(g *Gate) {
		g.zones = zs
		g.requireGeolocation = requireGeolocation
		g.requireGeofence = requireGeofence
	}
}

// WithMethodEnabled toggles one registration method. All methods start
// enabled.
func WithMethodEnabled(m Method, on bool) GateOption {
	return func(g *Gate) { g.enabled[m] = on }
}

// WithGateClock overrides the time source (tests).
func WithGateClock(fn func() time.Time) GateOption {
	return func(g *Gate) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGate constructs the punch gate. The secret signs QR payloads and
// must be the server-wide HMAC secret.
func NewGate(dir directory.Store, engine *Engine, rec *audit.Recorder, secret []byte, opts ...GateOption) *Gate {
	g := &Gate{
		dir:           dir,
		engine:        engine,
		audit:         rec,
		secret:        secret,
		qrWindow:      defaultQRWindow,
		faceThreshold: 0.40,
		fpThreshold:   0.85,
		now:           time.Now,
		enabled: map[Method]bool{
			MethodCode:        true,
			MethodQR:          true,
			MethodFacial:      true,
			MethodFingerprint: true,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Register runs one punch attempt end to end and returns the committed
// punch. The returned error is one of the package sentinels; the HTTP
// layer maps them to status codes without leaking which check failed.
func (g *Gate) Register(ctx context.Context, req *Request) (*Punch, error) {
	if !g.enabled[req.Method] {
		g.reject(ctx, req, nil, "method disabled")
		return nil, ErrMethodDisabled
	}
	if !req.Type.Valid() {
		g.reject(ctx, req, nil, "invalid punch type "+string(req.Type))
		return nil, ErrInvalidType
	}

	employee, similarity, err := g.resolve(ctx, req)
	if err != nil {
		var id *int64
		if employee != nil {
			id = &employee.ID
		}
		g.reject(ctx, req, id, "identity resolution failed: "+err.Error())
		return nil, err
	}

	if !employee.Active {
		g.reject(ctx, req, &employee.ID, "inactive account")
		return nil, ErrInactive
	}
	if err := g.checkGeofence(ctx, req); err != nil {
		g.reject(ctx, req, &employee.ID, "geofence: "+err.Error())
		return nil, err
	}
	if req.Method.Biometric() && !employee.BiometricConsent {
		g.reject(ctx, req, &employee.ID, "biometric consent missing")
		return nil, ErrConsentRequired
	}

	p := &Punch{
		EmployeeID:     employee.ID,
		Time:           g.now().UTC(),
		Type:           req.Type,
		Method:         req.Method,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		FaceSimilarity: similarity,
		IP:             req.IP,
		UserAgent:      req.UserAgent,
	}
	if err := g.engine.Register(ctx, p); err != nil {
		g.reject(ctx, req, &employee.ID, "commit failed: "+err.Error())
		return nil, err
	}

	obs.CountPunch(string(req.Method), "success")
	g.record(ctx, audit.Entry{
		EmployeeID: &employee.ID,
		Action:     "PUNCH_REGISTERED",
		Resource:   "time_punches",
		ResourceID: p.ID,
		Outcome:    "success",
		Detail:     fmt.Sprintf("method %s, type %s, nsr %d", p.Method, p.Type, p.NSR),
		IP:         req.IP,
		UserAgent:  req.UserAgent,
	})
	return p, nil
}

// resolve maps the request to an employee via the method's strategy.
// The second return is the face similarity when the facial matcher
// decided, nil otherwise.
func (g *Gate) resolve(ctx context.Context, req *Request) (*directory.Employee, *float64, error) {
	switch req.Method {
	case MethodCode:
		code := strings.TrimSpace(req.Code)
		if code == "" {
			return nil, nil, ErrInvalidCode
		}
		e, err := g.dir.FindByCode(ctx, code)
		if err != nil {
			return nil, nil, ErrInvalidCode
		}
		return e, nil, nil

	case MethodQR:
		id, err := g.parseQR(req.QRData)
		if err != nil {
			return nil, nil, err
		}
		e, err := g.dir.Find(ctx, id)
		if err != nil {
			return nil, nil, ErrInvalidCode
		}
		return e, nil, nil

	case MethodFacial:
		if g.faces == nil {
			return nil, nil, ErrMatcherUnavailable
		}
		match, err := g.faces.Recognize(ctx, req.Photo, g.faceThreshold)
		if err != nil {
			if errors.Is(err, facial.ErrUnavailable) {
				return nil, nil, ErrMatcherUnavailable
			}
			return nil, nil, err
		}
		if !match.Recognized || match.Similarity < g.faceThreshold {
			return nil, nil, ErrNotRecognized
		}
		// The matcher verdict is authoritative. A valid bearer token for
		// someone else's account plus this face must not punch for the
		// token's owner, and vice versa.
		if req.AuthenticatedID != nil && *req.AuthenticatedID != match.EmployeeID {
			return nil, nil, ErrIdentityMismatch
		}
		e, err := g.dir.Find(ctx, match.EmployeeID)
		if err != nil {
			return nil, nil, ErrNotRecognized
		}
		sim := match.Similarity
		return e, &sim, nil

	case MethodFingerprint:
		if g.prints == nil {
			return nil, nil, ErrMatcherUnavailable
		}
		templates, err := g.prints.ActiveTemplates(ctx)
		if err != nil {
			return nil, nil, ErrMatcherUnavailable
		}
		match, ok := facial.BestMatch(templates, req.FingerprintSample, g.fpThreshold)
		if !ok {
			return nil, nil, ErrNotRecognized
		}
		e, err := g.dir.Find(ctx, match.EmployeeID)
		if err != nil {
			return nil, nil, ErrNotRecognized
		}
		return e, nil, nil
	}
	return nil, nil, ErrMethodDisabled
}

func (g *Gate) checkGeofence(ctx context.Context, req *Request) error {
	hasPoint := req.Latitude != nil && req.Longitude != nil
	if !hasPoint {
		if g.requireGeolocation {
			return ErrGeolocationRequired
		}
		return nil
	}
	if g.zones == nil {
		return nil
	}
	zones, err := g.zones.Zones(ctx)
	if err != nil {
		return err
	}
	if len(zones) == 0 && !g.requireGeofence {
		return nil
	}
	if !WithinAny(zones, *req.Latitude, *req.Longitude) {
		return ErrOutsideGeofence
	}
	return nil
}

// GenerateQRData builds the signed payload a kiosk display encodes for
// the employee: EMP-{id}-{unix}-{signature}.
func (g *Gate) GenerateQRData(employeeID int64, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("EMP-%d-%d-%s", employeeID, ts, g.qrSign(employeeID, ts))
}

func (g *Gate) qrSign(employeeID, ts int64) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%d-%d", employeeID, ts)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *Gate) parseQR(data string) (int64, error) {
	data = strings.TrimSpace(data)
	parts := strings.Split(data, "-")
	if len(parts) != 4 || parts[0] != "EMP" {
		return 0, ErrQRMalformed
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrQRMalformed
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, ErrQRMalformed
	}
	if g.now().Unix()-ts > int64(g.qrWindow/time.Second) {
		return 0, ErrQRExpired
	}
	expect := g.qrSign(id, ts)
	if subtle.ConstantTimeCompare([]byte(expect), []byte(parts[3])) != 1 {
		return 0, ErrQRSignature
	}
	return id, nil
}

func (g *Gate) reject(ctx context.Context, req *Request, employeeID *int64, detail string) {
	obs.CountPunch(string(req.Method), "denied")
	g.record(ctx, audit.Entry{
		EmployeeID: employeeID,
		Action:     "PUNCH_REJECTED",
		Resource:   "time_punches",
		Outcome:    "denied",
		Detail:     fmt.Sprintf("method %s: %s", req.Method, detail),
		IP:         req.IP,
		UserAgent:  req.UserAgent,
	})
}

func (g *Gate) record(ctx context.Context, entry audit.Entry) {
	if g.audit == nil {
		return
	}
	_ = g.audit.Record(ctx, entry)
}
