// Package token implements the signed bearer token formats accepted by
// the API. Two wire formats coexist for compatibility with tokens issued
// by earlier releases; both are verified through the same Codec and are
// discriminated by segment count, never by ad hoc parsing at call sites.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Format tags which wire encoding a verified token used.
type Format int

const (
	// FormatV1 is the legacy two-segment encoding:
	// base64(payload_json) "." hex(hmac_sha256(payload_b64, secret)).
	// Expiry is implicit: issued-at plus a fixed TTL.
	FormatV1 Format = iota + 1
	// FormatV2 is an HS256 JWT with an embedded exp claim. All newly
	// issued stateless tokens use this format.
	FormatV2
)

var (
	ErrMalformed = errors.New("token: malformed")
	ErrSignature = errors.New("token: invalid signature")
	ErrExpired   = errors.New("token: expired")
)

// Payload is the verified content of either format.
type Payload struct {
	EmployeeID int64
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Format     Format
}

const defaultLegacyTTL = 24 * time.Hour

// Codec signs and verifies stateless tokens. It knows nothing about
// employees or storage.
type Codec struct {
	secret    []byte
	issuer    string
	legacyTTL time.Duration
	now       func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithLegacyTTL overrides the fixed lifetime applied to V1 tokens.
func WithLegacyTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.legacyTTL = ttl
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec. The secret is mandatory: there is no
// fallback value, and the caller is expected to fail startup on error.
func NewCodec(secret, issuer string, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	c := &Codec{
		secret:    []byte(secret),
		issuer:    issuer,
		legacyTTL: defaultLegacyTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a V2 token for the employee with the given lifetime.
func (c *Codec) Issue(employeeID int64, ttl time.Duration) (string, time.Time, error) {
	if employeeID <= 0 {
		return "", time.Time{}, errors.New("token: employee id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token: ttl must be positive")
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   strconv.FormatInt(employeeID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// legacyPayload is the V1 JSON body. Field names are part of the wire
// format and must not change.
type legacyPayload struct {
	EmployeeID int64  `json:"employee_id"`
	Timestamp  int64  `json:"timestamp"`
	Nonce      string `json:"random"`
}

// IssueLegacy signs a V1 token. Retained so already-deployed kiosks keep
// working and so compatibility tests can exercise the verification path.
func (c *Codec) IssueLegacy(employeeID int64) (string, error) {
	if employeeID <= 0 {
		return "", errors.New("token: employee id is required")
	}
	body, err := json.Marshal(legacyPayload{
		EmployeeID: employeeID,
		Timestamp:  c.now().Unix(),
		Nonce:      strings.ReplaceAll(uuid.NewString(), "-", ""),
	})
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(body)
	return encoded + "." + hex.EncodeToString(c.sign(encoded)), nil
}

// Verify checks a token of either format and returns its payload.
// Errors distinguish malformed, bad-signature and expired for internal
// logging; callers map all three to the same HTTP status.
func (c *Codec) Verify(tok string) (Payload, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Payload{}, ErrMalformed
	}
	switch strings.Count(tok, ".") {
	case 1:
		return c.verifyLegacy(tok)
	case 2:
		return c.verifyJWT(tok)
	default:
		return Payload{}, ErrMalformed
	}
}

func (c *Codec) verifyLegacy(tok string) (Payload, error) {
	encoded, sig, ok := strings.Cut(tok, ".")
	if !ok || encoded == "" || sig == "" {
		return Payload{}, ErrMalformed
	}

	// Signature first: the payload is only parsed once authenticity is
	// established.
	expected := hex.EncodeToString(c.sign(encoded))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return Payload{}, ErrSignature
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, ErrMalformed
	}
	var p legacyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, ErrMalformed
	}
	if p.EmployeeID <= 0 || p.Timestamp <= 0 {
		return Payload{}, ErrMalformed
	}

	issued := time.Unix(p.Timestamp, 0).UTC()
	expires := issued.Add(c.legacyTTL)
	if c.now().After(expires) {
		return Payload{}, ErrExpired
	}
	return Payload{
		EmployeeID: p.EmployeeID,
		IssuedAt:   issued,
		ExpiresAt:  expires,
		Format:     FormatV1,
	}, nil
}

func (c *Codec) verifyJWT(tok string) (Payload, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrSignature
		}
		return c.secret, nil
	},
		jwt.WithIssuer(c.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Payload{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Payload{}, ErrSignature
		default:
			return Payload{}, ErrMalformed
		}
	}
	if !parsed.Valid {
		return Payload{}, ErrMalformed
	}

	employeeID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || employeeID <= 0 {
		return Payload{}, ErrMalformed
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return Payload{}, ErrMalformed
	}
	return Payload{
		EmployeeID: employeeID,
		IssuedAt:   claims.IssuedAt.Time,
		ExpiresAt:  claims.ExpiresAt.Time,
		Format:     FormatV2,
	}, nil
}

func (c *Codec) sign(data string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}
