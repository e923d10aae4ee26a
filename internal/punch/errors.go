package punch

import "errors"

var (
	ErrInvalidCode         = errors.New("punch: invalid employee code")
	ErrQRMalformed         = errors.New("punch: malformed qr payload")
	ErrQRExpired           = errors.New("punch: qr payload expired")
	ErrQRSignature         = errors.New("punch: qr signature mismatch")
	ErrNotRecognized       = errors.New("punch: biometric not recognized")
	ErrIdentityMismatch    = errors.New("punch: matched identity differs from authenticated identity")
	ErrInactive            = errors.New("punch: inactive account")
	ErrDuplicateWindow     = errors.New("punch: duplicate within suppression window")
	ErrGeolocationRequired = errors.New("punch: geolocation required")
	ErrOutsideGeofence     = errors.New("punch: outside all geofence zones")
	ErrConsentRequired     = errors.New("punch: biometric consent required")
	ErrMatcherUnavailable  = errors.New("punch: matcher unavailable")
	ErrMethodDisabled      = errors.New("punch: method disabled")
	ErrInvalidType         = errors.New("punch: invalid punch type")
	ErrNotFound            = errors.New("punch: not found")
	ErrIntegrity           = errors.New("punch: integrity hash mismatch")
)
