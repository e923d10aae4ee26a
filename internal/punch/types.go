// Package punch implements the tamper-evident punch registration
// protocol: NSR sequencing, integrity hashing, and the per-request gate
// that resolves identity and enforces the registration constraints.
package punch

import "time"

// Type is the punch event kind. The Portuguese values are the wire and
// storage format, kept for compatibility with existing records.
type Type string

const (
	TypeIn         Type = "entrada"
	TypeOut        Type = "saida"
	TypeBreakStart Type = "intervalo_inicio"
	TypeBreakEnd   Type = "intervalo_fim"
)

// Valid reports whether t is a known punch type.
func (t Type) Valid() bool {
	switch t {
	case TypeIn, TypeOut, TypeBreakStart, TypeBreakEnd:
		return true
	}
	return false
}

// Method is the identity-resolution strategy used for a punch.
type Method string

const (
	MethodCode        Method = "codigo"
	MethodQR          Method = "qrcode"
	MethodFacial      Method = "facial"
	MethodFingerprint Method = "biometria"
)

// Biometric reports whether the method requires biometric-data consent.
func (m Method) Biometric() bool {
	return m == MethodFacial || m == MethodFingerprint
}

// Punch is one recorded time event. Once committed the core fields
// (EmployeeID, Time, Type, Method, NSR) are immutable; corrections are
// new compensating records, never edits.
type Punch struct {
	ID             string
	EmployeeID     int64
	Time           time.Time
	Type           Type
	Method         Method
	Latitude       *float64
	Longitude      *float64
	FaceSimilarity *float64
	NSR            int64
	Hash           string
	IP             string
	UserAgent      string
}
