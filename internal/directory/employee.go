package directory

import (
	"context"
	"errors"
	"time"
)

// Role is the exact access level stored on the employee record. There is
// no hierarchy: an admin does not implicitly satisfy a gestor-only check.
type Role string

const (
	RoleEmployee Role = "funcionario"
	RoleManager  Role = "gestor"
	RoleAdmin    Role = "admin"
)

// Employee is the read model consumed by the auth and punch subsystems.
// The employee directory owns this data; this service never mutates it
// except for password changes.
type Employee struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Department   string

	// Code is the unique short code typed on the kiosk keypad.
	Code   string
	Active bool

	BiometricConsent    bool
	FaceEnrolled        bool
	FingerprintEnrolled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

var ErrNotFound = errors.New("directory: employee not found")

// Store is the employee directory lookup contract.
type Store interface {
	Find(ctx context.Context, id int64) (*Employee, error)
	// FindByEmail is a case-sensitive exact match on the stored identifier.
	FindByEmail(ctx context.Context, email string) (*Employee, error)
	FindByCode(ctx context.Context, code string) (*Employee, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}
