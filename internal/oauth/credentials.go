package oauth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"pontual.org/internal/directory"
)

// ErrInvalidCredentials is the single error returned for every credential
// failure. Which check failed (unknown user, bad password, inactive
// account) is written to the audit trail, never to the caller.
var ErrInvalidCredentials = errors.New("oauth: invalid credentials")

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("oauth: password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored bcrypt hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("oauth: password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// failReason tags internal credential-failure causes for the audit log.
type failReason string

const (
	reasonUnknownUser failReason = "unknown_user"
	reasonBadPassword failReason = "bad_password"
	reasonInactive    failReason = "inactive_account"
)

// verifyCredentials resolves and checks an employee by login identifier.
// The returned reason is for auditing only; callers surface
// ErrInvalidCredentials regardless.
func verifyCredentials(ctx context.Context, dir directory.Store, username, password string) (*directory.Employee, failReason, error) {
	if username == "" || password == "" {
		return nil, reasonUnknownUser, ErrInvalidCredentials
	}
	employee, err := dir.FindByEmail(ctx, username)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, reasonUnknownUser, ErrInvalidCredentials
		}
		return nil, "", err
	}
	if err := VerifyPassword(employee.PasswordHash, password); err != nil {
		return nil, reasonBadPassword, ErrInvalidCredentials
	}
	if !employee.Active {
		return nil, reasonInactive, ErrInvalidCredentials
	}
	return employee, "", nil
}
