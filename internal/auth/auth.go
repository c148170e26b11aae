// Package auth handles operator sign-in for the dashboard: a static admin
// directory with bcrypt password hashes and HS256 bearer tokens.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingBearer      = errors.New("missing bearer token")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnknownAdmin       = errors.New("admin no longer exists")
)

const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

type Admin struct {
	Username string
	FullName string
	Email    string
	Role     string
}

// Directory resolves operator accounts. Tokens carry only the username, so
// every authenticated request re-checks that the account still exists.
type Directory interface {
	Lookup(username string) (Admin, bool)
	VerifyPassword(username, password string) (Admin, error)
}

// StaticDirectory holds the admin roster loaded from configuration.
type StaticDirectory struct {
	admins map[string]staticAdmin
}

type staticAdmin struct {
	admin        Admin
	passwordHash string
}

type DirectoryEntry struct {
	Username     string
	FullName     string
	Email        string
	Role         string
	PasswordHash string
}

func NewStaticDirectory(entries []DirectoryEntry) *StaticDirectory {
	admins := make(map[string]staticAdmin, len(entries))
	for _, e := range entries {
		role := e.Role
		if role == "" {
			role = RoleAdmin
		}
		admins[e.Username] = staticAdmin{
			admin: Admin{
				Username: e.Username,
				FullName: e.FullName,
				Email:    e.Email,
				Role:     role,
			},
			passwordHash: e.PasswordHash,
		}
	}
	return &StaticDirectory{admins: admins}
}

func (d *StaticDirectory) Lookup(username string) (Admin, bool) {
	entry, ok := d.admins[username]
	return entry.admin, ok
}

// VerifyPassword returns ErrInvalidCredentials for both unknown usernames and
// wrong passwords so the two cases are indistinguishable to a caller.
func (d *StaticDirectory) VerifyPassword(username, password string) (Admin, error) {
	entry, ok := d.admins[username]
	if !ok {
		return Admin{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(entry.passwordHash), []byte(password)); err != nil {
		return Admin{}, ErrInvalidCredentials
	}
	return entry.admin, nil
}

// HashPassword is used by the CLI when provisioning admin accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Authenticator resolves the admin behind an incoming request.
type Authenticator struct {
	Tokens    *TokenService
	Directory Directory
}

func (a *Authenticator) Authenticate(r *http.Request) (Admin, error) {
	bearer, err := extractBearer(r)
	if err != nil {
		return Admin{}, err
	}
	claims, err := a.Tokens.Validate(bearer)
	if err != nil {
		return Admin{}, err
	}
	admin, ok := a.Directory.Lookup(claims.Username)
	if !ok {
		return Admin{}, ErrUnknownAdmin
	}
	return admin, nil
}

func extractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
