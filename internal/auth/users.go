// Package auth holds the user directory and cookie-backed JWT sessions that
// guard the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Role gates API access.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCompany Role = "company"
	RoleUser    Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCompany, RoleUser:
		return true
	}
	return false
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("insufficient role")
)

// User is a directory account. PasswordHash is a bcrypt hash.
type User struct {
	Email        string
	Name         string
	Role         Role
	PasswordHash []byte
}

// Credential is a plaintext account definition used to build a Directory.
type Credential struct {
	Email    string
	Name     string
	Role     Role
	Password string
}

// HashPassword bcrypt-hashes password at cost; cost 0 selects bcrypt.DefaultCost.
func HashPassword(password string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(password), cost)
}

// Directory is a read-only set of users keyed by lower-cased email.
type Directory struct {
	users map[string]User
}

// NewDirectory hashes every credential at cost.
func NewDirectory(cost int, creds ...Credential) (*Directory, error) {
	d := &Directory{users: make(map[string]User, len(creds))}
	for _, c := range creds {
		if !c.Role.Valid() {
			return nil, fmt.Errorf("user %s: unknown role %q", c.Email, c.Role)
		}
		hash, err := HashPassword(c.Password, cost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", c.Email, err)
		}
		key := normalizeEmail(c.Email)
		if _, dup := d.users[key]; dup {
			return nil, fmt.Errorf("duplicate user %s", c.Email)
		}
		d.users[key] = User{Email: key, Name: c.Name, Role: c.Role, PasswordHash: hash}
	}
	return d, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate checks password against the stored hash.
func (d *Directory) Authenticate(email, password string) (User, error) {
	u, ok := d.users[normalizeEmail(email)]
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Emails lists accounts in sorted order.
func (d *Directory) Emails() []string {
	out := make([]string, 0, len(d.users))
	for e := range d.users {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
