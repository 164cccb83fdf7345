package auth

import (
	"net/http"
	"regexp"
	"strings"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// minPasswordLength is the shortest password accepted on registration or reset.
const minPasswordLength = 8

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// UserType is the coarse class assigned to an account at creation.
// It decides which platforms the account may sign in on; route-level access
// is decided by roles.
type UserType string

const (
	UserTypeSuperAdmin UserType = "super_admin"
	UserTypeEmployee   UserType = "employee"
	UserTypeTeamLead   UserType = "team_lead"
	UserTypeHR         UserType = "hr"
)

// ValidUserTypes lists every user type an account may hold.
var ValidUserTypes = []UserType{UserTypeSuperAdmin, UserTypeEmployee, UserTypeTeamLead, UserTypeHR}

// IsValidUserType reports whether t is a known user type.
func IsValidUserType(t UserType) bool {
	for _, v := range ValidUserTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Platform is the client surface a session token is scoped to.
type Platform string

const (
	PlatformWeb    Platform = "web"
	PlatformMobile Platform = "mobile"
)

// ParsePlatform converts a request value into a Platform.
func ParsePlatform(s string) (Platform, bool) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformWeb, PlatformMobile:
		return p, true
	default:
		return "", false
	}
}

// Method is an HTTP method a route descriptor can be bound to.
type Method uint8

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodPatch
	MethodDelete
)

var methodNames = [...]string{
	MethodUnknown: "",
	MethodGet:     http.MethodGet,
	MethodPost:    http.MethodPost,
	MethodPut:     http.MethodPut,
	MethodPatch:   http.MethodPatch,
	MethodDelete:  http.MethodDelete,
}

// ParseMethod converts an HTTP method name into a Method.
func ParseMethod(s string) (Method, bool) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for m := MethodGet; m <= MethodDelete; m++ {
		if methodNames[m] == upper {
			return m, true
		}
	}
	return MethodUnknown, false
}

// String returns the upper-case HTTP method name.
func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return ""
}

// Account represents a credential record.
type Account struct {
	ID                string     `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email,omitempty"`
	PasswordHash      string     `json:"-"`
	UserType          UserType   `json:"user_type"`
	IsActive          bool       `json:"is_active"`
	IsDeleted         bool       `json:"is_deleted"`
	LoginRetryCount   int        `json:"-"`
	LoginReactiveAt   *time.Time `json:"-"`
	ResetOTPHash      string     `json:"-"`
	ResetOTPExpiresAt *time.Time `json:"-"`
	ResetOTPAttempts  int        `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// CanAuthenticate reports whether the account may sign in at all.
// Deleted or inactive accounts never authenticate, whatever the credential.
func (a *Account) CanAuthenticate() bool {
	return a.IsActive && !a.IsDeleted
}

// Role is a named permission class bound to routes.
type Role struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Weight    int       `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}

// RouteDescriptor is a declared endpoint subject to authorization.
type RouteDescriptor struct {
	ID       string `json:"id"`
	Name     string `json:"route_name"`
	URI      string `json:"uri"`
	Method   Method `json:"-"`
	IsActive bool   `json:"is_active"`
}

// Identity is what a verified session token asserts about its bearer.
type Identity struct {
	AccountID string
	UserType  UserType
	Platform  Platform
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal is the caller as seen by handlers after a successful
// authorization pass.
type Principal struct {
	Identity
	Roles []string
}

// HasRole reports whether the principal holds the role code.
func (p *Principal) HasRole(code string) bool {
	for _, r := range p.Roles {
		if r == code {
			return true
		}
	}
	return false
}
