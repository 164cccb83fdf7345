package auth

import "time"

// Defaults applied when a policy field is left zero.
const (
	DefaultTokenTTL      = 10000 * time.Second
	DefaultMaxRetry      = 3
	DefaultLockoutWindow = 20 * time.Minute
	DefaultOTPTTL        = 20 * time.Minute
	DefaultOTPAttempts   = 3
)

// DefaultResetChannels are the delivery channels a reset code goes out on
// when none are configured.
var DefaultResetChannels = []string{"email", "sms"}

// TokenPolicy configures session token issuance.
type TokenPolicy struct {
	Secret []byte
	TTL    time.Duration
}

// LockoutPolicy configures the login guard.
type LockoutPolicy struct {
	MaxRetry      int
	LockoutWindow time.Duration
}

// ResetPolicy configures the password reset flow.
type ResetPolicy struct {
	OTPTTL   time.Duration
	Channels []string
	// MaxAttempts wrong guesses void the live code.
	MaxAttempts int
	// MinResponse is the floor on RequestReset's duration, whatever the
	// identifier resolved to. Zero disables it.
	MinResponse time.Duration
}

// AccessTable lists, per platform, the user types allowed to use it.
type AccessTable map[Platform][]UserType

// Allows reports whether userType may use platform.
func (t AccessTable) Allows(platform Platform, userType UserType) bool {
	for _, ut := range t[platform] {
		if ut == userType {
			return true
		}
	}
	return false
}

// Policy is the process-wide security configuration. It is built once at
// startup and handed to each component's constructor; nothing mutates it
// afterwards.
type Policy struct {
	Token   TokenPolicy
	Lockout LockoutPolicy
	Reset   ResetPolicy
	Access  AccessTable
	// DefaultRoles maps a user type to the role code its accounts receive.
	DefaultRoles map[UserType]string
	// RegistrationUserType is assigned to self-registered accounts.
	RegistrationUserType UserType
}

func (p LockoutPolicy) withDefaults() LockoutPolicy {
	if p.MaxRetry <= 0 {
		p.MaxRetry = DefaultMaxRetry
	}
	if p.LockoutWindow <= 0 {
		p.LockoutWindow = DefaultLockoutWindow
	}
	return p
}

func (p ResetPolicy) withDefaults() ResetPolicy {
	if p.OTPTTL <= 0 {
		p.OTPTTL = DefaultOTPTTL
	}
	if len(p.Channels) == 0 {
		p.Channels = append([]string(nil), DefaultResetChannels...)
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultOTPAttempts
	}
	p.MinResponse = max(p.MinResponse, 0)
	return p
}
