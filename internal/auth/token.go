package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// sessionClaims extends the registered claims with the platform scope and the
// user type the token was issued for.
type sessionClaims struct {
	jwt.RegisteredClaims
	UserType UserType `json:"utp"`
	Platform Platform `json:"plt"`
}

// IssuedToken is a freshly signed session token.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenService issues and verifies stateless HS256 session tokens.
// It holds no mutable state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service. An empty secret is a signing
// misconfiguration and is reported as ErrSigning.
func NewTokenService(p TokenPolicy) (*TokenService, error) {
	if len(p.Secret) == 0 {
		return nil, fmt.Errorf("%w: empty signing secret", ErrSigning)
	}
	if p.TTL <= 0 {
		p.TTL = DefaultTokenTTL
	}
	return &TokenService{
		secret: p.Secret,
		ttl:    p.TTL,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime given to every issued token.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for the account, scoped to platform.
func (s *TokenService) Issue(accountID string, userType UserType, platform Platform) (*IssuedToken, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		UserType: userType,
		Platform: platform,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}
	return &IssuedToken{Token: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks the token signature and expiry and returns the identity it
// carries. The signature is checked before expiry, so an expired token signed
// with the right key yields ErrTokenExpired.
func (s *TokenService) Verify(raw string) (*Identity, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, fmt.Errorf("%w: %w", ErrTokenSignatureInvalid, err)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}
	if claims.UserType == "" || claims.Platform == "" {
		return nil, fmt.Errorf("%w: missing scope", ErrTokenMalformed)
	}

	id := &Identity{
		AccountID: claims.Subject,
		UserType:  claims.UserType,
		Platform:  claims.Platform,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	return id, nil
}

// SelfCheck issues and verifies a throwaway token. A failure here means the
// signing key is unusable and the process should not start.
func (s *TokenService) SelfCheck() error {
	issued, err := s.Issue("self-check", UserTypeEmployee, PlatformWeb)
	if err != nil {
		return err
	}
	if _, err := s.Verify(issued.Token); err != nil {
		return fmt.Errorf("%w: self-check token rejected: %w", ErrSigning, err)
	}
	return nil
}
