package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mmuslimabdulj/goat-whisper/internal/domain"
)

// Claims is the signed payload of an access token
type Claims struct {
	UserID string      `json:"userId"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Config holds token settings
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Authenticator verifies connection credentials and derives an Identity
type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator creates an Authenticator. An empty secret is refused.
func NewAuthenticator(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = domain.TokenTTL
	}
	return &Authenticator{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for the identity. A zero ttl uses the configured default.
func (a *Authenticator) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = a.ttl
	}
	now := a.now()
	claims := Claims{
		UserID: id.ID,
		Email:  id.Email,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate validates a presented token. Every failure wraps domain.ErrAuth.
func (a *Authenticator) Authenticate(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: token missing", domain.ErrAuth)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid token", domain.ErrAuth)
	}
	if claims.UserID == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no user id", domain.ErrAuth)
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleUser
	}

	return domain.Identity{ID: claims.UserID, Email: claims.Email, Role: role}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: token expired", domain.ErrAuth)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: token malformed", domain.ErrAuth)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: invalid signature", domain.ErrAuth)
	default:
		return fmt.Errorf("%w: invalid token", domain.ErrAuth)
	}
}
