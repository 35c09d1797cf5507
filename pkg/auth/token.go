package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/biddart/biddart-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// Verifier checks staff access tokens against the current secret and, during a
// rotation, the previous one.
type Verifier struct {
	issuer string
	keys   [][]byte
	leeway time.Duration
	now    func() time.Time
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("jwt issuer is required")
	}
	keys := [][]byte{[]byte(cfg.Secret)}
	if prev := cfg.PreviousSecret; prev != "" && prev != cfg.Secret {
		keys = append(keys, []byte(prev))
	}
	leeway := cfg.Leeway
	if leeway < 0 {
		leeway = 0
	}
	return &Verifier{issuer: cfg.Issuer, keys: keys, leeway: leeway, now: time.Now}, nil
}

// Verify returns the claims of a valid token. Only a signature mismatch moves on
// to the next key; expiry and issuer failures are final.
func (v *Verifier) Verify(token string) (*AccessTokenClaims, error) {
	var lastErr error
	for _, key := range v.keys {
		claims, err := v.parse(token, key)
		if err == nil {
			return claims, nil
		}
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (v *Verifier) parse(token string, key []byte) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.TenantID == uuid.Nil || claims.StaffID == uuid.Nil {
		return nil, errors.New("token is missing tenant or staff")
	}
	return claims, nil
}

// MintAccessToken signs a token with the current secret. Production tokens come
// from the identity service; tooling and tests use this.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case payload.TenantID == uuid.Nil:
		return "", errors.New("tenant id is required")
	case payload.StaffID == uuid.Nil:
		return "", errors.New("staff id is required")
	case !payload.Role.IsValid():
		return "", fmt.Errorf("invalid staff role %q", payload.Role)
	}

	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	signed, err := jwt.NewWithClaims(jwtSigningMethod, payload.claims(cfg.Issuer, now, ttl)).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

func (p AccessTokenPayload) claims(issuer string, now time.Time, ttl time.Duration) AccessTokenClaims {
	jti := strings.TrimSpace(p.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	return AccessTokenClaims{
		TenantID: p.TenantID,
		StaffID:  p.StaffID,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.StaffID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}
}
