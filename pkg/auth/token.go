package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
)

var signingMethod = jwt.SigningMethodHS256

var (
	// ErrTokenExpired is returned by ParseAccessToken for a well-formed token
	// past its exp claim.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenInvalid covers every other rejection.
	ErrTokenInvalid = errors.New("access token invalid")
)

// AccessTokenPayload is what the issuer knows about the caller.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.MemberRole
	JTI    string
}

// AccessTokenClaims carries the user id in sub and the role as a private claim.
// System tokens have an empty subject.
type AccessTokenClaims struct {
	Role enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims checks during parsing.
func (c AccessTokenClaims) Validate() error {
	if !c.Role.IsValid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.Role == enums.MemberRoleSystem {
		return nil
	}
	if _, err := c.userID(); err != nil {
		return err
	}
	return nil
}

func (c AccessTokenClaims) userID() (uuid.UUID, error) {
	if c.Subject == "" {
		if c.Role == enums.MemberRoleSystem {
			return uuid.Nil, nil
		}
		return uuid.Nil, errors.New("missing subject")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("subject %q is not a user id", c.Subject)
	}
	return id, nil
}

// Actor derives the caller identity. Call it only on parsed claims.
func (c AccessTokenClaims) Actor() Actor {
	id, _ := c.userID()
	return Actor{UserID: id, Role: c.Role}
}

// MintAccessToken signs a token valid from now for cfg.Expiration().
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errors.New("jwt secret is required")
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.Expiration() <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}

	claims := AccessTokenClaims{
		Role: payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiration())),
			ID:        strings.TrimSpace(payload.JTI),
		},
	}
	if payload.UserID != uuid.Nil {
		claims.Subject = payload.UserID.String()
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if err := claims.Validate(); err != nil {
		return "", fmt.Errorf("mint access token: %w", err)
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer, expiry and claim shape. The
// returned error wraps ErrTokenExpired or ErrTokenInvalid.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
