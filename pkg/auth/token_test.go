package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/eventrentals-backend/pkg/config"
	"github.com/angelmondragon/eventrentals-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "eventrentals",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Role: enums.MemberRoleStaff})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID.String(), claims.Subject)
	require.Equal(t, enums.MemberRoleStaff, claims.Role)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)

	actor := claims.Actor()
	require.True(t, actor.Privileged())
	require.Equal(t, userID, actor.UserID)
}

func TestParseAccessTokenRejectsWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.MemberRoleCustomer})
	require.NoError(t, err)

	other := cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.MemberRoleCustomer})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenExpired)
	require.True(t, strings.Contains(err.Error(), "expired"))
}

func TestParseAccessTokenHonoursLeeway(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	token, err := MintAccessToken(cfg, time.Now().Add(-70*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.MemberRoleCustomer})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenExpired)

	cfg.Leeway = time.Minute
	_, err = ParseAccessToken(cfg, token)
	require.NoError(t, err)
}

func TestParseAccessTokenRejectsForeignSubject(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{
		Role: enums.MemberRoleCustomer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   "not-a-uuid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMintAccessTokenValidatesPayload(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"})
	require.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.MemberRoleCustomer})
	require.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.MemberRoleSystem})
	require.NoError(t, err)
}

func TestActorCanActFor(t *testing.T) {
	owner := uuid.New()
	customer := Actor{UserID: owner, Role: enums.MemberRoleCustomer}
	require.False(t, customer.Privileged())
	require.True(t, customer.CanActFor(owner))
	require.False(t, customer.CanActFor(uuid.New()))

	staff := Actor{UserID: uuid.New(), Role: enums.MemberRoleStaff}
	require.True(t, staff.CanActFor(owner))

	anonymous := Actor{Role: enums.MemberRoleCustomer}
	require.False(t, anonymous.CanActFor(uuid.Nil))

	system := SystemActor()
	require.True(t, system.Privileged())
	require.Nil(t, system.IDPtr())
	require.Equal(t, owner, *customer.IDPtr())
}
