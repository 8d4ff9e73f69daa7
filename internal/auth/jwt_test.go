package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret"

func TestGenerateAndValidateToken(t *testing.T) {
	token, err := GenerateToken("ops@ledger", RoleAdmin, testSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "ops@ledger", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)

	ctx := ContextWithClaims(context.Background(), claims)
	got, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, claims, got)
}

func TestGenerateTokenRequiresRole(t *testing.T) {
	_, err := GenerateToken("ops@ledger", Role("root"), testSecret, time.Hour)
	require.Error(t, err)
	_, err = GenerateToken("", RoleOperator, testSecret, time.Hour)
	require.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	validToken, err := GenerateToken("ops@ledger", RoleOperator, testSecret, time.Hour)
	require.NoError(t, err)

	expiredToken, err := GenerateToken("ops@ledger", RoleOperator, testSecret, -1*time.Hour)
	require.NoError(t, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "ops@ledger",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: string(RoleAdmin),
	})
	foreignToken, err := foreign.SignedString([]byte(testSecret))
	require.NoError(t, err)

	unknownRole := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "ops@ledger",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "root",
	})
	unknownRoleToken, err := unknownRole.SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name      string
		token     string
		secret    string
		wantErrIs error
	}{
		{name: "expired token", token: expiredToken, secret: testSecret, wantErrIs: jwt.ErrTokenExpired},
		{name: "wrong secret", token: validToken, secret: "wrong-secret", wantErrIs: jwt.ErrTokenSignatureInvalid},
		{name: "wrong issuer", token: foreignToken, secret: testSecret, wantErrIs: jwt.ErrTokenInvalidIssuer},
		{name: "unknown role", token: unknownRoleToken, secret: testSecret, wantErrIs: jwt.ErrTokenInvalidClaims},
		{name: "malformed token", token: "not.a.valid.jwt", secret: testSecret, wantErrIs: jwt.ErrTokenMalformed},
		{name: "empty token", token: "", secret: testSecret, wantErrIs: jwt.ErrTokenMalformed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateToken(tc.token, tc.secret)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErrIs)
		})
	}
}

func TestValidateToken_RejectsNonHMAC(t *testing.T) {
	// A token signed with "none" must not validate.
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "ops@ledger",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: string(RoleAdmin),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateToken(signed, testSecret)
	require.Error(t, err)
}
