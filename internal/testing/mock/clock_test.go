package mock

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	assert.Equal(t, start, clock.Now())

	assert.Equal(t, start.Add(time.Hour), clock.Advance(time.Hour))
	clock.Advance(30 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), clock.Now())
}

func TestMockClock_ZeroStartUsesWallClock(t *testing.T) {
	before := time.Now()
	clock := NewMockClock(time.Time{})
	assert.False(t, clock.Now().Before(before))
}

func TestMockClock_AdvanceUntil(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	expiresAt := start.Add(time.Hour)
	clock := NewMockClock(start)

	assert.Equal(t, expiresAt.Add(-4*time.Minute), clock.AdvanceUntil(expiresAt, 4*time.Minute))

	// never backwards
	assert.Equal(t, expiresAt.Add(-4*time.Minute), clock.AdvanceUntil(expiresAt, 10*time.Minute))

	assert.True(t, clock.AdvanceUntil(expiresAt, -time.Second).After(expiresAt))
}

func TestB2CServer_TokensAgeWithClock(t *testing.T) {
	issuedAt := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := NewMockClock(issuedAt)
	srv := NewB2CServer(B2CServerConfig{Clock: clock, TokenLifetime: time.Hour})
	defer srv.Close()

	expiresAt := srv.TokenExpiry()
	assert.Equal(t, issuedAt.Add(time.Hour), expiresAt)

	raw, err := srv.AccessToken("B2C_1A_SIGNIN_VIPPS", "api://shop/read")
	require.NoError(t, err)
	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(raw, claims)
	require.NoError(t, err)
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.Equal(t, expiresAt.Unix(), exp.Unix())

	clock.AdvanceUntil(expiresAt, -time.Minute)
	assert.True(t, clock.Now().After(exp.Time), "token expired once the clock passed exp")
	assert.Equal(t, clock.Now().Add(time.Hour), srv.TokenExpiry())
}
