package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineAuthMethod(t *testing.T) {
	tests := []struct {
		name    string
		account *Account
		want    AuthMethod
	}{
		{
			name:    "nil account",
			account: nil,
			want:    MethodNone,
		},
		{
			name:    "vipps issuer",
			account: &Account{Issuer: "https://login.vipps.no/access-management-1.0/access/"},
			want:    MethodVipps,
		},
		{
			name:    "amr otp",
			account: &Account{Issuer: "https://shop.b2clogin.com/tid/v2.0/", AMR: []string{"otp"}},
			want:    MethodOTP,
		},
		{
			name:    "amr phone",
			account: &Account{AMR: []string{"pwd", "Phone"}},
			want:    MethodOTP,
		},
		{
			name:    "issuer wins over amr",
			account: &Account{Issuer: "https://vipps.example.com", AMR: []string{"otp"}},
			want:    MethodVipps,
		},
		{
			name:    "user flow vipps",
			account: &Account{UserFlow: "B2C_1A_VIPPS_SIGNIN"},
			want:    MethodVipps,
		},
		{
			name:    "user flow otp",
			account: &Account{UserFlow: "B2C_1_phone_otp"},
			want:    MethodOTP,
		},
		{
			name:    "no markers",
			account: &Account{Issuer: "https://shop.b2clogin.com/tid/v2.0/", AMR: []string{"pwd"}, UserFlow: "B2C_1_signin"},
			want:    MethodNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineAuthMethod(tt.account))
		})
	}
}

func TestParseAuthMethod(t *testing.T) {
	m, err := ParseAuthMethod("Vipps")
	require.NoError(t, err)
	assert.Equal(t, MethodVipps, m)

	m, err = ParseAuthMethod("phone")
	require.NoError(t, err)
	assert.Equal(t, MethodOTP, m)

	_, err = ParseAuthMethod("bankid")
	assert.Error(t, err)

	assert.Equal(t, "none", MethodNone.String())
	assert.False(t, MethodNone.Valid())
	assert.True(t, MethodOTP.Valid())
}
