package oauth

import (
	"net/http"
	"testing"
)

func TestParseWWWAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *AuthChallenge
		wantErr bool
	}{
		{
			name:   "simple bearer",
			header: "Bearer",
			want:   &AuthChallenge{Scheme: "Bearer"},
		},
		{
			name:   "bearer with realm and scope",
			header: `Bearer realm="shop-api", scope="openid profile"`,
			want: &AuthChallenge{
				Scheme: "Bearer",
				Realm:  "shop-api",
				Scope:  "openid profile",
			},
		},
		{
			name:   "bearer with error",
			header: `Bearer error="invalid_token", error_description="The token has expired"`,
			want: &AuthChallenge{
				Scheme:           "Bearer",
				Error:            "invalid_token",
				ErrorDescription: "The token has expired",
			},
		},
		{
			name:   "parameter names are case insensitive",
			header: `Bearer Realm="shop-api", ERROR="insufficient_scope"`,
			want: &AuthChallenge{
				Scheme: "Bearer",
				Realm:  "shop-api",
				Error:  "insufficient_scope",
			},
		},
		{
			name:    "empty header",
			header:  "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWWWAuthenticate(tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseWWWAuthenticate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if *got != *tt.want {
				t.Errorf("ParseWWWAuthenticate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAuthChallenge_IsInvalidToken(t *testing.T) {
	var nilChallenge *AuthChallenge
	if nilChallenge.IsInvalidToken() {
		t.Error("nil challenge should not report invalid_token")
	}
	if !(&AuthChallenge{Error: "invalid_token"}).IsInvalidToken() {
		t.Error("expected invalid_token to be reported")
	}
	if (&AuthChallenge{Error: "insufficient_scope"}).IsInvalidToken() {
		t.Error("insufficient_scope is not an invalid token")
	}
}

func TestParseWWWAuthenticateFromResponse(t *testing.T) {
	tests := []struct {
		name      string
		resp      *http.Response
		wantNil   bool
		wantError string
	}{
		{
			name:    "nil response",
			resp:    nil,
			wantNil: true,
		},
		{
			name: "200 OK",
			resp: &http.Response{
				StatusCode: 200,
				Header:     http.Header{"Www-Authenticate": []string{`Bearer error="invalid_token"`}},
			},
			wantNil: true,
		},
		{
			name: "401 without header",
			resp: &http.Response{
				StatusCode: 401,
				Header:     http.Header{},
			},
			wantNil: true,
		},
		{
			name: "401 with header",
			resp: &http.Response{
				StatusCode: 401,
				Header:     http.Header{"Www-Authenticate": []string{`Bearer error="invalid_token"`}},
			},
			wantError: "invalid_token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseWWWAuthenticateFromResponse(tt.resp)
			if tt.wantNil {
				if got != nil {
					t.Errorf("ParseWWWAuthenticateFromResponse() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("ParseWWWAuthenticateFromResponse() = nil, want non-nil")
			}
			if got.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", got.Error, tt.wantError)
			}
		})
	}
}
