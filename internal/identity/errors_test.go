package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"

	"shopauth/pkg/oauth"
)

func TestFromCallback(t *testing.T) {
	tests := []struct {
		name        string
		code        string
		description string
		want        Kind
	}{
		{"b2c cancel", "access_denied", "AADB2C90091: The user has cancelled entering self-asserted information.", KindUserCancelled},
		{"plain access denied", "access_denied", "policy rejected", KindUnknown},
		{"explicit cancel", "user_cancelled", "", KindUserCancelled},
		{"interaction", "interaction_required", "", KindInteractionRequired},
		{"login required", "login_required", "", KindInteractionRequired},
		{"consent", "consent_required", "", KindConsentRequired},
		{"server error", "server_error", "", KindNetwork},
		{"unknown", "something_else", "", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromCallback(tt.code, tt.description)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"provider error passes through", &ProviderError{Kind: KindConsentRequired}, KindConsentRequired},
		{"wrapped provider error", fmt.Errorf("login: %w", &ProviderError{Kind: KindUserCancelled}), KindUserCancelled},
		{"init error", &InitError{Err: errors.New("boom")}, KindInit},
		{"missing authority", ErrMissingAuthority, KindConfig},
		{"not initialized", ErrNotInitialized, KindEndpointsResolution},
		{"invalid grant", &oauth2.RetrieveError{ErrorCode: "invalid_grant", Response: &http.Response{StatusCode: 400}}, KindInteractionRequired},
		{"token endpoint 503", &oauth2.RetrieveError{Response: &http.Response{StatusCode: 503}}, KindNetwork},
		{"token endpoint 400 without code", &oauth2.RetrieveError{Response: &http.Response{StatusCode: 400}}, KindUnknown},
		{"incomplete metadata", fmt.Errorf("discover: %w", &oauth.MetadataError{Missing: []string{"issuer"}}), KindEndpointsResolution},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), KindNetwork},
		{"anything else", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err).Kind)
		})
	}

	assert.Nil(t, Classify(nil))
}

func TestKind_Transient(t *testing.T) {
	assert.True(t, KindNetwork.Transient())
	assert.True(t, KindEndpointsResolution.Transient())
	assert.False(t, KindInteractionRequired.Transient())
	assert.False(t, KindUserCancelled.Transient())
	assert.False(t, KindUnknown.Transient())
}

func TestProviderError_Error(t *testing.T) {
	err := &ProviderError{Kind: KindInteractionRequired, Code: "invalid_grant", Description: "revoked"}
	assert.Equal(t, "interaction_required (invalid_grant): revoked", err.Error())

	cause := errors.New("dial tcp: refused")
	wrapped := &ProviderError{Kind: KindNetwork, Err: cause}
	assert.Equal(t, "network_error: dial tcp: refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestIsKindAndUserMessage(t *testing.T) {
	err := FromCallback("access_denied", "AADB2C90091")
	assert.True(t, IsKind(err, KindUserCancelled))
	assert.False(t, IsKind(err, KindNetwork))
	assert.Equal(t, "Authentication was cancelled", UserMessage(err))
	assert.Equal(t, "Please sign in to continue", UserMessage(&ProviderError{Kind: KindInteractionRequired}))
	assert.Equal(t, "", UserMessage(nil))
}
