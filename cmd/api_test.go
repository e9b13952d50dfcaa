package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopauth/internal/apiclient"
)

func TestParseAPIArgs(t *testing.T) {
	method, endpoint, err := parseAPIArgs([]string{"/orders"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
	assert.Equal(t, "/orders", endpoint)

	method, endpoint, err = parseAPIArgs([]string{"post", "/cart/items"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/cart/items", endpoint)

	_, _, err = parseAPIArgs([]string{"TRACE", "/"})
	assert.Error(t, err)
}

func TestRequestOptions(t *testing.T) {
	defer func() {
		apiHeaders, apiData, apiNoAuth, apiRetries = nil, "", false, -1
	}()

	apiHeaders = []string{"X-Cart-Id: 42"}
	apiData = `{"sku":"A-100"}`
	apiNoAuth = true
	apiRetries = 0

	opts, err := requestOptions(http.MethodPost)
	require.NoError(t, err)
	var o apiclient.RequestOptions
	o.Headers = http.Header{}
	o.RequireAuth = true
	o.Retries = 3
	for _, opt := range opts {
		opt(&o)
	}
	assert.Equal(t, http.MethodPost, o.Method)
	assert.Equal(t, "42", o.Headers.Get("X-Cart-Id"))
	assert.Equal(t, `{"sku":"A-100"}`, o.Body)
	assert.False(t, o.RequireAuth)
	assert.Equal(t, 0, o.Retries)

	apiHeaders = []string{"no-colon"}
	_, err = requestOptions(http.MethodGet)
	assert.Error(t, err)
}

func TestAPIFailure(t *testing.T) {
	unauthorized := fmt.Errorf("request: %w", &apiclient.APIError{Status: http.StatusUnauthorized, StatusText: "Unauthorized"})
	assert.Equal(t, ExitCodeAuthRequired, getExitCode(apiFailure(unauthorized)))

	serverErr := &apiclient.APIError{Status: http.StatusBadGateway, StatusText: "Bad Gateway"}
	err := apiFailure(serverErr)
	assert.Equal(t, ExitCodeError, getExitCode(err))
	assert.Contains(t, err.Error(), "Server error. Please try again later.")
	assert.True(t, errors.Is(err, serverErr))
}
