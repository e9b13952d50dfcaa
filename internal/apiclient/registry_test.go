package apiclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_StartEnd(t *testing.T) {
	r := NewRegistry()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var states []LoadingState
	cancel := r.Subscribe(func(st LoadingState) { states = append(states, st) })

	a := r.Start("/products")
	b := r.Start("/products")
	c := r.Start("/cart")
	assert.NotEqual(t, a, b)

	assert.Equal(t, LoadingState{Global: true, TotalActiveRequests: 3}, r.State())
	assert.True(t, r.IsEndpointLoading("/products"))
	assert.True(t, r.IsEndpointLoading("/cart"))

	pending := r.Pending()
	require.Len(t, pending, 3)
	assert.Equal(t, []string{a, b, c}, []string{pending[0].ID, pending[1].ID, pending[2].ID})
	assert.Equal(t, base.Add(time.Second), pending[0].StartTime)

	r.End(a)
	assert.True(t, r.IsEndpointLoading("/products"))
	r.End(b)
	assert.False(t, r.IsEndpointLoading("/products"))

	r.End(b)
	r.End("unknown")
	cancel()
	r.End(c)

	assert.Equal(t, LoadingState{}, r.State())
	assert.Equal(t, []LoadingState{
		{Global: true, TotalActiveRequests: 1},
		{Global: true, TotalActiveRequests: 2},
		{Global: true, TotalActiveRequests: 3},
		{Global: true, TotalActiveRequests: 2},
		{Global: true, TotalActiveRequests: 1},
	}, states)
}
