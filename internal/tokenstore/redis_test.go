package tokenstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopauth/pkg/auth"
)

func newRedisBackend(t *testing.T, mr *miniredis.Miniredis, profile string) *RedisBackend {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client, profile)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestRedisBackend_WriteRead(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	backend := newRedisBackend(t, mr, "default")
	require.NoError(t, backend.Ping(ctx))

	store := New(backend)
	require.NoError(t, store.Write(ctx, testTokens(), testAccount(), auth.MethodVipps))

	assert.Equal(t, "true", mr.HGet("shopauth:default:session", KeyAuthenticated))
	assert.Equal(t, "vipps", mr.HGet("shopauth:default:session", KeyMethod))

	session, err := store.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "access-1", session.Tokens.AccessToken)

	require.NoError(t, store.Clear(ctx))
	session, err = store.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.False(t, mr.Exists("shopauth:default:session"))
}

func TestRedisBackend_CrossContextNotification(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	storeA := New(newRedisBackend(t, mr, "default"))
	storeB := New(newRedisBackend(t, mr, "default"))

	var seenA, seenB changeRecorder
	cancelA, err := storeA.Subscribe(seenA.record)
	require.NoError(t, err)
	defer cancelA()
	cancelB, err := storeB.Subscribe(seenB.record)
	require.NoError(t, err)
	defer cancelB()

	require.NoError(t, storeB.Write(ctx, testTokens(), testAccount(), auth.MethodOTP))

	require.Eventually(t, func() bool {
		return len(seenA.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	change := seenA.all()[0]
	assert.Equal(t, storeB.Origin(), change.Origin)
	assert.ElementsMatch(t, []string{KeyAuthenticated, KeyUser, KeyMethod, KeyAccessToken, KeyIDToken}, change.Keys)

	// B's own write is not echoed back to it
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, seenB.all())
}

func TestRedisBackend_ProfilesAreIsolated(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	kari := New(newRedisBackend(t, mr, "kari"))
	ola := New(newRedisBackend(t, mr, "ola"))

	require.NoError(t, kari.Write(ctx, testTokens(), testAccount(), auth.MethodVipps))

	session, err := ola.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestRedisBackend_LoadError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	backend := newRedisBackend(t, mr, "default")
	mr.Close()

	_, err = backend.Load(context.Background())
	assert.Error(t, err)
}

func TestRedisBackend_UpdateTokensAfterClear(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	refresher := New(newRedisBackend(t, mr, "default"))
	other := New(newRedisBackend(t, mr, "default"))

	require.NoError(t, refresher.Write(ctx, testTokens(), testAccount(), auth.MethodVipps))
	require.NoError(t, refresher.UpdateTokens(ctx, &auth.TokenPair{AccessToken: "access-2"}))
	assert.Equal(t, "access-2", mr.HGet("shopauth:default:session", KeyAccessToken))

	require.NoError(t, other.Clear(ctx))
	assert.ErrorIs(t, refresher.UpdateTokens(ctx, &auth.TokenPair{AccessToken: "access-3"}), ErrNotAuthenticated)
	assert.False(t, mr.Exists("shopauth:default:session"))
}

func TestRedisBackend_ApplyIfPublishesOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	backend := newRedisBackend(t, mr, "default")

	var mu sync.Mutex
	var events []Event
	cancel, err := backend.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer cancel()

	err = backend.ApplyIf(ctx, map[string]string{"gate": "open"}, map[string]string{"k": "v"}, nil, "me")
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.False(t, mr.Exists("shopauth:default:session"))

	mr.HSet("shopauth:default:session", "gate", "open")
	require.NoError(t, backend.ApplyIf(ctx, map[string]string{"gate": "open"}, map[string]string{"k": "v"}, nil, "me"))
	assert.Equal(t, "v", mr.HGet("shopauth:default:session", "k"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"k"}, events[0].Keys)
	mu.Unlock()
}
