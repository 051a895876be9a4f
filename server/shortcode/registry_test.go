package shortcode

import (
	"context"
	"sync"
	"testing"
	"time"

	errs "github.com/jrsteele09/go-login-broker/internal/errors"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	registry *Registry
	now      time.Time
}

func setupTestFixture(t *testing.T, options ...Option) *testFixture {
	t.Helper()
	f := &testFixture{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	options = append([]Option{WithNowFunc(func() time.Time { return f.now })}, options...)
	f.registry = NewRegistry(options...)
	return f
}

func TestRegistry_Create(t *testing.T) {
	f := setupTestFixture(t)

	code, err := f.registry.Create("handle-1", time.Time{})
	require.NoError(t, err)
	require.True(t, Valid(code.Value))
	require.Equal(t, "handle-1", code.LoginHandle)
	require.Equal(t, f.now.Add(time.Minute), code.ExpiresAt)

	capped, err := f.registry.Create("handle-2", f.now.Add(20*time.Second))
	require.NoError(t, err)
	require.Equal(t, f.now.Add(20*time.Second), capped.ExpiresAt)

	_, err = f.registry.Create("", time.Time{})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestRegistry_LiveCodesAreUnique(t *testing.T) {
	f := setupTestFixture(t)
	seen := make(map[string]bool)
	for range 2000 {
		code, err := f.registry.Create("handle", time.Time{})
		require.NoError(t, err)
		require.False(t, seen[code.Value])
		seen[code.Value] = true
	}
	require.Equal(t, 2000, f.registry.Len())
}

func TestRegistry_RedeemOnce(t *testing.T) {
	f := setupTestFixture(t)
	code, err := f.registry.Create("handle-1", time.Time{})
	require.NoError(t, err)

	_, ok := f.registry.peek(code.Value)
	require.True(t, ok)

	handle, err := f.registry.Redeem(code.Value)
	require.NoError(t, err)
	require.Equal(t, "handle-1", handle)

	_, err = f.registry.Redeem(code.Value)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RedeemExpired(t *testing.T) {
	f := setupTestFixture(t)
	code, err := f.registry.Create("handle-2", time.Time{})
	require.NoError(t, err)

	f.now = f.now.Add(61 * time.Second)
	_, ok := f.registry.peek(code.Value)
	require.False(t, ok)

	_, err = f.registry.Redeem(code.Value)
	require.ErrorIs(t, err, ErrExpired)
	require.Equal(t, 0, f.registry.Len())

	_, err = f.registry.Redeem(code.Value)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RedeemMalformed(t *testing.T) {
	f := setupTestFixture(t)
	for _, value := range []string{"", "12345", "1234567", "012345", "12a456", " 12345"} {
		_, err := f.registry.Redeem(value)
		require.ErrorIs(t, err, errs.ErrValidation, value)
	}
}

func TestRegistry_ConcurrentRedeem(t *testing.T) {
	f := setupTestFixture(t)
	code, err := f.registry.Create("handle-1", time.Time{})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.registry.Redeem(code.Value); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestRegistry_SweepExpired(t *testing.T) {
	live := map[string]bool{"handle-live": true, "handle-stale": true}
	f := setupTestFixture(t, WithSessionCheck(func(handle string) bool { return live[handle] }))

	_, err := f.registry.Create("handle-live", time.Time{})
	require.NoError(t, err)
	_, err = f.registry.Create("handle-gone", time.Time{})
	require.NoError(t, err)
	_, err = f.registry.Create("handle-stale", f.now.Add(10*time.Second))
	require.NoError(t, err)

	removed, err := f.registry.SweepExpired(context.Background(), f.now.Add(30*time.Second))
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Equal(t, 1, f.registry.Len())
	require.Equal(t, "short_codes", f.registry.Name())
}
