package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-engine/internal/domain"
)

func TestNoopLoanCache(t *testing.T) {
	c := NewNoopLoanCache()
	ctx := context.Background()
	loan := &domain.Loan{ID: uuid.New()}

	require.NoError(t, c.Set(ctx, loan))
	got, err := c.Get(ctx, loan.ID)
	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, loan.ID))
}

func TestLoanKey(t *testing.T) {
	id := uuid.MustParse("5f0c8a4e-2a43-4d3b-9c41-3f4f2b1f0c11")
	assert.Equal(t, "loan:5f0c8a4e-2a43-4d3b-9c41-3f4f2b1f0c11", loanKey(id))
}

func TestInvalidatedKey(t *testing.T) {
	id := uuid.MustParse("5f0c8a4e-2a43-4d3b-9c41-3f4f2b1f0c11")
	assert.Equal(t, "loan:5f0c8a4e-2a43-4d3b-9c41-3f4f2b1f0c11:invalidated", invalidatedKey(id))
	assert.NotEqual(t, loanKey(id), invalidatedKey(id))
}

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping Redis cache tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisLoanCache(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	c := NewRedisLoanCache(client, time.Minute)

	loan, err := domain.NewLoan("user-1", domain.MustMoney("100.00"), 3, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	got, err := c.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, loan))
	got, err = c.Get(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, loan.ID, got.ID)
	assert.Equal(t, loan.Principal, got.Principal)
	require.Len(t, got.Installments, 3)
	assert.Equal(t, domain.MustMoney("33.34"), got.Installments[2].Amount)

	require.NoError(t, c.Invalidate(ctx, loan.ID))
	got, err = c.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisLoanCache_SetAfterInvalidateIsDropped(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()
	c := NewRedisLoanCache(client, time.Minute)

	stale, err := domain.NewLoan("user-1", domain.MustMoney("50.00"), 2, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// a reader loaded stale before a writer committed and invalidated
	require.NoError(t, c.Invalidate(ctx, stale.ID))
	require.NoError(t, c.Set(ctx, stale))

	got, err := c.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	ttl, err := client.TTL(ctx, invalidatedKey(stale.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, invalidationWindow)

	require.NoError(t, client.Del(ctx, invalidatedKey(stale.ID)).Err())
	require.NoError(t, c.Set(ctx, stale))
	got, err = c.Get(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stale.ID, got.ID)
}
