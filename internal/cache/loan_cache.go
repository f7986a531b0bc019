package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/loan-engine/internal/domain"
)

// LoanCache stores loan details (with installments) for fast reads.
// Get returns (nil, nil) on a miss.
type LoanCache interface {
	Get(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error)
	Set(ctx context.Context, loan *domain.Loan) error
	Invalidate(ctx context.Context, loanID uuid.UUID) error
}

// invalidationWindow is how long an invalidation blocks writes of the same
// loan. It must outlast a repository read followed by Set.
const invalidationWindow = 10 * time.Second

type redisLoanCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLoanCache returns a LoanCache backed by Redis.
func NewRedisLoanCache(client *redis.Client, ttl time.Duration) LoanCache {
	return &redisLoanCache{client: client, ttl: ttl}
}

func loanKey(loanID uuid.UUID) string {
	return fmt.Sprintf("loan:%s", loanID)
}

func invalidatedKey(loanID uuid.UUID) string {
	return fmt.Sprintf("loan:%s:invalidated", loanID)
}

func (c *redisLoanCache) Get(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	data, err := c.client.Get(ctx, loanKey(loanID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var loan domain.Loan
	if err := json.Unmarshal(data, &loan); err != nil {
		return nil, fmt.Errorf("decode cached loan %s: %w", loanID, err)
	}
	return &loan, nil
}

// Set stores loan unless it was invalidated within invalidationWindow. The
// marker is watched so an invalidation racing with Set aborts the write.
func (c *redisLoanCache) Set(ctx context.Context, loan *domain.Loan) error {
	data, err := json.Marshal(loan)
	if err != nil {
		return err
	}

	marker := invalidatedKey(loan.ID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, marker).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, loanKey(loan.ID), data, c.ttl)
			return nil
		})
		return err
	}, marker)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *redisLoanCache) Invalidate(ctx context.Context, loanID uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, invalidatedKey(loanID), 1, invalidationWindow)
		pipe.Del(ctx, loanKey(loanID))
		return nil
	})
	return err
}

type noopLoanCache struct{}

// NewNoopLoanCache returns a LoanCache that never stores anything.
func NewNoopLoanCache() LoanCache {
	return noopLoanCache{}
}

func (noopLoanCache) Get(context.Context, uuid.UUID) (*domain.Loan, error) { return nil, nil }
func (noopLoanCache) Set(context.Context, *domain.Loan) error              { return nil }
func (noopLoanCache) Invalidate(context.Context, uuid.UUID) error          { return nil }
