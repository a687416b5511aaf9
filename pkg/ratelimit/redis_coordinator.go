// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	gwerrors "github.com/PTTG-IT/SDP-MCP-sub003/pkg/errors"
	"github.com/PTTG-IT/SDP-MCP-sub003/pkg/store"
)

// RedisCoordinator is the optional multi-instance Coordinator: refresh
// windows and request budgets live in Redis sorted sets so every
// gateway process observes the same counts. Selected by config when
// coordination is "redis"; StoreCoordinator remains canonical for a
// single instance.
type RedisCoordinator struct {
	client *redis.Client
	policy RefreshPolicy
}

// NewRedisCoordinator builds a Coordinator backed by a Redis client,
// enforcing policy.
func NewRedisCoordinator(client *redis.Client, policy RefreshPolicy) *RedisCoordinator {
	return &RedisCoordinator{client: client, policy: policy}
}

func refreshKey(tenantID string) string { return "sdpgw:refresh:" + tenantID }
func budgetKey(tenantID, unit string) string { return fmt.Sprintf("sdpgw:budget:%s:%s", unit, tenantID) }

// AllowRefresh enforces the minimum-interval and windowed-cap rules
// using a Redis sorted set keyed by tenant, scored by refresh time.
func (c *RedisCoordinator) AllowRefresh(ctx context.Context, tenantID string) (Decision, error) {
	return c.checkRefresh(ctx, tenantID, true)
}

// AllowForcedRefresh enforces only the windowed-cap rule.
func (c *RedisCoordinator) AllowForcedRefresh(ctx context.Context, tenantID string) (Decision, error) {
	return c.checkRefresh(ctx, tenantID, false)
}

func (c *RedisCoordinator) checkRefresh(ctx context.Context, tenantID string, enforceMinInterval bool) (Decision, error) {
	key := refreshKey(tenantID)
	now := time.Now()

	if err := c.client.ZRemRangeByScore(ctx, key, "-inf", scoreStr(now.Add(-c.policy.Window))).Err(); err != nil {
		return Decision{}, gwerrors.NewInternalError("failed to prune refresh window", err)
	}

	if enforceMinInterval {
		latest, err := c.client.ZRevRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return Decision{}, gwerrors.NewInternalError("failed to read latest refresh", err)
		}
		if len(latest) == 1 {
			last := unscore(latest[0].Score)
			if elapsed := now.Sub(last); elapsed < c.policy.MinInterval {
				return Deny(c.policy.MinInterval - elapsed), nil
			}
		}
	}

	count, err := c.client.ZCard(ctx, key).Result()
	if err != nil {
		return Decision{}, gwerrors.NewInternalError("failed to count refresh window", err)
	}
	if count >= int64(c.policy.WindowCap) {
		oldest, err := c.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return Decision{}, gwerrors.NewInternalError("failed to read oldest refresh", err)
		}
		retryAfter := c.policy.Window
		if len(oldest) == 1 {
			retryAfter = unscore(oldest[0].Score).Add(c.policy.Window).Sub(now)
		}
		return Deny(retryAfter), nil
	}

	return Allow, nil
}

// RecordRefresh adds a member to the tenant's refresh window, scored by
// `at`, with the key expiring well past the window so abandoned tenants
// don't accumulate forever.
func (c *RedisCoordinator) RecordRefresh(ctx context.Context, tenantID string, at time.Time) error {
	key := refreshKey(tenantID)
	member := fmt.Sprintf("%d", at.UnixNano())
	if err := c.client.ZAdd(ctx, key, redis.Z{Score: score(at), Member: member}).Err(); err != nil {
		return gwerrors.NewInternalError("failed to record refresh", err)
	}
	if err := c.client.Expire(ctx, key, c.policy.Window*2).Err(); err != nil {
		return gwerrors.NewInternalError("failed to set refresh window expiry", err)
	}
	return nil
}

// ReserveRequest checks and consumes one unit of tenantID's per-tier
// request budget using two Redis-backed sliding windows (per-minute,
// per-hour). The burst token bucket from StoreCoordinator is
// intentionally not replicated here: Redis round-trips already rate
// gate at network latency, and a distributed token bucket would need
// a Lua script to stay atomic across instances - out of scope for the
// optional multi-instance path.
func (c *RedisCoordinator) ReserveRequest(ctx context.Context, tenantID string, tier store.RateTier) (Decision, error) {
	budget := TierBudgets[tier]
	now := time.Now()

	if d, err := c.checkSlidingBudget(ctx, budgetKey(tenantID, "min"), now, time.Minute, budget.PerMinute); err != nil || !d.Allowed {
		return d, err
	}
	if d, err := c.checkSlidingBudget(ctx, budgetKey(tenantID, "hour"), now, time.Hour, budget.PerHour); err != nil || !d.Allowed {
		return d, err
	}

	member := fmt.Sprintf("%d", now.UnixNano())
	pipe := c.client.Pipeline()
	pipe.ZAdd(ctx, budgetKey(tenantID, "min"), redis.Z{Score: score(now), Member: member})
	pipe.Expire(ctx, budgetKey(tenantID, "min"), time.Minute*2)
	pipe.ZAdd(ctx, budgetKey(tenantID, "hour"), redis.Z{Score: score(now), Member: member})
	pipe.Expire(ctx, budgetKey(tenantID, "hour"), time.Hour*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, gwerrors.NewInternalError("failed to record request", err)
	}
	return Allow, nil
}

func (c *RedisCoordinator) checkSlidingBudget(ctx context.Context, key string, now time.Time, window time.Duration, budgetCap int) (Decision, error) {
	if err := c.client.ZRemRangeByScore(ctx, key, "-inf", scoreStr(now.Add(-window))).Err(); err != nil {
		return Decision{}, gwerrors.NewInternalError("failed to prune request budget", err)
	}
	count, err := c.client.ZCard(ctx, key).Result()
	if err != nil {
		return Decision{}, gwerrors.NewInternalError("failed to count request budget", err)
	}
	if count >= int64(budgetCap) {
		oldest, err := c.client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err != nil {
			return Decision{}, gwerrors.NewInternalError("failed to read oldest request", err)
		}
		retryAfter := window
		if len(oldest) == 1 {
			retryAfter = unscore(oldest[0].Score).Add(window).Sub(now)
		}
		return Deny(retryAfter), nil
	}
	return Allow, nil
}

func score(t time.Time) float64   { return float64(t.UnixNano()) }
func scoreStr(t time.Time) string { return strconv.FormatFloat(score(t), 'f', -1, 64) }
func unscore(s float64) time.Time { return time.Unix(0, int64(s)) }
