// Package liveness はRedisによるユーザーのアクティブ状態の追跡を提供する。
// アクティブ判定のソースオブトゥルースはTTL付きのユーザーキーで、
// active_usersセットは全体の概観用の補助インデックスとして保持する。
package liveness

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// activeSetKey はアクティブユーザーIDを集約する補助セットのキー。
const activeSetKey = "active_users"

// Cache はユーザーのアクティブ状態をRedisで管理する。
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New はRedisに接続してCacheを生成する。接続確認のためPingを行う。
func New(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("RedisのURLが不正です: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redisへの接続に失敗しました: %w", err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// userKey はユーザーのアクティブキーを返す。
func userKey(userID int64) string {
	return fmt.Sprintf("user:%d:active", userID)
}

// MarkActive はユーザーをアクティブとして記録する。
// TTL付きキーを張り直し、補助セットにユーザーIDを追加する。
func (c *Cache) MarkActive(ctx context.Context, userID int64) error {
	if err := c.client.SetEX(ctx, userKey(userID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("アクティブキーの設定に失敗しました: %w", err)
	}
	if err := c.client.SAdd(ctx, activeSetKey, strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("アクティブセットへの追加に失敗しました: %w", err)
	}
	return nil
}

// IsActive はユーザーがアクティブかどうかを返す。
// TTL切れでキーが消えていた場合は補助セットからも取り除く。
func (c *Cache) IsActive(ctx context.Context, userID int64) (bool, error) {
	n, err := c.client.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("アクティブキーの確認に失敗しました: %w", err)
	}

	if n == 0 {
		if err := c.client.SRem(ctx, activeSetKey, strconv.FormatInt(userID, 10)).Err(); err != nil {
			return false, fmt.Errorf("アクティブセットからの削除に失敗しました: %w", err)
		}
		return false, nil
	}

	return true, nil
}

// Deactivate はユーザーのアクティブ状態を即時に取り消す（ログアウト時）。
func (c *Cache) Deactivate(ctx context.Context, userID int64) error {
	if err := c.client.Del(ctx, userKey(userID)).Err(); err != nil {
		return fmt.Errorf("アクティブキーの削除に失敗しました: %w", err)
	}
	if err := c.client.SRem(ctx, activeSetKey, strconv.FormatInt(userID, 10)).Err(); err != nil {
		return fmt.Errorf("アクティブセットからの削除に失敗しました: %w", err)
	}
	return nil
}

// CountActive は補助セット上のアクティブユーザー数を返す。
// TTL切れの残留があり得るため概算値として扱う。
func (c *Cache) CountActive(ctx context.Context) (int64, error) {
	n, err := c.client.SCard(ctx, activeSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("アクティブユーザー数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// Ping はRedisの疎通を確認する。
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close はRedis接続を閉じる。
func (c *Cache) Close() error {
	return c.client.Close()
}
