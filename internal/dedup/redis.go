package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat-notification:sent:"

// RedisDeduplicator remembers which messages already had a notification sent,
// so a redelivered trigger event does not notify the receiver twice.
type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a Redis client and checks the connection.
func NewRedisClient(host, port, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, ttl: ttl}
}

// Claim reports whether the caller is the first to handle the message.
func (d *RedisDeduplicator) Claim(ctx context.Context, roomID, messageID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, key(roomID, messageID), time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim message %s/%s: %w", roomID, messageID, err)
	}
	return ok, nil
}

func (d *RedisDeduplicator) Release(ctx context.Context, roomID, messageID string) error {
	if err := d.client.Del(ctx, key(roomID, messageID)).Err(); err != nil {
		return fmt.Errorf("failed to release message %s/%s: %w", roomID, messageID, err)
	}
	return nil
}

func (d *RedisDeduplicator) Close() error {
	return d.client.Close()
}

func key(roomID, messageID string) string {
	return keyPrefix + roomID + ":" + messageID
}
