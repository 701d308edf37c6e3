package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rryowa/quantive/internal/models"
)

const profileKeyPrefix = "quantive:user:profile:"

// UserCache keeps user profiles for GET /users/me. Password hashes never leave
// the database.
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUserCache(client *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{client: client, ttl: ttl}
}

func profileKey(userID int64) string {
	return profileKeyPrefix + strconv.FormatInt(userID, 10)
}

// GetProfile returns nil without error on a cache miss.
func (c *UserCache) GetProfile(ctx context.Context, userID int64) (*models.User, error) {
	raw, err := c.client.Get(ctx, profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}
	return &user, nil
}

func (c *UserCache) SetProfile(ctx context.Context, user models.User) error {
	user.PasswordHash = ""
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return c.client.Set(ctx, profileKey(user.ID), raw, c.ttl).Err()
}
