package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

var Client *redis.Client

// InitRedis initializes Redis connection
func InitRedis(addr, password string, db int) error {
	Client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx := context.Background()
	if err := Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✓ Redis connected successfully")
	return nil
}

// Close closes the Redis connection
func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}

func districtLockKey(districtID int) string {
	return fmt.Sprintf("rostersync:district:%d:processing", districtID)
}

// AcquireDistrictLock takes a best-effort advisory lock for one district
// processing pass. The scheduler contract already prevents double enqueue;
// the lock guards against overlapping passes from a second process.
func AcquireDistrictLock(ctx context.Context, districtID int, ttl time.Duration) (bool, error) {
	if Client == nil {
		// Redis is optional; without it the scheduler contract is the only guard.
		return true, nil
	}
	return Client.SetNX(ctx, districtLockKey(districtID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// ReleaseDistrictLock releases the advisory lock for a district.
func ReleaseDistrictLock(ctx context.Context, districtID int) error {
	if Client == nil {
		return nil
	}
	return Client.Del(ctx, districtLockKey(districtID)).Err()
}
