// Package keyvalue caches repository lookups (membership checks, invite
// resolution). Self-contained deployments use an in-process map, otherwise
// redis. Every mutation that touches a cached entity must Delete its key;
// no cached value is assumed correct without that invalidation.
package keyvalue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Value struct {
	value   string
	expires time.Time
}

var mutex sync.RWMutex
var hashmap = make(map[string]Value)

var sugar *zap.SugaredLogger
var redisClient *redis.Client
var redisCtx = context.Background()
var selfContained = true

func Setup(_sugar *zap.SugaredLogger, _redisClient *redis.Client, _selfContained bool) {
	sugar = _sugar
	redisClient = _redisClient
	selfContained = _selfContained

	if selfContained {
		go checkForLocalExpiredKeys()
	}
}

func checkForLocalExpiredKeys() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		mutex.Lock()
		for key, v := range hashmap {
			if v.expires.Before(time.Now()) {
				delete(hashmap, key)
			}
		}
		mutex.Unlock()
	}
}

func Get(key string) (string, error) {
	if selfContained {
		mutex.RLock()
		defer mutex.RUnlock()

		v := hashmap[key]
		if !v.expires.IsZero() && v.expires.Before(time.Now()) {
			return "", nil
		}
		return v.value, nil
	}

	value, err := redisClient.Get(redisCtx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, err
}

func Set(key string, value string, expires time.Duration) error {
	sugar.Debugf("Setting value of key [%s] to [%s]", key, value)
	if selfContained {
		mutex.Lock()
		defer mutex.Unlock()

		hashmap[key] = Value{value, time.Now().Add(expires)}

		return nil
	}

	_, err := redisClient.Set(redisCtx, key, value, expires).Result()
	return err
}

// Delete drops a key; deleting an absent key is not an error.
func Delete(keys ...string) error {
	if selfContained {
		mutex.Lock()
		defer mutex.Unlock()

		for _, key := range keys {
			delete(hashmap, key)
		}
		return nil
	}

	return redisClient.Del(redisCtx, keys...).Err()
}

// MemberKey caches "is profile a member of server" lookups.
func MemberKey(serverID int64, profileID int64) string {
	return fmt.Sprintf("member:%d:%d", serverID, profileID)
}
