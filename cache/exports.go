package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const exportKeyPrefix = "virtwin:export:"

const defaultExportTTL = 5 * time.Minute

// exportTTL reads EXPORT_CACHE_TTL_SECONDS, falling back to five minutes.
func exportTTL() time.Duration {
	raw := strings.TrimSpace(os.Getenv("EXPORT_CACHE_TTL_SECONDS"))
	if raw == "" {
		return defaultExportTTL
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultExportTTL
	}
	return time.Duration(seconds) * time.Second
}

func exportKey(digitalTwinID uint64) string {
	return fmt.Sprintf("%s%d", exportKeyPrefix, digitalTwinID)
}

// GetExport returns the cached export document for a digital twin, if any.
func GetExport(ctx context.Context, digitalTwinID uint64) ([]byte, bool) {
	client, err := GetRedisClient()
	if err != nil || client == nil {
		return nil, false
	}

	data, err := client.Get(ctx, exportKey(digitalTwinID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: read export %d failed: %v", digitalTwinID, err)
		}
		return nil, false
	}
	return data, true
}

// StoreExport caches an assembled export document with the configured TTL.
func StoreExport(ctx context.Context, digitalTwinID uint64, data []byte) {
	client, err := GetRedisClient()
	if err != nil || client == nil {
		return
	}

	if err := client.Set(ctx, exportKey(digitalTwinID), data, exportTTL()).Err(); err != nil {
		log.Printf("cache: store export %d failed: %v", digitalTwinID, err)
	}
}

// DropExport removes the cached export for one digital twin. Called from every
// write that touches the twin's configuration.
func DropExport(ctx context.Context, digitalTwinID uint64) {
	client, err := GetRedisClient()
	if err != nil || client == nil {
		return
	}

	if err := client.Del(ctx, exportKey(digitalTwinID)).Err(); err != nil {
		log.Printf("cache: drop export %d failed: %v", digitalTwinID, err)
	}
}

// DropAllExports removes every cached export document. Used when a shared
// entity (layer, tool, bookmark, project, story, terrain provider) changes,
// since any twin may reference it.
func DropAllExports(ctx context.Context) {
	client, err := GetRedisClient()
	if err != nil || client == nil {
		return
	}

	iter := client.Scan(ctx, 0, exportKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: scan export keys failed: %v", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache: drop all exports failed: %v", err)
	}
}
