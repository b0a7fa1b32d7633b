// Package cmd provides shared initialization for the binaries.
package cmd

import (
	"fmt"
	"strings"

	"github.com/loomhq/loom/pkg/persistence"
	"github.com/loomhq/loom/pkg/persistence/file"
	"github.com/loomhq/loom/pkg/persistence/redis"
)

// NewPersistence selects the storage backend from the database URL
// scheme. redis:// and rediss:// go to Redis, everything else is
// treated as a file store root.
func NewPersistence(databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "redis://"), strings.HasPrefix(databaseURL, "rediss://"):
		store, err := redis.NewPersistence(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		return store, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}
