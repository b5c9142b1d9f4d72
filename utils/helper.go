package utils

import (
	"os"
	"strconv"
	"time"
)

func NewFalse() *bool {
	b := false
	return &b
}

// GetCacheLifespan reads CACHE_LIFESPAN (hours) and defaults to 1 hour.
func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil || lifespan <= 0 {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func EnvOrDefault(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
