package cache

import (
	"github.com/redis/go-redis/v9"
)

// Open parses a redis:// URL and returns a client. Connectivity is checked by the caller.
func Open(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opt), nil
}
