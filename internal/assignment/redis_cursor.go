package assignment

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

// DefaultCursorKey is the Redis key holding the round-robin counter.
const DefaultCursorKey = "procurement:assignment:rr_cursor"

// The counter only ever grows; the script maps it onto the current officer
// count so a change in list length never needs a reset.
const advanceScript = `
local v = redis.call("INCR", KEYS[1])
local n = tonumber(ARGV[1])
return (v - 1) % n
`

// RedisCursorStore keeps the round-robin cursor in Redis. INCR runs inside
// a script, so concurrent callers always receive distinct positions.
type RedisCursorStore struct {
	client redis.Scripter
	key    string
	script *redis.Script
}

// NewRedisCursorStore creates a store on key, or DefaultCursorKey when empty.
func NewRedisCursorStore(client redis.Scripter, key string) *RedisCursorStore {
	if key == "" {
		key = DefaultCursorKey
	}
	return &RedisCursorStore{
		client: client,
		key:    key,
		script: redis.NewScript(advanceScript),
	}
}

func (s *RedisCursorStore) Advance(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("cursor length must be positive")
	}
	v, err := s.script.Run(ctx, s.client, []string{s.key}, n).Int()
	if err != nil {
		return 0, err
	}
	return v, nil
}
