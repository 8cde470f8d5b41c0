package sink

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/l7mp/difflow/pkg/dataflow"
	"github.com/l7mp/difflow/pkg/util"
)

// Evaler abstracts the minimal surface needed from a Redis client.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// GoRedisEvaler implements Evaler with github.com/redis/go-redis/v9.
type GoRedisEvaler struct{ c *redis.Client }

// NewGoRedisEvaler connects to the Redis server at addr, using database db.
func NewGoRedisEvaler(addr string, db int) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// Eval implements Evaler.
func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// Close closes the connection pool.
func (g *GoRedisEvaler) Close() error { return g.c.Close() }

// redisAccumulate adds a diff to a hash field and deletes the field when it reaches zero, so
// the hash holds exactly the records with a non-zero multiplicity.
const redisAccumulate = `
local v = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
if v == 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
end
return v
`

// Redis maintains the accumulated contents of a collection in a Redis hash. Fields are the
// records rendered as JSON, values their multiplicities.
type Redis[T comparable] struct {
	client Evaler
	key    string
}

// NewRedis creates a sink writing to the hash at key.
func NewRedis[T comparable](client Evaler, key string) *Redis[T] {
	return &Redis[T]{client: client, key: key}
}

// Key returns the hash key.
func (r *Redis[T]) Key() string { return r.key }

// Write implements Sink. Diffs of the same record are summed first.
func (r *Redis[T]) Write(ctx context.Context, ups []dataflow.Update[T]) error {
	z := dataflow.FromUpdates(ups)
	for _, w := range z.Entries() {
		field := util.Stringify(w.Value)
		if _, err := r.client.Eval(ctx, redisAccumulate, []string{r.key}, field, w.Count); err != nil {
			return fmt.Errorf("redis key=%s field=%s: %w", r.key, field, err)
		}
	}
	return nil
}
