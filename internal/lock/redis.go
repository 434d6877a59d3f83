package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultTTL bounds how long a claim survives a crashed holder. A live holder
// keeps extending it, so a long cycle never loses its claim.
const DefaultTTL = 2 * time.Minute

// releaseScript deletes the key only while it still carries our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// renewScript extends the TTL only while the key still carries our token.
const renewScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`

// RedisOptions for creating a Redis locker.
type RedisOptions struct {
	Client     redis.Cmdable
	TTL        time.Duration
	RenewEvery time.Duration // defaults to TTL/3
	Token      func() string // claim token generator, defaults to uuid
}

// Redis claims indexes across processes with SET NX PX. A held claim is
// renewed in the background until it is released.
type Redis struct {
	client     redis.Cmdable
	ttl        time.Duration
	renewEvery time.Duration
	token      func() string
}

// NewRedis creates a Redis-backed Locker.
func NewRedis(opts RedisOptions) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.RenewEvery <= 0 || opts.RenewEvery >= opts.TTL {
		opts.RenewEvery = opts.TTL / 3
	}
	if opts.Token == nil {
		opts.Token = func() string { return uuid.NewString() }
	}
	return &Redis{client: opts.Client, ttl: opts.TTL, renewEvery: opts.RenewEvery, token: opts.Token}
}

var _ Locker = (*Redis)(nil)

// Acquire claims indexID until released. The claim only lapses after TTL
// when its holder stops renewing it.
func (r *Redis) Acquire(ctx context.Context, indexID uint64) (Release, error) {
	key := Key(indexID)
	token := r.token()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claim index %d: %w", indexID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrHeld, indexID)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(key, token, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			<-done
			if e := r.client.Eval(ctx, releaseScript, []string{key}, token).Err(); e != nil {
				err = fmt.Errorf("release index %d: %w", indexID, e)
			}
		})
		return err
	}, nil
}

// keepAlive extends the claim every renewEvery until stop is closed or the
// key no longer carries token. Failed renewals are retried on the next tick;
// the TTL leaves room for two misses.
func (r *Redis) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.renewEvery)
			n, err := r.client.Eval(ctx, renewScript, []string{key}, token, r.ttl.Milliseconds()).Int64()
			cancel()
			if err == nil && n == 0 {
				return
			}
		}
	}
}
