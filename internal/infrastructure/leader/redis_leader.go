package leader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"auction-marketplace/pkg/logger"
)

var (
	extendScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("PEXPIRE", KEYS[1], ARGV[2])
        else
            return 0
        end
    `)
	releaseScript = redis.NewScript(`
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        else
            return 0
        end
    `)
)

// RedisLeaderElection holds a single lease key. The holder refreshes it at a
// third of the TTL and is told through a channel when it stops holding it.
type RedisLeaderElection struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	log    logger.Logger

	mu    sync.Mutex
	stops map[string]chan struct{}
}

func NewRedisLeaderElection(client *redis.Client, key string, ttl time.Duration, log logger.Logger) *RedisLeaderElection {
	return &RedisLeaderElection{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    log,
		stops:  make(map[string]chan struct{}),
	}
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, <-chan struct{}, error) {
	acquired, err := r.client.SetNX(ctx, r.key, instanceID, r.ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if !acquired {
		return false, nil, nil
	}

	lost := make(chan struct{})
	stop := make(chan struct{})
	r.mu.Lock()
	if prev, ok := r.stops[instanceID]; ok {
		close(prev)
	}
	r.stops[instanceID] = stop
	r.mu.Unlock()

	go r.maintainLeadership(instanceID, stop, lost)
	return true, lost, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	if stop, ok := r.stops[instanceID]; ok {
		close(stop)
		delete(r.stops, instanceID)
	}
	r.mu.Unlock()

	return releaseScript.Run(ctx, r.client, []string{r.key}, instanceID).Err()
}

func (r *RedisLeaderElection) maintainLeadership(instanceID string, stop <-chan struct{}, lost chan<- struct{}) {
	defer close(lost)

	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
		result, err := extendScript.Run(ctx, r.client, []string{r.key}, instanceID, r.ttl.Milliseconds()).Int64()
		cancel()

		if err != nil || result == 0 {
			r.log.Warn("Leadership lost", "instance", instanceID, "error", err)
			r.mu.Lock()
			if r.stops[instanceID] == stop {
				delete(r.stops, instanceID)
			}
			r.mu.Unlock()
			return
		}
	}
}
