package redisrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/weir/internal/cache"
	"github.com/dyluth/weir/pkg/record"
	"github.com/dyluth/weir/pkg/relay"
)

// subscriptionBuffer is the per-subscription delivery channel depth.
// Redis Pub/Sub is at-most-once; a subscriber that cannot keep up misses
// live records and recovers them from the stored backlog on resubscribe.
const subscriptionBuffer = 10

// Client implements relay.Transport on Redis. Records are persisted as
// hashes, indexed by declared timestamp, and fanned out live over Pub/Sub.
// The optional local cache is consulted according to the per-subscription
// cache policy. Thread-safe.
type Client struct {
	rdb          *redis.Client
	instanceName string
	cache        cache.Cache
	addr         string
}

// NewClient creates a transport client for the given instance. The cache
// may be nil, in which case cache-serving policies degrade to network-only
// behavior for reads while writes are simply not cached.
func NewClient(redisOpts *redis.Options, instanceName string, localCache cache.Cache) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		cache:        localCache,
		addr:         redisOpts.Addr,
	}, nil
}

// Close closes the Redis connection and the local cache. Implements
// io.Closer.
func (c *Client) Close() error {
	if c.cache != nil {
		c.cache.Close()
	}
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Publish validates the record, persists it, indexes it by declared
// timestamp and fans it out to live subscribers. Returns the destinations
// that acknowledged receipt. A record with no creator means no signing
// identity is bound, which is a configuration error, not a transport one.
func (c *Client) Publish(ctx context.Context, r *record.Record) ([]string, error) {
	if r.Creator == "" {
		return nil, fmt.Errorf("record has no creator: %w", relay.ErrNotConfigured)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}

	hash, err := recordToHash(r)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}

	key := RecordKey(c.instanceName, r.ID)
	if err := c.rdb.HSet(ctx, key, hash).Err(); err != nil {
		return nil, fmt.Errorf("failed to write record: %w: %v", relay.ErrUnavailable, err)
	}

	z := redis.Z{Score: float64(r.CreatedAt), Member: r.ID}
	if err := c.rdb.ZAdd(ctx, RecordIndexKey(c.instanceName), z).Err(); err != nil {
		return nil, fmt.Errorf("failed to index record: %w: %v", relay.ErrUnavailable, err)
	}

	recordJSON, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record for fan-out: %w", err)
	}
	if err := c.rdb.Publish(ctx, RecordsChannel(c.instanceName), recordJSON).Err(); err != nil {
		return nil, fmt.Errorf("failed to fan out record: %w: %v", relay.ErrUnavailable, err)
	}

	if c.cache != nil {
		// Cache write-through is best effort; the record is already on the
		// network.
		_ = c.cache.Put(ctx, r)
	}

	return []string{"redis://" + c.addr}, nil
}

// CollectOnce gathers the stored records matching the filter within the
// timeout. Bounded one-shot variant of Subscribe; no live delivery.
func (c *Client) CollectOnce(ctx context.Context, filter record.Filter, timeout time.Duration) ([]*record.Record, error) {
	collectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	records, err := c.storedRecords(collectCtx, filter)
	if err != nil {
		return nil, fmt.Errorf("collect failed: %w: %v", relay.ErrUnavailable, err)
	}
	return records, nil
}

// Subscribe opens a continuous record stream matching the filter. Delivery
// order per policy: cached records first (CacheOnly, CacheThenNetwork),
// then the stored backlog, then live fan-out. The consumer's recency rule
// makes the resulting duplicates harmless.
func (c *Client) Subscribe(ctx context.Context, filter record.Filter, policy relay.CachePolicy) (*relay.Subscription, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	recordsChan := make(chan *record.Record, subscriptionBuffer)
	errorsChan := make(chan error, subscriptionBuffer)
	subCtx, cancelFunc := context.WithCancel(ctx)

	var pubsub *redis.PubSub
	if policy != relay.CacheOnly {
		pubsub = c.rdb.Subscribe(subCtx, RecordsChannel(c.instanceName))
		if _, err := pubsub.Receive(subCtx); err != nil {
			pubsub.Close()
			cancelFunc()
			return nil, fmt.Errorf("subscribe failed: %w: %v", relay.ErrUnavailable, err)
		}
	}

	go func() {
		defer close(recordsChan)
		defer close(errorsChan)
		if pubsub != nil {
			defer pubsub.Close()
		}

		deliver := func(r *record.Record) bool {
			select {
			case recordsChan <- r:
				return true
			case <-subCtx.Done():
				return false
			}
		}

		reportErr := func(err error) bool {
			select {
			case errorsChan <- err:
				return true
			case <-subCtx.Done():
				return false
			}
		}

		// Phase 1: local cache replay.
		if policy != relay.NetworkOnly && c.cache != nil {
			cached, err := c.cache.Query(subCtx, filter)
			if err != nil {
				if !reportErr(fmt.Errorf("cache replay failed: %w", err)) {
					return
				}
			}
			for _, r := range cached {
				if !deliver(r) {
					return
				}
			}
		}

		// A cache-only stream stays open but silent; the caller closes it.
		if policy == relay.CacheOnly {
			<-subCtx.Done()
			return
		}

		// Phase 2: stored backlog.
		stored, err := c.storedRecords(subCtx, filter)
		if err != nil {
			if !reportErr(fmt.Errorf("backlog replay failed: %w: %v", relay.ErrUnavailable, err)) {
				return
			}
		}
		for _, r := range stored {
			if !deliver(r) {
				return
			}
		}

		// Phase 3: live fan-out.
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					reportErr(fmt.Errorf("live stream closed: %w", relay.ErrUnavailable))
					return
				}

				var r record.Record
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					if !reportErr(fmt.Errorf("failed to unmarshal record event: %w", err)) {
						return
					}
					continue
				}

				if !filter.Matches(&r) {
					continue
				}

				if c.cache != nil {
					_ = c.cache.Put(subCtx, &r)
				}

				if !deliver(&r) {
					return
				}
			}
		}
	}()

	return relay.NewSubscription(recordsChan, errorsChan, cancelFunc), nil
}

// storedRecords reads the timestamp index and filters the stored records.
func (c *Client) storedRecords(ctx context.Context, filter record.Filter) ([]*record.Record, error) {
	ids, err := c.rdb.ZRangeByScore(ctx, RecordIndexKey(c.instanceName), &redis.ZRangeBy{
		Min: "-inf",
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read record index: %w", err)
	}

	out := []*record.Record{}
	for _, id := range ids {
		hash, err := c.rdb.HGetAll(ctx, RecordKey(c.instanceName, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", id, err)
		}
		if len(hash) == 0 {
			// Index entry without a record hash: skip the orphan.
			continue
		}

		r, err := hashToRecord(hash)
		if err != nil {
			// A corrupt stored record is skipped, not fatal to the query.
			continue
		}

		if filter.Matches(r) {
			out = append(out, r)
		}
	}

	return out, nil
}
