// Package provenance keeps per-day counters of which source served each
// resolution so fallback rates can be watched across instances.
package provenance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"fleetsite/api/internal/resolver"
)

const (
	DayLayout = "2006-01-02"

	keyPrefix    = "provenance:"
	counterTTL   = 7 * 24 * time.Hour
	writeTimeout = 250 * time.Millisecond
)

// ErrInvalidDay is returned for a day that is not YYYY-MM-DD.
var ErrInvalidDay = errors.New("day must be YYYY-MM-DD")

// Summary is one endpoint's counters for one UTC day.
type Summary struct {
	Endpoint     string           `json:"endpoint"`
	Day          string           `json:"day"`
	Counts       map[string]int64 `json:"counts"`
	Total        int64            `json:"total"`
	FallbackRate float64          `json:"fallback_rate"`
}

// RedisStore implements provenance counters on Redis hashes.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(endpoint, day string) string {
	return s.prefix + endpoint + ":" + day
}

// Record increments the counter for source on today's hash and refreshes its TTL.
func (s *RedisStore) Record(ctx context.Context, endpoint string, source resolver.Source) error {
	key := s.key(endpoint, s.now().UTC().Format(DayLayout))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, string(source), 1)
		pipe.Expire(ctx, key, counterTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record provenance: %w", err)
	}
	return nil
}

// Summary reads the counters for endpoint on day. An empty day means today.
func (s *RedisStore) Summary(ctx context.Context, endpoint, day string) (Summary, error) {
	if day == "" {
		day = s.now().UTC().Format(DayLayout)
	} else if _, err := time.Parse(DayLayout, day); err != nil {
		return Summary{}, ErrInvalidDay
	}

	raw, err := s.client.HGetAll(ctx, s.key(endpoint, day)).Result()
	if err != nil {
		return Summary{}, fmt.Errorf("read provenance: %w", err)
	}

	summary := Summary{Endpoint: endpoint, Day: day, Counts: make(map[string]int64, len(raw))}
	var degraded int64
	for source, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Summary{}, fmt.Errorf("parse provenance counter %s: %w", source, err)
		}
		summary.Counts[source] = n
		summary.Total += n
		if resolver.Source(source).Degraded() {
			degraded += n
		}
	}
	if summary.Total > 0 {
		summary.FallbackRate = float64(degraded) / float64(summary.Total)
	}
	return summary, nil
}

// For returns an observer that records each adopted outcome for endpoint.
// Writes happen in the background and never delay the response.
func (s *RedisStore) For(endpoint string) resolver.Observer {
	return endpointObserver{store: s, endpoint: endpoint}
}

// Close waits for pending writes and closes the Redis connection.
func (s *RedisStore) Close() error {
	s.wg.Wait()
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type endpointObserver struct {
	store    *RedisStore
	endpoint string
}

func (o endpointObserver) ObserveAttempt(resolver.Source, resolver.Status, time.Duration) {}

func (o endpointObserver) ObserveOutcome(source resolver.Source, _ time.Duration) {
	o.store.wg.Add(1)
	go func() {
		defer o.store.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := o.store.Record(ctx, o.endpoint, source); err != nil {
			log.WithField("endpoint", o.endpoint).Debugf("provenance: %v", err)
		}
	}()
}
