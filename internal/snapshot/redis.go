// Package snapshot persists each delivery's last known position and driver
// presence in Redis. Relay instances are stateless between restarts; the
// snapshot lets a fresh instance serve a latest position before the driver
// reports again, and lets REST consumers read without a socket.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Ireoluwatomide/swift-track-relay/internal/domain"
)

const (
	defaultTTL = 30 * time.Minute

	latestKeyPrefix   = "track:latest:"
	presenceKeyPrefix = "track:presence:"
)

// Presence is the persisted driver presence record.
type Presence struct {
	Status     string    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Store reads and writes delivery snapshots.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a snapshot store with the default TTL.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client, ttl: defaultTTL}
}

// WithTTL sets a custom snapshot TTL.
func (s *Store) WithTTL(ttl time.Duration) *Store {
	return &Store{client: s.client, ttl: ttl}
}

// setLatestScript writes the sample only when its sequence is higher than
// the stored one, so the latest pointer never regresses even with multiple
// relay instances writing.
var setLatestScript = redis.NewScript(`
	local existing = redis.call('GET', KEYS[1])
	if existing then
		local stored = cjson.decode(existing)
		local incoming = cjson.decode(ARGV[1])
		if stored.sequence >= incoming.sequence then
			redis.call('EXPIRE', KEYS[1], ARGV[2])
			return 0
		end
	end
	redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
	return 1
`)

// SetLatest stores the sample as the delivery's last known position.
// Returns whether the stored pointer advanced.
func (s *Store) SetLatest(ctx context.Context, deliveryID string, sample domain.PositionSample) (bool, error) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return false, fmt.Errorf("marshal snapshot: %w", err)
	}

	result, err := setLatestScript.Run(ctx, s.client,
		[]string{latestKeyPrefix + deliveryID},
		payload, int(s.ttl.Seconds()),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("set latest snapshot: %w", err)
	}
	return result == 1, nil
}

// GetLatest returns the last known position for a delivery, if any.
func (s *Store) GetLatest(ctx context.Context, deliveryID string) (domain.PositionSample, bool, error) {
	raw, err := s.client.Get(ctx, latestKeyPrefix+deliveryID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.PositionSample{}, false, nil
	}
	if err != nil {
		return domain.PositionSample{}, false, fmt.Errorf("get latest snapshot: %w", err)
	}

	var sample domain.PositionSample
	if err := json.Unmarshal([]byte(raw), &sample); err != nil {
		return domain.PositionSample{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return sample, true, nil
}

// SetPresence stores the driver presence for a delivery.
func (s *Store) SetPresence(ctx context.Context, deliveryID string, presence Presence) error {
	payload, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := s.client.Set(ctx, presenceKeyPrefix+deliveryID, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

// GetPresence returns the stored driver presence for a delivery, if any.
func (s *Store) GetPresence(ctx context.Context, deliveryID string) (Presence, bool, error) {
	raw, err := s.client.Get(ctx, presenceKeyPrefix+deliveryID).Result()
	if errors.Is(err, redis.Nil) {
		return Presence{}, false, nil
	}
	if err != nil {
		return Presence{}, false, fmt.Errorf("get presence: %w", err)
	}

	var presence Presence
	if err := json.Unmarshal([]byte(raw), &presence); err != nil {
		return Presence{}, false, fmt.Errorf("decode presence: %w", err)
	}
	return presence, true, nil
}

// Delete removes all snapshot keys for a delivery. Called when the delivery
// reaches a terminal state.
func (s *Store) Delete(ctx context.Context, deliveryID string) error {
	return s.client.Del(ctx, latestKeyPrefix+deliveryID, presenceKeyPrefix+deliveryID).Err()
}
