package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheStore holds the read-model snapshots the saga's fan-out step
// refreshes for the two bounded contexts.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants
const (
	TripCacheTTL = 5 * time.Minute
	RideCacheTTL = 5 * time.Minute
)

// Key prefixes
const (
	tripCachePrefix = "cache:trip:"
	rideCachePrefix = "cache:ride:"
)

// CachedTrip is the traveller-facing trip snapshot.
type CachedTrip struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	FareLegs    int    `json:"fare_legs"`
	SettledLegs int    `json:"settled_legs"`
}

// CachedRide is the driver-facing ride snapshot.
type CachedRide struct {
	ID              string `json:"id"`
	State           string `json:"state"`
	Bookings        int    `json:"bookings"`
	SettledBookings int    `json:"settled_bookings"`
}

// GetTrip retrieves a trip snapshot. Returns nil on cache miss.
func (s *CacheStore) GetTrip(ctx context.Context, tripID string) (*CachedTrip, error) {
	data, err := s.client.Get(ctx, tripCachePrefix+tripID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var trip CachedTrip
	if err := json.Unmarshal(data, &trip); err != nil {
		return nil, err
	}
	return &trip, nil
}

// SetTrip stores a trip snapshot.
func (s *CacheStore) SetTrip(ctx context.Context, trip *CachedTrip) error {
	data, err := json.Marshal(trip)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, tripCachePrefix+trip.ID, data, TripCacheTTL).Err()
}

// GetRide retrieves a ride snapshot. Returns nil on cache miss.
func (s *CacheStore) GetRide(ctx context.Context, rideID string) (*CachedRide, error) {
	data, err := s.client.Get(ctx, rideCachePrefix+rideID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var ride CachedRide
	if err := json.Unmarshal(data, &ride); err != nil {
		return nil, err
	}
	return &ride, nil
}

// SetRide stores a ride snapshot.
func (s *CacheStore) SetRide(ctx context.Context, ride *CachedRide) error {
	data, err := json.Marshal(ride)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, rideCachePrefix+ride.ID, data, RideCacheTTL).Err()
}

// InvalidateTrip removes a trip snapshot.
func (s *CacheStore) InvalidateTrip(ctx context.Context, tripID string) error {
	return s.client.Del(ctx, tripCachePrefix+tripID).Err()
}

// InvalidateRide removes a ride snapshot.
func (s *CacheStore) InvalidateRide(ctx context.Context, rideID string) error {
	return s.client.Del(ctx, rideCachePrefix+rideID).Err()
}
