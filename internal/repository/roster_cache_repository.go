package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edustack/lcm-api/internal/models"
)

// RosterCacheRepository caches group rosters in Redis. Cache failures
// degrade to database reads; they are never surfaced.
type RosterCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRosterCacheRepository constructs the cache. client may be nil to
// disable caching entirely.
func NewRosterCacheRepository(client *redis.Client, ttl time.Duration) *RosterCacheRepository {
	return &RosterCacheRepository{client: client, ttl: ttl}
}

func rosterKey(groupID string) string {
	return fmt.Sprintf("roster:%s", groupID)
}

// Get returns the cached roster, (nil, false) on miss or error.
func (r *RosterCacheRepository) Get(ctx context.Context, groupID string) ([]models.GroupStudentDetail, bool) {
	if r == nil || r.client == nil {
		return nil, false
	}
	raw, err := r.client.Get(ctx, rosterKey(groupID)).Bytes()
	if err != nil {
		return nil, false
	}
	var roster []models.GroupStudentDetail
	if err := json.Unmarshal(raw, &roster); err != nil {
		return nil, false
	}
	return roster, true
}

// Set stores the roster with the configured TTL.
func (r *RosterCacheRepository) Set(ctx context.Context, groupID string, roster []models.GroupStudentDetail) {
	if r == nil || r.client == nil {
		return
	}
	raw, err := json.Marshal(roster)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, rosterKey(groupID), raw, r.ttl).Err()
}

// Invalidate drops the cached roster after membership mutations.
func (r *RosterCacheRepository) Invalidate(ctx context.Context, groupID string) {
	if r == nil || r.client == nil {
		return
	}
	_ = r.client.Del(ctx, rosterKey(groupID)).Err()
}
