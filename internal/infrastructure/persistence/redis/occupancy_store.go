package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/campus-progression/internal/domain/campus"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OCCUPANCY STORE
// ══════════════════════════════════════════════════════════════════════════════

// OccupancyStore implements campus.OccupancyStore on Redis.
//
// Layout:
//   - HASH "{prefix}campus:loc:{id}"  user id -> occupant JSON (without LastSeenAt)
//   - HASH "{prefix}campus:where"     user id -> location id
//   - ZSET "{prefix}campus:seen"      user id, score = last activity (unix ms)
//
// Every mutation runs as a Lua script, so the capacity check and the move
// between locations happen in one step. Scripts touch the previous location
// key by name, which ties the layout to a single Redis node.
type OccupancyStore struct {
	client *Client
}

// NewOccupancyStore creates the store.
func NewOccupancyStore(client *Client) *OccupancyStore {
	return &OccupancyStore{client: client}
}

// storedOccupant is the hash payload. LastSeenAt lives in the seen set.
type storedOccupant struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	LocationID  string    `json:"location_id"`
	JoinedAt    time.Time `json:"joined_at"`
}

func (s *OccupancyStore) locPrefix() string { return s.client.Key("campus", "loc") + ":" }
func (s *OccupancyStore) locKey(id string) string {
	return s.locPrefix() + id
}
func (s *OccupancyStore) whereKey() string { return s.client.Key("campus", "where") }
func (s *OccupancyStore) seenKey() string  { return s.client.Key("campus", "seen") }

// ─────────────────────────────────────────────────────────────────────────────
// Scripts
// ─────────────────────────────────────────────────────────────────────────────

// KEYS: where, seen, target location
// ARGV: user, location id, capacity, occupant json, seen ms, location key prefix
// Returns {status, previous location, occupancy}; status 1 = already present,
// 0 = joined, -1 = full.
var joinScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], ARGV[1])
if prev == ARGV[2] and redis.call('HEXISTS', KEYS[3], ARGV[1]) == 1 then
  local cur = redis.call('ZSCORE', KEYS[2], ARGV[1])
  if not cur or tonumber(cur) < tonumber(ARGV[5]) then
    redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
  end
  return {1, '', redis.call('HLEN', KEYS[3])}
end
if redis.call('HLEN', KEYS[3]) >= tonumber(ARGV[3]) then
  return {-1, '', 0}
end
if prev and prev ~= ARGV[2] then
  redis.call('HDEL', ARGV[6] .. prev, ARGV[1])
else
  prev = ''
end
redis.call('HSET', KEYS[3], ARGV[1], ARGV[4])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[5], ARGV[1])
return {0, prev, redis.call('HLEN', KEYS[3])}
`)

// KEYS: where, seen, location
// ARGV: user, location id
var leaveScript = redis.NewScript(`
if redis.call('HDEL', KEYS[3], ARGV[1]) == 0 then
  return 0
end
if redis.call('HGET', KEYS[1], ARGV[1]) == ARGV[2] then
  redis.call('HDEL', KEYS[1], ARGV[1])
  redis.call('ZREM', KEYS[2], ARGV[1])
end
return 1
`)

// KEYS: where, seen
// ARGV: user, seen ms
var touchScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 0 then
  return 0
end
local cur = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not cur or tonumber(cur) < tonumber(ARGV[2]) then
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
end
return 1
`)

// KEYS: where, seen
// ARGV: user, cutoff ms, location key prefix
// Re-checks the heartbeat so a touch that landed after the scan wins.
// Returns {occupant json, last seen ms} or an empty table.
var evictScript = redis.NewScript(`
local seen = redis.call('ZSCORE', KEYS[2], ARGV[1])
if not seen or tonumber(seen) >= tonumber(ARGV[2]) then
  return {}
end
local loc = redis.call('HGET', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
if not loc then
  return {}
end
local occ = redis.call('HGET', ARGV[3] .. loc, ARGV[1])
redis.call('HDEL', ARGV[3] .. loc, ARGV[1])
if not occ then
  return {}
end
return {occ, seen}
`)

// ─────────────────────────────────────────────────────────────────────────────
// Operations
// ─────────────────────────────────────────────────────────────────────────────

// Join places occ in loc, moving the user out of any previous location.
func (s *OccupancyStore) Join(ctx context.Context, loc campus.Location, occ campus.Occupant) (campus.JoinOutcome, error) {
	payload, err := json.Marshal(storedOccupant{
		UserID:      string(occ.UserID),
		DisplayName: occ.DisplayName,
		LocationID:  loc.ID,
		JoinedAt:    occ.JoinedAt,
	})
	if err != nil {
		return campus.JoinOutcome{}, fmt.Errorf("encode occupant: %w", err)
	}

	res, err := joinScript.Run(ctx, s.client.rdb,
		[]string{s.whereKey(), s.seenKey(), s.locKey(loc.ID)},
		string(occ.UserID), loc.ID, loc.Capacity, payload, toMillis(occ.LastActivity()), s.locPrefix(),
	).Slice()
	if err != nil {
		return campus.JoinOutcome{}, shared.StorageError("campus", "Join", err)
	}
	if len(res) != 3 {
		return campus.JoinOutcome{}, shared.StorageError("campus", "Join", ErrCorruptEntry)
	}

	status, _ := res[0].(int64)
	prev, _ := res[1].(string)
	occupancy, _ := res[2].(int64)

	switch status {
	case -1:
		return campus.JoinOutcome{}, shared.ErrLocationFull
	case 1:
		return campus.JoinOutcome{AlreadyPresent: true, Occupancy: int(occupancy)}, nil
	default:
		return campus.JoinOutcome{PreviousLocation: prev, Occupancy: int(occupancy)}, nil
	}
}

// Leave removes the user from locationID.
func (s *OccupancyStore) Leave(ctx context.Context, locationID string, userID shared.UserID) (bool, error) {
	n, err := leaveScript.Run(ctx, s.client.rdb,
		[]string{s.whereKey(), s.seenKey(), s.locKey(locationID)},
		string(userID), locationID,
	).Int()
	if err != nil {
		return false, shared.StorageError("campus", "Leave", err)
	}
	return n == 1, nil
}

// Touch refreshes the heartbeat of the user's current occupancy.
func (s *OccupancyStore) Touch(ctx context.Context, userID shared.UserID, at time.Time) (bool, error) {
	n, err := touchScript.Run(ctx, s.client.rdb,
		[]string{s.whereKey(), s.seenKey()},
		string(userID), toMillis(at),
	).Int()
	if err != nil {
		return false, shared.StorageError("campus", "Touch", err)
	}
	return n == 1, nil
}

// Occupants lists a location ordered by join time.
func (s *OccupancyStore) Occupants(ctx context.Context, locationID string) ([]campus.Occupant, error) {
	raw, err := s.client.rdb.HGetAll(ctx, s.locKey(locationID)).Result()
	if err != nil {
		return nil, shared.StorageError("campus", "Occupants", err)
	}
	if len(raw) == 0 {
		return []campus.Occupant{}, nil
	}

	users := make([]string, 0, len(raw))
	for u := range raw {
		users = append(users, u)
	}
	scores := make([]*redis.FloatCmd, len(users))
	_, err = s.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, u := range users {
			scores[i] = pipe.ZScore(ctx, s.seenKey(), u)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, shared.StorageError("campus", "Occupants", err)
	}

	out := make([]campus.Occupant, 0, len(users))
	for i, u := range users {
		occ, err := decodeOccupant(raw[u])
		if err != nil {
			return nil, shared.StorageError("campus", "Occupants", err)
		}
		if ms, err := scores[i].Result(); err == nil {
			occ.LastSeenAt = fromMillis(ms)
		}
		out = append(out, occ)
	}
	campus.SortOccupants(out)
	return out, nil
}

// LocationOf returns the user's location or "".
func (s *OccupancyStore) LocationOf(ctx context.Context, userID shared.UserID) (string, error) {
	id, err := s.client.rdb.HGet(ctx, s.whereKey(), string(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", shared.StorageError("campus", "LocationOf", err)
	}
	return id, nil
}

// RemoveStale evicts every occupant whose heartbeat is older than cutoff.
func (s *OccupancyStore) RemoveStale(ctx context.Context, cutoff time.Time) ([]campus.Occupant, error) {
	cutoffMs := toMillis(cutoff)
	users, err := s.client.rdb.ZRangeByScore(ctx, s.seenKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoffMs, 10),
	}).Result()
	if err != nil {
		return nil, shared.StorageError("campus", "RemoveStale", err)
	}

	removed := make([]campus.Occupant, 0, len(users))
	for _, u := range users {
		res, err := evictScript.Run(ctx, s.client.rdb,
			[]string{s.whereKey(), s.seenKey()},
			u, cutoffMs, s.locPrefix(),
		).Slice()
		if err != nil {
			return removed, shared.StorageError("campus", "RemoveStale", err)
		}
		if len(res) != 2 {
			continue
		}
		payload, _ := res[0].(string)
		occ, err := decodeOccupant(payload)
		if err != nil {
			return removed, shared.StorageError("campus", "RemoveStale", err)
		}
		if seen, ok := res[1].(string); ok {
			if ms, err := strconv.ParseFloat(seen, 64); err == nil {
				occ.LastSeenAt = fromMillis(ms)
			}
		}
		removed = append(removed, occ)
	}
	return removed, nil
}

func decodeOccupant(payload string) (campus.Occupant, error) {
	var so storedOccupant
	if err := json.Unmarshal([]byte(payload), &so); err != nil {
		return campus.Occupant{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return campus.Occupant{
		UserID:      shared.UserID(so.UserID),
		DisplayName: so.DisplayName,
		LocationID:  so.LocationID,
		JoinedAt:    so.JoinedAt,
		LastSeenAt:  so.JoinedAt,
	}, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}
