package redis

import (
	"context"
	"errors"
	"math"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD INDEX
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardIndex implements leaderboard.Index with one sorted set per scope.
//
// Layout:
//   - ZSET "{prefix}lb:{scope}" member user id, score -XP
//   - HASH "{prefix}lb:names" user id -> display name
//
// The score is negated so that ascending ZRANGE order is XP descending with
// ties broken by member ascending, which is exactly leaderboard.Ranks.
// Writes use ZADD LT so a stale projection can never lower a score.
type LeaderboardIndex struct {
	client *Client
}

// NewLeaderboardIndex creates the index.
func NewLeaderboardIndex(client *Client) *LeaderboardIndex {
	return &LeaderboardIndex{client: client}
}

func (l *LeaderboardIndex) scopeKey(scope leaderboard.Scope) string {
	return l.client.Key("lb", scope.Key())
}

func (l *LeaderboardIndex) namesKey() string {
	return l.client.Key("lb", "names")
}

// Upsert writes the overall score and every skill score with XP.
func (l *LeaderboardIndex) Upsert(ctx context.Context, s leaderboard.Standing) error {
	if !s.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	member := string(s.UserID)

	_, err := l.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddLT(ctx, l.scopeKey(leaderboard.Overall()), redis.Z{Score: -float64(s.TotalXP), Member: member})
		for skill, xp := range s.SkillXP {
			if xp <= 0 || !skill.IsValid() {
				continue
			}
			pipe.ZAddLT(ctx, l.scopeKey(leaderboard.ForSkill(skill)), redis.Z{Score: -float64(xp), Member: member})
		}
		if s.DisplayName != "" {
			pipe.HSet(ctx, l.namesKey(), member, s.DisplayName)
		}
		return nil
	})
	if err != nil {
		return shared.StorageError("leaderboard", "Upsert", err)
	}
	return nil
}

// Top returns the first n entries of scope.
func (l *LeaderboardIndex) Top(ctx context.Context, scope leaderboard.Scope, n int) ([]leaderboard.Entry, error) {
	if !scope.IsValid() {
		return nil, shared.ErrInvalidScope
	}
	if n <= 0 {
		return []leaderboard.Entry{}, nil
	}

	zs, err := l.client.rdb.ZRangeWithScores(ctx, l.scopeKey(scope), 0, int64(n-1)).Result()
	if err != nil {
		return nil, shared.StorageError("leaderboard", "Top", err)
	}
	if len(zs) == 0 {
		return []leaderboard.Entry{}, nil
	}

	members := make([]string, len(zs))
	for i, z := range zs {
		members[i], _ = z.Member.(string)
	}
	names, err := l.names(ctx, members...)
	if err != nil {
		return nil, shared.StorageError("leaderboard", "Top", err)
	}

	entries := make([]leaderboard.Entry, 0, len(zs))
	for i, z := range zs {
		entries = append(entries, toEntry(members[i], names[i], z.Score, int64(i)))
	}
	return entries, nil
}

// RankOf returns the user's entry or shared.ErrNotRanked.
func (l *LeaderboardIndex) RankOf(ctx context.Context, scope leaderboard.Scope, userID shared.UserID) (leaderboard.Entry, error) {
	if !scope.IsValid() {
		return leaderboard.Entry{}, shared.ErrInvalidScope
	}
	key := l.scopeKey(scope)
	member := string(userID)

	var (
		rankCmd  *redis.IntCmd
		scoreCmd *redis.FloatCmd
		nameCmd  *redis.StringCmd
	)
	_, err := l.client.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		rankCmd = pipe.ZRank(ctx, key, member)
		scoreCmd = pipe.ZScore(ctx, key, member)
		nameCmd = pipe.HGet(ctx, l.namesKey(), member)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return leaderboard.Entry{}, shared.StorageError("leaderboard", "RankOf", err)
	}

	rank, err := rankCmd.Result()
	if errors.Is(err, redis.Nil) {
		return leaderboard.Entry{}, shared.ErrNotRanked
	}
	if err != nil {
		return leaderboard.Entry{}, shared.StorageError("leaderboard", "RankOf", err)
	}
	score, err := scoreCmd.Result()
	if err != nil {
		return leaderboard.Entry{}, shared.StorageError("leaderboard", "RankOf", err)
	}
	name, _ := nameCmd.Result()

	return toEntry(member, name, score, rank), nil
}

// Count returns the cardinality of the scope's set.
func (l *LeaderboardIndex) Count(ctx context.Context, scope leaderboard.Scope) (int64, error) {
	n, err := l.client.rdb.ZCard(ctx, l.scopeKey(scope)).Result()
	if err != nil {
		return 0, shared.StorageError("leaderboard", "Count", err)
	}
	return n, nil
}

func (l *LeaderboardIndex) names(ctx context.Context, members ...string) ([]string, error) {
	vals, err := l.client.rdb.HMGet(ctx, l.namesKey(), members...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(members))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}

// toEntry converts a sorted-set row. Level is derived from the scope's XP.
func toEntry(member, name string, score float64, zeroBasedRank int64) leaderboard.Entry {
	xp := int64(math.Round(-score))
	return leaderboard.Entry{
		UserID:      shared.UserID(member),
		DisplayName: name,
		XP:          xp,
		Level:       progress.LevelFor(xp),
		Rank:        shared.Rank(zeroBasedRank + 1),
	}
}
