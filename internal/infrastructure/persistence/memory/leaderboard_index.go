package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alem-hub/campus-progression/internal/domain/leaderboard"
	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// board is one scope kept sorted by leaderboard.Ranks.
type board struct {
	xp    map[shared.UserID]int64
	order []shared.UserID
}

func newBoard() *board {
	return &board{xp: make(map[shared.UserID]int64)}
}

// position returns the index where (xp, user) sits or would be inserted.
func (b *board) position(xp int64, user shared.UserID) int {
	return sort.Search(len(b.order), func(i int) bool {
		other := b.order[i]
		return !leaderboard.Ranks(b.xp[other], other, xp, user)
	})
}

// set moves user to xp unless that would lower an indexed value.
func (b *board) set(user shared.UserID, xp int64) {
	old, ok := b.xp[user]
	if ok && xp <= old {
		return
	}
	if ok {
		i := b.position(old, user)
		b.order = append(b.order[:i], b.order[i+1:]...)
	}
	i := b.position(xp, user)
	b.order = append(b.order, "")
	copy(b.order[i+1:], b.order[i:])
	b.order[i] = user
	b.xp[user] = xp
}

type profile struct {
	displayName string
	level       int
}

// LeaderboardIndex implements leaderboard.Index in process memory.
type LeaderboardIndex struct {
	mu       sync.RWMutex
	boards   map[string]*board
	profiles map[shared.UserID]profile
}

// NewLeaderboardIndex creates an empty index.
func NewLeaderboardIndex() *LeaderboardIndex {
	return &LeaderboardIndex{
		boards:   make(map[string]*board),
		profiles: make(map[shared.UserID]profile),
	}
}

// Upsert projects a standing into overall and every skill with XP.
func (idx *LeaderboardIndex) Upsert(ctx context.Context, s leaderboard.Standing) error {
	if err := ctx.Err(); err != nil {
		return shared.StorageError("leaderboard", "Upsert", err)
	}
	if !s.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	p := idx.profiles[s.UserID]
	if s.DisplayName != "" {
		p.displayName = s.DisplayName
	}
	if s.Level > p.level {
		p.level = s.Level
	}
	idx.profiles[s.UserID] = p

	idx.board(leaderboard.Overall()).set(s.UserID, s.TotalXP)
	for skill, xp := range s.SkillXP {
		if xp <= 0 || !skill.IsValid() {
			continue
		}
		idx.board(leaderboard.ForSkill(skill)).set(s.UserID, xp)
	}
	return nil
}

// board must be called with idx.mu held for writing.
func (idx *LeaderboardIndex) board(scope leaderboard.Scope) *board {
	b, ok := idx.boards[scope.Key()]
	if !ok {
		b = newBoard()
		idx.boards[scope.Key()] = b
	}
	return b
}

func (idx *LeaderboardIndex) entry(scope leaderboard.Scope, b *board, i int) leaderboard.Entry {
	user := b.order[i]
	xp := b.xp[user]
	p := idx.profiles[user]
	level := p.level
	if scope.Kind == leaderboard.ScopeSkill {
		level = progress.LevelFor(xp)
	}
	return leaderboard.Entry{
		UserID:      user,
		DisplayName: p.displayName,
		XP:          xp,
		Level:       level,
		Rank:        shared.Rank(i + 1),
	}
}

// Top returns the first n entries of scope.
func (idx *LeaderboardIndex) Top(ctx context.Context, scope leaderboard.Scope, n int) ([]leaderboard.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("leaderboard", "Top", err)
	}
	if !scope.IsValid() {
		return nil, shared.ErrInvalidScope
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b, ok := idx.boards[scope.Key()]
	if !ok || n <= 0 {
		return []leaderboard.Entry{}, nil
	}
	if n > len(b.order) {
		n = len(b.order)
	}
	out := make([]leaderboard.Entry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, idx.entry(scope, b, i))
	}
	return out, nil
}

// RankOf returns the user's entry or shared.ErrNotRanked.
func (idx *LeaderboardIndex) RankOf(ctx context.Context, scope leaderboard.Scope, userID shared.UserID) (leaderboard.Entry, error) {
	if err := ctx.Err(); err != nil {
		return leaderboard.Entry{}, shared.StorageError("leaderboard", "RankOf", err)
	}
	if !scope.IsValid() {
		return leaderboard.Entry{}, shared.ErrInvalidScope
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b, ok := idx.boards[scope.Key()]
	if !ok {
		return leaderboard.Entry{}, shared.ErrNotRanked
	}
	xp, ok := b.xp[userID]
	if !ok {
		return leaderboard.Entry{}, shared.ErrNotRanked
	}
	return idx.entry(scope, b, b.position(xp, userID)), nil
}

// Count returns the number of users in scope.
func (idx *LeaderboardIndex) Count(ctx context.Context, scope leaderboard.Scope) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, shared.StorageError("leaderboard", "Count", err)
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	b, ok := idx.boards[scope.Key()]
	if !ok {
		return 0, nil
	}
	return int64(len(b.order)), nil
}
