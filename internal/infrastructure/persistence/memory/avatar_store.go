// Package memory implements in-process adapters for the progression stores.
// They back single-instance deployments (STORE_BACKEND=memory, REDIS_DISABLED)
// and the application tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync"

	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AVATAR STORE
// ══════════════════════════════════════════════════════════════════════════════

// avatarRecord guards one user's avatar and ledger.
// avatar stays nil until the first write.
type avatarRecord struct {
	mu     sync.Mutex
	avatar *progress.Avatar
	ledger []progress.XPGrant
}

// AvatarStore implements progress.Store with a mutex per user.
type AvatarStore struct {
	records *xsync.MapOf[string, *avatarRecord]
	now     func() time.Time
}

// NewAvatarStore creates an empty store. A nil clock means time.Now.
func NewAvatarStore(now func() time.Time) *AvatarStore {
	if now == nil {
		now = time.Now
	}
	return &AvatarStore{
		records: xsync.NewMapOf[*avatarRecord](),
		now:     now,
	}
}

func (s *AvatarStore) record(userID shared.UserID) *avatarRecord {
	rec, _ := s.records.LoadOrStore(string(userID), &avatarRecord{})
	return rec
}

// Get returns a copy of the avatar or shared.ErrAvatarNotFound.
func (s *AvatarStore) Get(ctx context.Context, userID shared.UserID) (*progress.Avatar, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("progress", "Get", err)
	}
	rec, ok := s.records.Load(string(userID))
	if !ok {
		return nil, shared.ErrAvatarNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.avatar == nil {
		return nil, shared.ErrAvatarNotFound
	}
	out := rec.avatar.Clone()
	out.Reconcile()
	return out, nil
}

// GetOrCreate returns the avatar, creating an empty one on first access.
func (s *AvatarStore) GetOrCreate(ctx context.Context, userID shared.UserID) (*progress.Avatar, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("progress", "GetOrCreate", err)
	}
	rec := s.record(userID)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.avatar == nil {
		rec.avatar = progress.NewAvatar(userID, s.now().UTC())
	}
	out := rec.avatar.Clone()
	out.Reconcile()
	return out, nil
}

// Count returns the number of created avatars.
func (s *AvatarStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, shared.StorageError("progress", "Count", err)
	}
	var n int64
	s.records.Range(func(_ string, rec *avatarRecord) bool {
		rec.mu.Lock()
		if rec.avatar != nil {
			n++
		}
		rec.mu.Unlock()
		return true
	})
	return n, nil
}

// Scan visits avatars in user id order.
func (s *AvatarStore) Scan(ctx context.Context, batchSize int, fn func(batch []*progress.Avatar) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}

	ids := make([]string, 0, s.records.Size())
	s.records.Range(func(id string, _ *avatarRecord) bool {
		ids = append(ids, id)
		return true
	})
	sort.Strings(ids)

	batch := make([]*progress.Avatar, 0, batchSize)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return shared.StorageError("progress", "Scan", err)
		}
		a, err := s.Get(ctx, shared.UserID(id))
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		batch = append(batch, a)
		if len(batch) == batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = make([]*progress.Avatar, 0, batchSize)
		}
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// Ledger returns the user's XP grants in write order.
func (s *AvatarStore) Ledger(ctx context.Context, userID shared.UserID) ([]progress.XPGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("progress", "Ledger", err)
	}
	rec, ok := s.records.Load(string(userID))
	if !ok {
		return []progress.XPGrant{}, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]progress.XPGrant{}, rec.ledger...), nil
}

// Update applies fn to a private copy under the user's lock and commits it.
// A failing fn leaves the stored avatar untouched.
func (s *AvatarStore) Update(ctx context.Context, userID shared.UserID, fn progress.MutateFunc) (*progress.Avatar, error) {
	if !userID.IsValid() {
		return nil, shared.ErrInvalidUserID
	}
	rec := s.record(userID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, shared.StorageError("progress", "Update", err)
	}

	now := s.now().UTC()
	base := rec.avatar
	if base == nil {
		base = progress.NewAvatar(userID, now)
	}

	working := base.Clone()
	working.Reconcile()
	if err := fn(working); err != nil {
		if errors.Is(err, progress.ErrSkipWrite) {
			rec.avatar = base
			out := base.Clone()
			out.Reconcile()
			return out, nil
		}
		return nil, err
	}

	working.Reconcile()
	working.Version++
	working.UpdatedAt = now
	rec.ledger = append(rec.ledger, working.PendingGrants()...)
	working.ClearPendingGrants()
	rec.avatar = working

	return working.Clone(), nil
}
