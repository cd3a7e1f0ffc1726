package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/campus-progression/internal/domain/progress"
	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// AVATAR STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// AvatarStore implements progress.Store on PostgreSQL with optimistic
// concurrency on avatars.version.
type AvatarStore struct {
	conn    *Connection
	retrier *retry.Retrier
	now     func() time.Time
}

// NewAvatarStore creates a store that retries a conflicting update up to
// maxAttempts times.
func NewAvatarStore(conn *Connection, maxAttempts int) *AvatarStore {
	return &AvatarStore{
		conn: conn,
		retrier: retry.ConflictRetrier(maxAttempts, func(err error) bool {
			return errors.Is(err, shared.ErrConcurrentModification) || IsSerializationFailure(err)
		}),
		now: time.Now,
	}
}

const avatarColumns = `
	user_id, display_name, total_xp, coins, gems, skills, achievements, titles,
	source_counts, appearance, streak_current, streak_longest, streak_last_date,
	version, created_at, updated_at`

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get returns the avatar or shared.ErrAvatarNotFound.
func (s *AvatarStore) Get(ctx context.Context, userID shared.UserID) (*progress.Avatar, error) {
	a, err := s.load(ctx, s.conn, userID)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrAvatarNotFound
		}
		return nil, shared.StorageError("progress", "Get", err)
	}
	return a, nil
}

// GetOrCreate returns the avatar, inserting an empty row on first access.
func (s *AvatarStore) GetOrCreate(ctx context.Context, userID shared.UserID) (*progress.Avatar, error) {
	if err := s.ensure(ctx, userID); err != nil {
		return nil, shared.StorageError("progress", "GetOrCreate", err)
	}
	return s.Get(ctx, userID)
}

// Count returns the number of avatars.
func (s *AvatarStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM avatars`).Scan(&n); err != nil {
		return 0, shared.StorageError("progress", "Count", err)
	}
	return n, nil
}

// Scan pages through avatars by user_id (keyset pagination).
func (s *AvatarStore) Scan(ctx context.Context, batchSize int, fn func(batch []*progress.Avatar) error) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	query := `SELECT` + avatarColumns + `
		FROM avatars
		WHERE user_id > $1
		ORDER BY user_id
		LIMIT $2`

	after := ""
	for {
		rows, err := s.conn.Query(ctx, query, after, batchSize)
		if err != nil {
			return shared.StorageError("progress", "Scan", err)
		}
		batch := make([]*progress.Avatar, 0, batchSize)
		for rows.Next() {
			a, err := scanAvatar(rows)
			if err != nil {
				rows.Close()
				return shared.StorageError("progress", "Scan", err)
			}
			batch = append(batch, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return shared.StorageError("progress", "Scan", err)
		}

		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		after = string(batch[len(batch)-1].UserID)
	}
}

// Ledger returns the user's grants in write order.
func (s *AvatarStore) Ledger(ctx context.Context, userID shared.UserID) ([]progress.XPGrant, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, user_id, amount, COALESCE(skill, ''), source, granted_at
		FROM xp_grants
		WHERE user_id = $1
		ORDER BY seq`, string(userID))
	if err != nil {
		return nil, shared.StorageError("progress", "Ledger", err)
	}
	defer rows.Close()

	grants := make([]progress.XPGrant, 0)
	for rows.Next() {
		var (
			g             progress.XPGrant
			uid           string
			skill, source string
		)
		if err := rows.Scan(&g.ID, &uid, &g.Amount, &skill, &source, &g.GrantedAt); err != nil {
			return nil, shared.StorageError("progress", "Ledger", err)
		}
		g.UserID = shared.UserID(uid)
		g.Skill = progress.Skill(skill)
		g.Source = progress.Source(source)
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageError("progress", "Ledger", err)
	}
	return grants, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Atomic read-modify-write
// ─────────────────────────────────────────────────────────────────────────────

// Update loads the avatar (creating it if absent), applies fn and writes the
// result with a compare-and-swap on version. Grants queued by fn are inserted
// into xp_grants in the same transaction. On a lost race fn runs again on the
// fresh row.
func (s *AvatarStore) Update(ctx context.Context, userID shared.UserID, fn progress.MutateFunc) (*progress.Avatar, error) {
	if !userID.IsValid() {
		return nil, shared.ErrInvalidUserID
	}

	var (
		result *progress.Avatar
		fnErr  error
	)
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		if err := s.ensure(ctx, userID); err != nil {
			return err
		}
		current, err := s.load(ctx, s.conn, userID)
		if err != nil {
			return err
		}

		working := current.Clone()
		if err := fn(working); err != nil {
			if errors.Is(err, progress.ErrSkipWrite) {
				result = current
				return nil
			}
			fnErr = err
			return err
		}

		working.Reconcile()
		working.Version = current.Version + 1
		working.UpdatedAt = s.now().UTC()

		err = s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if err := s.write(ctx, tx, working, current.Version); err != nil {
				return err
			}
			return insertGrants(ctx, tx, working.PendingGrants())
		})
		if err != nil {
			return err
		}

		working.ClearPendingGrants()
		result = working
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case fnErr != nil:
		return nil, fnErr
	case errors.Is(err, retry.ErrExhausted):
		return nil, shared.WrapError("progress", "Update", shared.ErrConflictRetryExhausted,
			"too many concurrent updates", err)
	default:
		return nil, shared.StorageError("progress", "Update", err)
	}
}

func (s *AvatarStore) ensure(ctx context.Context, userID shared.UserID) error {
	now := s.now().UTC()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO avatars (user_id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO NOTHING`, string(userID), now)
	return err
}

func (s *AvatarStore) load(ctx context.Context, q Querier, userID shared.UserID) (*progress.Avatar, error) {
	row := q.QueryRow(ctx, `SELECT`+avatarColumns+` FROM avatars WHERE user_id = $1`, string(userID))
	return scanAvatar(row)
}

func (s *AvatarStore) write(ctx context.Context, tx pgx.Tx, a *progress.Avatar, expectedVersion int64) error {
	skills, err := json.Marshal(a.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}
	achievements, err := json.Marshal(a.Achievements)
	if err != nil {
		return fmt.Errorf("marshal achievements: %w", err)
	}
	titles, err := json.Marshal(a.Titles)
	if err != nil {
		return fmt.Errorf("marshal titles: %w", err)
	}
	sources, err := json.Marshal(a.SourceCounts)
	if err != nil {
		return fmt.Errorf("marshal source counts: %w", err)
	}
	var appearance []byte
	if len(a.Appearance) > 0 {
		appearance = a.Appearance
	}
	var lastDate *time.Time
	if !a.Streak.LastActivityDate.IsZero() {
		t := a.Streak.LastActivityDate.Time()
		lastDate = &t
	}

	tag, err := tx.Exec(ctx, `
		UPDATE avatars SET
			display_name = $1,
			total_xp = $2,
			level = $3,
			coins = $4,
			gems = $5,
			skills = $6,
			achievements = $7,
			titles = $8,
			source_counts = $9,
			appearance = $10,
			streak_current = $11,
			streak_longest = $12,
			streak_last_date = $13,
			version = $14,
			updated_at = $15
		WHERE user_id = $16 AND version = $17`,
		a.DisplayName,
		a.TotalXP,
		a.Level,
		a.Coins,
		a.Gems,
		skills,
		achievements,
		titles,
		sources,
		appearance,
		a.Streak.Current,
		a.Streak.Longest,
		lastDate,
		a.Version,
		a.UpdatedAt,
		string(a.UserID),
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrVersionConflict
	}
	return nil
}

func insertGrants(ctx context.Context, tx pgx.Tx, grants []progress.XPGrant) error {
	if len(grants) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, g := range grants {
		var skill *string
		if g.Skill != "" {
			s := string(g.Skill)
			skill = &s
		}
		batch.Queue(`
			INSERT INTO xp_grants (id, user_id, amount, skill, source, granted_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			g.ID, string(g.UserID), g.Amount, skill, string(g.Source), g.GrantedAt)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanAvatar(row pgx.Row) (*progress.Avatar, error) {
	var (
		a                                       progress.Avatar
		userID                                  string
		skills, achievements, titles, sources   []byte
		appearance                              []byte
		lastDate                                *time.Time
	)
	err := row.Scan(
		&userID,
		&a.DisplayName,
		&a.TotalXP,
		&a.Coins,
		&a.Gems,
		&skills,
		&achievements,
		&titles,
		&sources,
		&appearance,
		&a.Streak.Current,
		&a.Streak.Longest,
		&lastDate,
		&a.Version,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.UserID = shared.UserID(userID)
	if err := unmarshalJSON(skills, &a.Skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	if err := unmarshalJSON(achievements, &a.Achievements); err != nil {
		return nil, fmt.Errorf("decode achievements: %w", err)
	}
	if err := unmarshalJSON(titles, &a.Titles); err != nil {
		return nil, fmt.Errorf("decode titles: %w", err)
	}
	if err := unmarshalJSON(sources, &a.SourceCounts); err != nil {
		return nil, fmt.Errorf("decode source counts: %w", err)
	}
	if len(appearance) > 0 {
		a.Appearance = json.RawMessage(appearance)
	}
	if lastDate != nil {
		a.Streak.LastActivityDate = shared.DateOf(*lastDate, time.UTC)
	}

	a.Reconcile()
	return &a, nil
}

func unmarshalJSON(data []byte, dest any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
