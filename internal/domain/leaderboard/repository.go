package leaderboard

import (
	"context"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD INDEX INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Index поддерживает упорядоченное представление аватаров по каждому scope.
// Реализации: memory (один процесс, тесты) и redis (ZSET).
//
// Гарантии:
//   - Upsert никогда не уменьшает уже проиндексированный XP в scope;
//   - Top и RankOf используют один и тот же порядок (см. Ranks);
//   - чтения допускают устаревание, но не блокируются записями.
type Index interface {
	// Upsert обновляет все scope пользователя: overall и каждый навык с XP > 0.
	Upsert(ctx context.Context, s Standing) error

	// Top возвращает первые n записей scope с заполненным Rank.
	Top(ctx context.Context, scope Scope, n int) ([]Entry, error)

	// RankOf возвращает запись пользователя в scope.
	// Возвращает shared.ErrNotRanked, если пользователя нет в индексе.
	RankOf(ctx context.Context, scope Scope, userID shared.UserID) (Entry, error)

	// Count возвращает количество пользователей в scope.
	Count(ctx context.Context, scope Scope) (int64, error)
}
