package progress

import (
	"context"
	"errors"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища аватаров. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ErrSkipWrite возвращается из MutateFunc, когда изменений нет и запись не нужна.
// Update в этом случае возвращает текущее состояние без ошибки.
var ErrSkipWrite = errors.New("progress: nothing to write")

// MutateFunc изменяет приватную копию аватара.
// При оптимистичной блокировке функция может быть вызвана несколько раз,
// поэтому она не должна иметь внешних побочных эффектов.
type MutateFunc func(a *Avatar) error

// Store определяет атомарное хранилище аватаров (по одной записи на пользователя).
type Store interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Чтение
	// ─────────────────────────────────────────────────────────────────────────

	// Get возвращает аватар с пересчитанными уровнями.
	// Возвращает shared.ErrAvatarNotFound, если аватара нет.
	Get(ctx context.Context, userID shared.UserID) (*Avatar, error)

	// GetOrCreate возвращает аватар, создавая пустой при первом обращении.
	GetOrCreate(ctx context.Context, userID shared.UserID) (*Avatar, error)

	// Count возвращает количество аватаров.
	Count(ctx context.Context) (int64, error)

	// Scan обходит все аватары пачками по batchSize в порядке user_id.
	Scan(ctx context.Context, batchSize int, fn func(batch []*Avatar) error) error

	// Ledger возвращает все начисления XP пользователя в порядке записи.
	Ledger(ctx context.Context, userID shared.UserID) ([]XPGrant, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Атомарное чтение-изменение-запись
	// ─────────────────────────────────────────────────────────────────────────

	// Update атомарно загружает аватар (создавая его при отсутствии),
	// применяет fn и сохраняет результат вместе с начислениями в журнал.
	// Конкурентные вызовы для одного userID сериализуются.
	// Ошибка fn отменяет запись целиком. Ошибки хранилища оборачиваются
	// в shared.ErrStorage, исчерпание повторов даёт shared.ErrConflictRetryExhausted.
	Update(ctx context.Context, userID shared.UserID, fn MutateFunc) (*Avatar, error)
}
