package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE AVATARS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per user. Level columns are caches; the application re-derives
-- them from XP on every load.
CREATE TABLE IF NOT EXISTS avatars (
    user_id VARCHAR(128) PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    total_xp BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 1,
    coins BIGINT NOT NULL DEFAULT 0,
    gems BIGINT NOT NULL DEFAULT 0,
    skills JSONB NOT NULL DEFAULT '{}'::jsonb,
    achievements JSONB NOT NULL DEFAULT '[]'::jsonb,
    titles JSONB NOT NULL DEFAULT '[]'::jsonb,
    source_counts JSONB NOT NULL DEFAULT '{}'::jsonb,
    appearance JSONB,
    streak_current INTEGER NOT NULL DEFAULT 0,
    streak_longest INTEGER NOT NULL DEFAULT 0,
    streak_last_date DATE,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_level CHECK (level >= 1),
    CONSTRAINT valid_currency CHECK (coins >= 0 AND gems >= 0),
    CONSTRAINT valid_streak CHECK (streak_current >= 0 AND streak_longest >= streak_current)
);

CREATE INDEX IF NOT EXISTS idx_avatars_total_xp ON avatars(total_xp DESC, user_id);
`

const migration001Down = `
DROP TABLE IF EXISTS avatars;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE XP GRANTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Append-only ledger. For every user SUM(amount) equals avatars.total_xp
-- because both are written in the same transaction.
CREATE TABLE IF NOT EXISTS xp_grants (
    seq BIGSERIAL PRIMARY KEY,
    id UUID NOT NULL UNIQUE,
    user_id VARCHAR(128) NOT NULL REFERENCES avatars(user_id) ON DELETE CASCADE,
    amount BIGINT NOT NULL,
    skill VARCHAR(32),
    source VARCHAR(32) NOT NULL,
    granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_amount CHECK (amount > 0)
);

CREATE INDEX IF NOT EXISTS idx_xp_grants_user ON xp_grants(user_id, seq);
CREATE INDEX IF NOT EXISTS idx_xp_grants_granted_at ON xp_grants(granted_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS xp_grants;
`
