package domain

import (
	"context"
	"time"
)

// AgreementRepository persists agreements.
// Implementation: SQLCipher encrypted SQLite database.
type AgreementRepository interface {
	// Create inserts a new agreement and returns its identifier.
	Create(ctx context.Context, a Agreement) (int64, error)

	// GetActive returns ACTIVE agreements, newest first. If appID is
	// non-empty, only agreements for that app are returned.
	GetActive(ctx context.Context, appID string) ([]Agreement, error)

	// GetRecent returns the most recent agreements in any status,
	// newest first, up to limit.
	GetRecent(ctx context.Context, limit int) ([]Agreement, error)

	// UpdateStatus applies a terminal status transition. It fails if the
	// agreement is not ACTIVE (transitions happen exactly once).
	UpdateStatus(ctx context.Context, id int64, status AgreementStatus, resolvedAt time.Time) error

	// Reset deletes all agreements. Only used by explicit data-reset.
	Reset(ctx context.Context) error
}

// MappingRepository persists app-to-category mappings.
type MappingRepository interface {
	// GetByApp returns the mapping for an app identifier, or nil if none.
	GetByApp(ctx context.Context, appID string) (*AppCategoryMapping, error)

	// Upsert inserts or unconditionally replaces a mapping.
	Upsert(ctx context.Context, m AppCategoryMapping) error

	// InsertIfAbsent inserts a mapping only when no mapping exists for
	// the app identifier. Used for seeding SYSTEM defaults.
	InsertIfAbsent(ctx context.Context, m AppCategoryMapping) error

	// Delete removes the mapping for an app identifier.
	Delete(ctx context.Context, appID string) error
}

// KeyProvider abstracts a scoped source of encryption keys. Keys are
// referenced by alias and never leave the provider's storage in any form
// other than the returned bytes; callers must not persist them.
type KeyProvider interface {
	// GetOrCreateKey returns the key for alias, generating and retaining
	// a new one on first use.
	GetOrCreateKey(alias string) ([]byte, error)
}

// Blocklist is the encrypted set of app identifiers in the sensitive
// category. All entries are lower-cased and trimmed.
type Blocklist interface {
	// IsMember normalizes appID and checks set membership.
	IsMember(ctx context.Context, appID string) (bool, error)

	// Load returns the current set, reading and decrypting from disk on
	// first call per process lifetime.
	Load(ctx context.Context) (map[string]struct{}, error)

	// Save normalizes, encrypts and persists the set, replacing the cache.
	Save(ctx context.Context, entries []string) error
}

// DurationParser extracts a duration from free text. ok is false when the
// text contains no recognizable time expression.
type DurationParser interface {
	ParseDuration(text string) (d time.Duration, ok bool)
}

// ForegroundSampler reports the currently foregrounded app identifier,
// or empty when the user is on the home screen / idle.
type ForegroundSampler interface {
	CurrentApp(ctx context.Context) (appID string, err error)
}

// Notifier receives enforcement outcomes and trigger events.
// Implementation: notification UI, outside this module's scope.
type Notifier interface {
	// NotifyViolation reports continued use past an agreement's expiry.
	NotifyViolation(a Agreement)

	// NotifyCompletion reports an honored agreement.
	NotifyCompletion(a Agreement)

	// NotifyThresholdExceeded reports usage crossing the resolved
	// threshold for an app, which starts a negotiation.
	NotifyThresholdExceeded(appID string, used, threshold time.Duration)

	// NotifyBlocked reports a hard-blocked app in the foreground.
	NotifyBlocked(appID string)
}
